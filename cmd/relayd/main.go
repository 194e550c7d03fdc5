// relayd is the messaging relay server.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mentorlink/relay/config"
	"github.com/mentorlink/relay/src/auth"
	"github.com/mentorlink/relay/src/bridge"
	"github.com/mentorlink/relay/src/directory"
	"github.com/mentorlink/relay/src/registry"
	"github.com/mentorlink/relay/src/router"
	"github.com/mentorlink/relay/src/server"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

func main() {
	_ = godotenv.Load()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	reg := registry.New(logger)
	dir := directory.New()
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	rt := router.New(reg, dir, verifier, cfg.SendQueueSize, logger)

	var rb *bridge.RedisBridge
	if cfg.BridgeEnabled {
		rb = bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), reg, logger)
		if err := rb.Start(); err != nil {
			logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
			rb = nil
		} else {
			rt.SetBridge(rb)
		}
	}

	srv := server.New(cfg, rt, reg, dir, logger)
	httpServer := &fasthttp.Server{
		Handler:         srv.Handler(),
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("ws_path", cfg.WSPath).Msg("relay listening")
		if err := httpServer.ListenAndServe(cfg.ListenAddr); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	if rb != nil {
		if err := rb.Stop(); err != nil {
			logger.Error().Err(err).Msg("bridge stop error")
		}
	}
	if err := httpServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
