// Package server exposes the relay over HTTP: the WebSocket upgrade
// endpoint plus a small Fiber app for info and health routes.
package server

import (
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/mentorlink/relay/config"
	"github.com/mentorlink/relay/src/directory"
	"github.com/mentorlink/relay/src/registry"
	"github.com/mentorlink/relay/src/router"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// Server ties the router to the HTTP surface.
type Server struct {
	cfg      config.RelayConfig
	router   *router.Router
	registry *registry.Registry
	dir      *directory.Directory
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// New creates the HTTP surface for the relay.
func New(cfg config.RelayConfig, rt *router.Router, reg *registry.Registry, dir *directory.Directory, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		router:   rt,
		registry: reg,
		dir:      dir,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(*fasthttp.RequestCtx) bool { return true },
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the root fasthttp handler: the WS path goes to the
// upgrader, everything else to the Fiber app. Fiber v3 does not expose
// *fasthttp.RequestCtx, so the upgrade is dispatched ahead of it.
func (s *Server) Handler() fasthttp.RequestHandler {
	app := s.fiberApp()
	fiberHandler := app.Handler()
	wsHandler := s.wsHandler()

	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == s.cfg.WSPath {
			wsHandler(ctx)
			return
		}
		fiberHandler(ctx)
	}
}

func (s *Server) fiberApp() *fiber.App {
	app := fiber.New()

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/ws/info", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"websocket":     true,
			"endpoint":      s.cfg.WSPath,
			"clients":       s.registry.Count(),
			"conversations": s.dir.Count(),
		})
	})
	return app
}

// wsHandler upgrades the connection and hands it to the router. The
// handshake parameters are read before the upgrade; verification happens
// inside the router so the close frame reaches the client over the
// upgraded socket.
func (s *Server) wsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		token := string(ctx.QueryArgs().Peek("token"))
		userID := string(ctx.QueryArgs().Peek("userId"))

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			s.router.HandleConnection(&fasthttpConn{conn: conn}, token, userID)
		})
		if err != nil {
			s.logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}
