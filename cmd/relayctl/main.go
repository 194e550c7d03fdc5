// relayctl is an interactive smoke-test client for the relay. It opens a
// session as the given user, prints whatever the relay pushes, and sends
// each line typed on stdin as a message. When the session is not open,
// sends fall back to the REST service if one is configured.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mentorlink/relay/src/auth"
	"github.com/mentorlink/relay/src/fallback"
	"github.com/mentorlink/relay/src/session"
	"github.com/mentorlink/relay/src/types"
	"github.com/rs/zerolog"
)

func main() {
	var (
		wsURL   = flag.String("url", "ws://localhost:5001/ws", "relay WebSocket URL")
		restURL = flag.String("rest", "", "REST fallback base URL (optional)")
		userID  = flag.String("user", "", "principal identifier")
		peerID  = flag.String("peer", "", "recipient principal identifier")
		secret  = flag.String("secret", "your-secret-key", "JWT secret for minting a dev token")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	if *userID == "" || *peerID == "" {
		logger.Fatal().Msg("-user and -peer are required")
	}

	token, err := auth.MintToken(*secret, *userID, time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to mint token")
	}

	mgr := session.NewManager(session.Config{
		URL:    *wsURL,
		UserID: *userID,
		Token:  token,
	}, nil, logger)
	mgr.OnStateChange(func(s session.State) {
		logger.Info().Stringer("state", s).Msg("session state changed")
	})
	mgr.Connect()
	defer mgr.Shutdown()

	var rest fallback.Messenger
	if *restURL != "" {
		rest = fallback.New(*restURL, token)
	}

	// Poll the last-envelope slot; envelopes arriving faster than the
	// poll are overwritten, which is the slot's contract.
	go func() {
		var prev *types.Envelope
		for {
			time.Sleep(100 * time.Millisecond)
			env := mgr.LastEnvelope()
			if env == nil || env == prev {
				continue
			}
			prev = env
			raw, _ := json.Marshal(env)
			fmt.Printf("<< %s\n", raw)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if mgr.State() == session.StateOpen {
			mgr.Send(types.ClientFrame{
				Type:     types.FrameSendMessage,
				ToUserID: *peerID,
				Text:     text,
			})
			continue
		}
		if rest == nil {
			logger.Warn().Msg("session not open and no REST fallback configured")
			continue
		}
		msg, err := rest.PostMessage(*peerID, text, "")
		if err != nil {
			logger.Error().Err(err).Msg("fallback post failed")
			continue
		}
		logger.Info().Str("message_id", msg.MessageID).Msg("sent via REST fallback")
	}
}
