// Package router drives a connection through its lifecycle and
// interprets inbound frames while the connection is active.
package router

import (
	"time"

	"github.com/google/uuid"
	"github.com/mentorlink/relay/src/auth"
	"github.com/mentorlink/relay/src/directory"
	"github.com/mentorlink/relay/src/registry"
	"github.com/mentorlink/relay/src/types"
	"github.com/rs/zerolog"
)

// DeliveryBridge hands envelopes for principals with no local connection
// to other relay instances. Defined here to avoid a circular import with
// the bridge package.
type DeliveryBridge interface {
	Publish(principal string, env types.Envelope) error
	Available() bool
}

// Router interprets inbound frames and drives delivery through the
// registry and directory.
type Router struct {
	registry  *registry.Registry
	directory *directory.Directory
	verifier  auth.Verifier
	bridge    DeliveryBridge
	queueSize int
	logger    zerolog.Logger
}

// New creates a router over the given registry and directory.
func New(reg *registry.Registry, dir *directory.Directory, verifier auth.Verifier, queueSize int, logger zerolog.Logger) *Router {
	return &Router{
		registry:  reg,
		directory: dir,
		verifier:  verifier,
		queueSize: queueSize,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// SetBridge attaches a cross-instance delivery bridge. Optional; without
// one, delivery to principals unknown to this instance is simply skipped.
func (r *Router) SetBridge(b DeliveryBridge) { r.bridge = b }

// HandleConnection runs one connection from handshake to close. It
// blocks until the connection is torn down; run one goroutine per
// accepted socket. The claimed userId is trusted only after the
// credential verifies to the same principal.
func (r *Router) HandleConnection(conn types.Conn, token, claimedUserID string) {
	if token == "" || claimedUserID == "" {
		_ = conn.CloseWithStatus(types.ClosePolicyViolation, types.ReasonMissingHandshake)
		return
	}

	principal, err := r.verifier.Verify(token)
	if err != nil || principal != claimedUserID {
		r.logger.Warn().Err(err).Str("claimed", claimedUserID).Msg("handshake rejected")
		_ = conn.CloseWithStatus(types.ClosePolicyViolation, types.ReasonInvalidToken)
		return
	}

	client := registry.NewClient(principal, conn, r.queueSize)
	r.registry.Register(client)
	go client.WritePump()

	client.Enqueue(types.Envelope{
		Type: types.TypeConnection,
		Data: types.ConnectionAck{Status: "connected", UserID: principal},
	})

	// Frames on one connection are processed in arrival order; this loop
	// is the only reader.
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			break
		}
		r.dispatch(client, frame)
	}

	r.registry.Unregister(client)
}

func (r *Router) dispatch(c *registry.Client, frame types.ClientFrame) {
	switch frame.Type {
	case types.FrameSendMessage:
		r.handleSendMessage(c.Principal, frame)
	case types.FrameJoinConversation:
		r.handleJoin(c.Principal, frame)
	case types.FrameTyping:
		r.handleTyping(c.Principal, frame)
	default:
		// Malformed or unknown frames are dropped; the connection stays up.
		r.logger.Warn().
			Str("principal", c.Principal).
			Str("frame_type", frame.Type).
			Msg("dropping unknown frame")
	}
}

func (r *Router) handleSendMessage(from string, frame types.ClientFrame) {
	if frame.ToUserID == "" || frame.Text == "" {
		r.logger.Warn().Str("principal", from).Msg("dropping malformed send_message")
		return
	}

	conversationID := frame.ConversationID
	if conversationID == "" {
		conversationID = directory.DeriveConversationID(from, frame.ToUserID)
	}

	msg := types.Message{
		MessageID:      uuid.New().String(),
		ConversationID: conversationID,
		FromUserID:     from,
		ToUserID:       frame.ToUserID,
		Text:           frame.Text,
		Timestamp:      time.Now().UTC(),
		IsRead:         false,
	}

	r.directory.EnsureParticipants(conversationID, from, frame.ToUserID)

	// No store-and-forward: an offline recipient gets nothing from the
	// relay; history for them lives behind the REST service.
	delivered := r.registry.SendTo(frame.ToUserID, types.Envelope{
		Type:           types.TypeMessage,
		Data:           msg,
		ConversationID: conversationID,
	})
	if !delivered {
		r.handOffToBridge(frame.ToUserID, types.Envelope{
			Type:           types.TypeMessage,
			Data:           msg,
			ConversationID: conversationID,
		})
	}

	// message_sent acknowledges submission, not recipient receipt.
	r.registry.SendTo(from, types.Envelope{
		Type:           types.TypeMessageSent,
		Data:           msg,
		ConversationID: conversationID,
	})

	r.broadcastConversationUpdate(conversationID)

	r.logger.Debug().
		Str("message_id", msg.MessageID).
		Str("from", from).
		Str("to", frame.ToUserID).
		Bool("delivered", delivered).
		Msg("message routed")
}

func (r *Router) handleJoin(principal string, frame types.ClientFrame) {
	if frame.ConversationID == "" {
		r.logger.Warn().Str("principal", principal).Msg("dropping join without conversationId")
		return
	}
	r.directory.EnsureParticipants(frame.ConversationID, principal)
	r.logger.Debug().
		Str("principal", principal).
		Str("conversation_id", frame.ConversationID).
		Msg("joined conversation")
}

func (r *Router) handleTyping(from string, frame types.ClientFrame) {
	if frame.ToUserID == "" {
		return
	}
	// Best effort; the sender is not told whether it landed.
	r.registry.SendTo(frame.ToUserID, types.Envelope{
		Type:           types.TypeTyping,
		Data:           types.TypingEvent{FromUserID: from, IsTyping: frame.IsTyping},
		ConversationID: frame.ConversationID,
	})
}

// broadcastConversationUpdate fans out to every participant with a live
// local connection. Offline participants are skipped, not queued.
func (r *Router) broadcastConversationUpdate(conversationID string) {
	env := types.Envelope{
		Type:           types.TypeConversationUpdate,
		Data:           types.ConversationUpdate{ConversationID: conversationID},
		ConversationID: conversationID,
	}
	for _, principal := range r.directory.ParticipantsOf(conversationID) {
		if !r.registry.SendTo(principal, env) {
			r.handOffToBridge(principal, env)
		}
	}
}

func (r *Router) handOffToBridge(principal string, env types.Envelope) {
	if r.bridge == nil || !r.bridge.Available() {
		return
	}
	if err := r.bridge.Publish(principal, env); err != nil {
		r.logger.Error().Err(err).Str("principal", principal).Msg("bridge publish failed")
	}
}
