package types

import "time"

// EnvelopeType discriminates server-to-client envelopes.
type EnvelopeType string

const (
	TypeConnection         EnvelopeType = "connection"
	TypeMessage            EnvelopeType = "message"
	TypeMessageSent        EnvelopeType = "message_sent"
	TypeConversationUpdate EnvelopeType = "conversation_update"
	TypeTyping             EnvelopeType = "typing"
)

// Client frame types accepted while a connection is active.
const (
	FrameSendMessage      = "send_message"
	FrameJoinConversation = "join_conversation"
	FrameTyping           = "typing"
)

// Envelope is the wire wrapper for everything the server pushes.
type Envelope struct {
	Type           EnvelopeType `json:"type"`
	Data           any          `json:"data,omitempty"`
	ConversationID string       `json:"conversationId,omitempty"`
}

// ClientFrame is a frame received from a client. Fields are flat;
// which ones are meaningful depends on Type.
type ClientFrame struct {
	Type           string `json:"type"`
	ToUserID       string `json:"toUserId,omitempty"`
	Text           string `json:"text,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	IsTyping       bool   `json:"isTyping,omitempty"`
}

// Message is the payload of "message" and "message_sent" envelopes.
// IsRead is always false here; read-state transitions belong to the
// REST service.
type Message struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	FromUserID     string    `json:"fromUserId"`
	ToUserID       string    `json:"toUserId"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	IsRead         bool      `json:"isRead"`
}

// ConnectionAck is the payload of the "connection" envelope sent after a
// successful handshake.
type ConnectionAck struct {
	Status string `json:"status"`
	UserID string `json:"userId"`
}

// TypingEvent is the payload of a relayed "typing" envelope.
type TypingEvent struct {
	FromUserID string `json:"fromUserId"`
	IsTyping   bool   `json:"isTyping"`
}

// ConversationUpdate is the payload of a "conversation_update" envelope.
type ConversationUpdate struct {
	ConversationID string `json:"conversationId"`
}

// WebSocket close codes used on the wire.
const (
	CloseNormal          = 1000
	ClosePolicyViolation = 1008
)

// Close reasons.
const (
	ReasonSuperseded       = "superseded"
	ReasonInvalidToken     = "invalid token"
	ReasonMissingHandshake = "missing token/userId"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	// CloseWithStatus sends a close frame with the given code and reason,
	// then tears the connection down.
	CloseWithStatus(code int, reason string) error
	Close() error
}
