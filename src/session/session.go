// Package session maintains one logical client connection to the relay,
// reconnecting with exponential backoff after abnormal closures.
package session

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/mentorlink/relay/src/types"
	"github.com/rs/zerolog"
)

// State is the manager's connection state.
type State int32

const (
	// StateDisconnected: no connection and no dial in progress. Either
	// the initial state or waiting on a scheduled reconnect.
	StateDisconnected State = iota
	// StateConnecting: a dial is in progress.
	StateConnecting
	// StateOpen: the connection is live.
	StateOpen
	// StateTerminal: shut down or retries exhausted; a new manager (or
	// re-login) is required to connect again.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Config holds session parameters.
type Config struct {
	// URL is the relay WebSocket endpoint, e.g. "ws://localhost:5001/ws".
	URL string
	// UserID is the principal identifier to claim in the handshake.
	UserID string
	// Token is the bearer credential for the handshake.
	Token string
	// MaxAttempts bounds consecutive reconnection attempts. Default 5.
	MaxAttempts int
	// BackoffCap bounds the reconnect delay. Default 30s.
	BackoffCap time.Duration
}

// Dialer opens a connection to the relay.
type Dialer interface {
	Dial(rawURL string) (types.Conn, error)
}

// Manager owns one logical relay session. Inbound envelopes land in a
// single last-received slot, overwritten on each arrival; a consumer
// slower than the arrival rate observes only the latest envelope.
type Manager struct {
	cfg    Config
	dialer Dialer
	logger zerolog.Logger

	mu       sync.Mutex
	state    State
	conn     types.Conn
	attempt  int
	timer    *time.Timer
	shutdown bool

	last     atomic.Pointer[types.Envelope]
	onChange func(State)
}

// NewManager creates a session manager. A nil dialer gets the production
// WebSocket dialer.
func NewManager(cfg Config, dialer Dialer, logger zerolog.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	if dialer == nil {
		dialer = &wsDialer{}
	}
	return &Manager{
		cfg:    cfg,
		dialer: dialer,
		logger: logger.With().Str("component", "session").Logger(),
	}
}

// OnStateChange registers a callback invoked on every state transition.
// Must be called before Connect.
func (m *Manager) OnStateChange(cb func(State)) { m.onChange = cb }

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastEnvelope returns the most recently received envelope, or nil.
// Earlier envelopes are overwritten, never queued.
func (m *Manager) LastEnvelope() *types.Envelope {
	return m.last.Load()
}

// Connect initiates the session. Missing credentials are a precondition,
// not a failure: the manager stays disconnected and does nothing.
func (m *Manager) Connect() {
	if m.cfg.UserID == "" || m.cfg.Token == "" {
		m.logger.Debug().Msg("no principal or credential, staying disconnected")
		return
	}

	m.mu.Lock()
	if m.shutdown || m.state != StateDisconnected || m.timer != nil {
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.dial()
}

// Send writes a frame to the relay. When the session is not open this is
// a no-op with a warning; frames are never buffered for later replay.
func (m *Manager) Send(frame types.ClientFrame) {
	m.mu.Lock()
	conn := m.conn
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		m.logger.Warn().Str("frame_type", frame.Type).Msg("session not open, dropping frame")
		return
	}
	if err := conn.WriteJSON(frame); err != nil {
		m.logger.Warn().Err(err).Msg("send failed")
	}
}

// Shutdown tears the session down deterministically: the pending
// reconnect timer (if any) is cancelled, the open connection (if any) is
// closed exactly once with a normal close code, and no retry fires
// afterwards. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateTerminal)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.CloseWithStatus(types.CloseNormal, "client shutdown")
		_ = conn.Close()
	}
	m.logger.Info().Msg("session shut down")
}

// dial attempts one connection. Called from Connect and from the
// reconnect timer, never concurrently: only one attempt is in flight at
// a time.
func (m *Manager) dial() {
	conn, err := m.dialer.Dial(m.handshakeURL())
	if err != nil {
		m.logger.Warn().Err(err).Int("attempt", m.attemptNow()).Msg("dial failed")
		m.mu.Lock()
		if m.shutdown {
			m.mu.Unlock()
			return
		}
		m.scheduleRetryLocked()
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		_ = conn.CloseWithStatus(types.CloseNormal, "client shutdown")
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.setStateLocked(StateOpen)
	m.mu.Unlock()

	m.logger.Info().Str("user_id", m.cfg.UserID).Msg("session open")
	go m.readLoop(conn)
}

// readLoop consumes inbound envelopes until the connection closes.
func (m *Manager) readLoop(conn types.Conn) {
	for {
		var env types.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			m.onClosed(err)
			return
		}
		m.last.Store(&env)
	}
}

// onClosed classifies a closure and schedules a retry when it was
// abnormal. A normal close (our own shutdown, or the peer closing with
// code 1000, e.g. supersession) is terminal.
func (m *Manager) onClosed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return
	}
	m.conn = nil

	if code := closeStatus(err); code == types.CloseNormal {
		m.logger.Info().Msg("peer closed normally, not reconnecting")
		m.setStateLocked(StateTerminal)
		return
	}

	m.logger.Warn().Err(err).Msg("connection lost")
	m.scheduleRetryLocked()
}

// scheduleRetryLocked arms the single reconnect timer with
// min(2^attempt, cap) seconds. Caller holds m.mu.
func (m *Manager) scheduleRetryLocked() {
	if m.attempt >= m.cfg.MaxAttempts {
		m.logger.Warn().Int("attempts", m.attempt).Msg("reconnect attempts exhausted")
		m.setStateLocked(StateTerminal)
		return
	}

	delay := backoffDelay(m.attempt, m.cfg.BackoffCap)
	m.setStateLocked(StateDisconnected)
	m.logger.Info().
		Dur("delay", delay).
		Int("attempt", m.attempt+1).
		Msg("reconnect scheduled")

	m.timer = time.AfterFunc(delay, m.retryFired)
}

// retryFired runs when the backoff timer elapses. It re-checks shutdown
// under the mutex so a timer racing Shutdown never dials.
func (m *Manager) retryFired() {
	m.mu.Lock()
	if m.shutdown || m.timer == nil {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.attempt++
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	m.dial()
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onChange != nil {
		cb := m.onChange
		go cb(s)
	}
}

func (m *Manager) attemptNow() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// handshakeURL appends the token and userId query parameters.
func (m *Manager) handshakeURL() string {
	return fmt.Sprintf("%s?token=%s&userId=%s",
		m.cfg.URL, url.QueryEscape(m.cfg.Token), url.QueryEscape(m.cfg.UserID))
}

// backoffDelay computes min(2^attempt, limit) seconds.
func backoffDelay(attempt int, limit time.Duration) time.Duration {
	if attempt > 30 {
		return limit
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > limit {
		return limit
	}
	return d
}

// closeStatus extracts the WebSocket close code carried by err, or -1.
func closeStatus(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}
