package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mentorlink/relay/src/types"
	"github.com/rs/zerolog"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu          sync.Mutex
	written     []types.Envelope
	closed      bool
	closeCode   int
	closeReason string
	closedCh    chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{closedCh: make(chan struct{})}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env, ok := v.(types.Envelope); ok {
		m.written = append(m.written, env)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	<-m.closedCh
	return fmt.Errorf("connection closed")
}

func (m *mockConn) CloseWithStatus(code int, reason string) error {
	m.mu.Lock()
	m.closeCode = code
	m.closeReason = reason
	m.mu.Unlock()
	return m.Close()
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []types.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]types.Envelope, len(m.written))
	copy(cp, m.written)
	return cp
}

func (m *mockConn) closeStatus() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode, m.closeReason
}

// registerClient creates, registers, and starts a client with a mock conn.
func registerClient(t *testing.T, r *Registry, principal string) (*Client, *mockConn) {
	t.Helper()
	conn := newMockConn()
	c := NewClient(principal, conn, 16)
	r.Register(c)
	go c.WritePump()
	return c, conn
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(zerolog.Nop())

	c, _ := registerClient(t, r, "u1")

	got, ok := r.Lookup("u1")
	if !ok || got != c {
		t.Fatal("expected lookup to return the registered client")
	}
	if _, ok := r.Lookup("u2"); ok {
		t.Error("expected lookup miss for unregistered principal")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 registered connection, got %d", r.Count())
	}
}

func TestRegisterSupersedesExisting(t *testing.T) {
	r := New(zerolog.Nop())

	_, oldConn := registerClient(t, r, "u1")
	newClient, _ := registerClient(t, r, "u1")

	time.Sleep(20 * time.Millisecond)

	code, reason := oldConn.closeStatus()
	if code != types.CloseNormal {
		t.Errorf("expected superseded close code %d, got %d", types.CloseNormal, code)
	}
	if reason != types.ReasonSuperseded {
		t.Errorf("expected reason %q, got %q", types.ReasonSuperseded, reason)
	}

	got, ok := r.Lookup("u1")
	if !ok || got != newClient {
		t.Fatal("expected newer client to stay registered")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 connection after supersession, got %d", r.Count())
	}
}

func TestUnregisterIgnoresStaleClient(t *testing.T) {
	r := New(zerolog.Nop())

	oldClient, _ := registerClient(t, r, "u1")
	newClient, _ := registerClient(t, r, "u1")

	// A stale close from the superseded connection must not evict the
	// newer one.
	r.Unregister(oldClient)

	got, ok := r.Lookup("u1")
	if !ok || got != newClient {
		t.Fatal("stale unregister must not evict the newer connection")
	}

	r.Unregister(newClient)
	if _, ok := r.Lookup("u1"); ok {
		t.Error("expected principal gone after unregistering current client")
	}
}

func TestSendToDeliversAndReportsOffline(t *testing.T) {
	r := New(zerolog.Nop())
	_, conn := registerClient(t, r, "u1")

	env := types.Envelope{Type: types.TypeMessage}
	if !r.SendTo("u1", env) {
		t.Fatal("send to registered principal should report delivered")
	}
	time.Sleep(20 * time.Millisecond)

	if got := conn.getWritten(); len(got) != 1 {
		t.Fatalf("expected 1 written envelope, got %d", len(got))
	}

	if r.SendTo("offline", env) {
		t.Error("send to unknown principal should report not delivered")
	}
}

func TestSendToReportsFullQueue(t *testing.T) {
	r := New(zerolog.Nop())

	// No WritePump draining, so the queue fills up.
	conn := newMockConn()
	c := NewClient("u1", conn, 2)
	r.Register(c)

	env := types.Envelope{Type: types.TypeMessage}
	if !r.SendTo("u1", env) || !r.SendTo("u1", env) {
		t.Fatal("first two sends should fit the queue")
	}
	if r.SendTo("u1", env) {
		t.Error("send to a full queue should report not delivered")
	}
}

func TestSendToClosedClientNotDelivered(t *testing.T) {
	r := New(zerolog.Nop())
	c, _ := registerClient(t, r, "u1")

	c.Close(0, "")
	time.Sleep(20 * time.Millisecond)

	if r.SendTo("u1", types.Envelope{Type: types.TypeMessage}) {
		t.Error("send to closed client should report not delivered")
	}
}

func TestAtMostOneConnectionPerPrincipal(t *testing.T) {
	r := New(zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newMockConn()
			c := NewClient("u1", conn, 4)
			r.Register(c)
			go c.WritePump()
		}()
	}
	wg.Wait()

	if r.Count() != 1 {
		t.Fatalf("expected exactly 1 connection for the principal, got %d", r.Count())
	}
	if ids := r.Principals(); len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("unexpected principals %v", ids)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	conn := newMockConn()
	c := NewClient("u1", conn, 4)

	c.Close(types.CloseNormal, "bye")
	c.Close(types.ClosePolicyViolation, "second close must not win")

	select {
	case <-c.Done():
	default:
		t.Fatal("expected done channel closed")
	}
}
