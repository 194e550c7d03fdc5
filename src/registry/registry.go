// Package registry owns the mapping from principals to their single live
// connection. All access is mutex-guarded; at most one connection is
// registered per principal at any instant.
package registry

import (
	"sync"

	"github.com/mentorlink/relay/src/types"
	"github.com/rs/zerolog"
)

// Registry maps each principal to its live client.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Register stores the client as the principal's live connection. An
// existing connection for the same principal is superseded: closed with
// a normal close code so the older device does not reconnect-fight the
// newer one. Always succeeds.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	prev := r.clients[c.Principal]
	r.clients[c.Principal] = c
	r.mu.Unlock()

	if prev != nil {
		prev.Close(types.CloseNormal, types.ReasonSuperseded)
		r.logger.Info().Str("principal", c.Principal).Msg("connection superseded")
	}
	r.logger.Info().Str("principal", c.Principal).Msg("connection registered")
}

// Unregister removes the mapping only if the stored client is the one
// given. A stale close arriving after a supersession must not evict the
// newer connection.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	current, ok := r.clients[c.Principal]
	if !ok || current != c {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.Principal)
	r.mu.Unlock()

	c.Close(0, "")
	r.logger.Info().Str("principal", c.Principal).Msg("connection unregistered")
}

// Lookup returns the principal's live client, if any. Never blocks on I/O.
func (r *Registry) Lookup(principal string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[principal]
	return c, ok
}

// SendTo pushes an envelope to the principal's connection. It reports
// false when the principal is offline or the client's queue is full;
// non-delivery is the caller's policy question, not an error.
func (r *Registry) SendTo(principal string, env types.Envelope) bool {
	c, ok := r.Lookup(principal)
	if !ok {
		return false
	}
	if !c.Enqueue(env) {
		r.logger.Warn().Str("principal", principal).Msg("send buffer full, dropping")
		return false
	}
	return true
}

// Principals returns the identifiers of all registered connections.
func (r *Registry) Principals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
