// Package directory tracks which principals belong to which
// conversation. Membership is learned from message traffic and only ever
// grows; the durable conversation record lives in the REST service.
package directory

import (
	"strings"
	"sync"

	"github.com/samber/lo"
)

// Directory maps conversation identifiers to their participant sets.
type Directory struct {
	mu            sync.RWMutex
	conversations map[string]map[string]struct{}
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{conversations: make(map[string]map[string]struct{})}
}

// DeriveConversationID builds the canonical identifier for the
// conversation between two principals. The pair is unordered:
// DeriveConversationID(a, b) == DeriveConversationID(b, a).
func DeriveConversationID(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return "conv-" + a + "-" + b
}

// EnsureParticipants adds the given principals to the conversation,
// creating it on first reference. Idempotent and safe to call
// concurrently for the same conversation.
func (d *Directory) EnsureParticipants(conversationID string, principals ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.conversations[conversationID]
	if !ok {
		set = make(map[string]struct{}, len(principals))
		d.conversations[conversationID] = set
	}
	for _, p := range principals {
		set[p] = struct{}{}
	}
}

// ParticipantsOf returns the principals known to belong to the
// conversation, or nil if it has never been referenced.
func (d *Directory) ParticipantsOf(conversationID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.conversations[conversationID]
	if !ok {
		return nil
	}
	return lo.Keys(set)
}

// Count returns the number of known conversations.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conversations)
}
