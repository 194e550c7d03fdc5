// Package bridge relays envelopes between relay instances so a message
// can reach a principal connected elsewhere. Entirely optional: the
// relay is single-process by default and behaves identically with no
// bridge attached. A bridge never queues for offline principals.
package bridge

import "github.com/mentorlink/relay/src/types"

// Bridge is the interface for cross-instance envelope delivery.
type Bridge interface {
	// Publish hands an envelope for the principal to other instances.
	Publish(principal string, env types.Envelope) error

	// Start begins listening for envelopes from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// DeliveryTarget receives envelopes arriving from other instances.
// Satisfied by the connection registry.
type DeliveryTarget interface {
	SendTo(principal string, env types.Envelope) bool
}
