package billing

import "time"

// Header resolves a request header value by name. Passing a lookup function
// keeps the adapters independent of the HTTP framework.
type Header func(name string) string

// ProviderAdapter is the per-provider capability set consumed by the shared
// webhook dispatcher. One adapter exists per payment provider; everything
// downstream of it (ledger, state machine, persistence) is provider-neutral.
type ProviderAdapter interface {
	Name() string

	// Verify checks payload authenticity against the exact raw request body.
	Verify(rawBody []byte, hdr Header) bool

	// EventID extracts the provider-supplied event identifier used for
	// deduplication, or "" when the provider does not furnish one.
	EventID(rawBody []byte, hdr Header) string

	// EventType returns the provider-specific event type for the ledger row.
	EventType(rawBody []byte, hdr Header) string

	// Decode maps the provider payload to a validated CanonicalEvent.
	// It returns ErrUnsupportedEvent for event types the engine does not
	// handle and ErrMalformedPayload (wrapped) for undecodable bodies.
	Decode(rawBody []byte, hdr Header, now time.Time) (*CanonicalEvent, error)
}
