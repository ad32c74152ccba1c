package billing

import (
	"errors"
	"strings"
	"time"

	"github.com/MartinHagen/Tempora/internal/pkg/env"
)

// EventKind is the provider-agnostic classification of a billing notification.
type EventKind string

const (
	EventSubscriptionCreated  EventKind = "subscription_created"
	EventSubscriptionCanceled EventKind = "subscription_canceled"
	EventSubscriptionRevoked  EventKind = "subscription_revoked"
)

// CanonicalEvent is the normalized representation of a provider billing
// notification. Decoding either produces a fully validated event or fails;
// partial events are never passed into the state machine.
type CanonicalEvent struct {
	ProviderEventID string
	Provider        string    `validate:"required"`
	Kind            EventKind `validate:"required"`
	UserRef         string
	SubscriptionID  string `validate:"required"`
	CustomerID      string
	ProductID       string
	BillingInterval string
	RenewsAt        *time.Time
	EndsAt          *time.Time
	// OccurredAt is assigned at ingestion; payload timestamps are not trusted.
	OccurredAt time.Time
}

// Sentinel errors for the webhook processing taxonomy. Only ErrInvalidSignature
// surfaces as a non-2xx response; the rest are absorbed by the dispatcher.
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnsupportedEvent = errors.New("unsupported webhook event type")
	ErrStaleEvent       = errors.New("event references superseded subscription")
	ErrUnmappedUser     = errors.New("no local user for billing event")
	ErrUnknownProvider  = errors.New("unknown billing provider")
)

// Config carries the webhook secrets injected into the dispatcher at
// construction. Business logic never reads the process environment directly.
type Config struct {
	LemonSqueezySigningSecret string
	StripeSigningSecret       string
	// EventRetention bounds how long processed ledger rows are kept before
	// pruning; providers do not replay indefinitely.
	EventRetention time.Duration
}

// ConfigFromEnv builds the billing configuration at bootstrap time.
func ConfigFromEnv() Config {
	retention := time.Duration(env.GetEnvInt("BILLING_EVENT_RETENTION_DAYS", 90)) * 24 * time.Hour
	return Config{
		LemonSqueezySigningSecret: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_SIGNING_SECRET", "")),
		StripeSigningSecret:       strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		EventRetention:            retention,
	}
}
