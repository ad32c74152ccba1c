package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeAdapter verifies and decodes Stripe billing webhooks using the
// official SDK's signature scheme (Stripe-Signature header, signing secret
// configured out-of-band).
type StripeAdapter struct {
	SigningSecret string
}

func NewStripeAdapter(cfg Config) *StripeAdapter {
	return &StripeAdapter{SigningSecret: cfg.StripeSigningSecret}
}

func (a *StripeAdapter) Name() string {
	return models.BillingProviderStripe
}

func (a *StripeAdapter) Verify(rawBody []byte, hdr Header) bool {
	if strings.TrimSpace(a.SigningSecret) == "" {
		return false
	}
	return webhook.ValidatePayload(rawBody, hdr("Stripe-Signature"), a.SigningSecret) == nil
}

func (a *StripeAdapter) EventID(rawBody []byte, _ Header) string {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.ID)
}

func (a *StripeAdapter) EventType(rawBody []byte, _ Header) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.Type)
}

func (a *StripeAdapter) Decode(rawBody []byte, hdr Header, now time.Time) (*CanonicalEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing event data", ErrMalformedPayload)
	}

	switch event.Type {
	case "checkout.session.completed":
		return a.decodeCheckoutSession(event, now)
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		return a.decodeSubscription(event, now)
	default:
		return nil, ErrUnsupportedEvent
	}
}

func (a *StripeAdapter) decodeCheckoutSession(event stripe.Event, now time.Time) (*CanonicalEvent, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		// One-time payments carry no subscription and are not handled here.
		return nil, ErrUnsupportedEvent
	}

	ev := &CanonicalEvent{
		ProviderEventID: event.ID,
		Provider:        models.BillingProviderStripe,
		Kind:            EventSubscriptionCreated,
		UserRef:         strings.TrimSpace(session.ClientReferenceID),
		SubscriptionID:  session.Subscription.ID,
		BillingInterval: models.BillingIntervalUnknown,
		OccurredAt:      now,
	}
	if session.Customer != nil {
		ev.CustomerID = session.Customer.ID
	}
	return ev, nil
}

func (a *StripeAdapter) decodeSubscription(event stripe.Event, now time.Time) (*CanonicalEvent, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrMalformedPayload)
	}

	ev := &CanonicalEvent{
		ProviderEventID: event.ID,
		Provider:        models.BillingProviderStripe,
		Kind:            stripeSubscriptionKind(event.Type, &sub),
		UserRef:         strings.TrimSpace(sub.Metadata["user_id"]),
		SubscriptionID:  sub.ID,
		BillingInterval: models.BillingIntervalUnknown,
		OccurredAt:      now,
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			ev.ProductID = item.Price.ID
			if item.Price.Recurring != nil {
				ev.BillingInterval = stripeInterval(item.Price.Recurring.Interval)
			}
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			if ev.Kind == EventSubscriptionCreated {
				ev.RenewsAt = &end
			} else {
				ev.EndsAt = &end
			}
		}
	}
	if sub.EndedAt > 0 {
		ended := time.Unix(sub.EndedAt, 0).UTC()
		ev.EndsAt = &ended
	}
	return ev, nil
}

func stripeSubscriptionKind(eventType stripe.EventType, sub *stripe.Subscription) EventKind {
	if eventType == "customer.subscription.deleted" {
		return EventSubscriptionRevoked
	}
	switch sub.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return EventSubscriptionRevoked
	default:
		if sub.CancelAtPeriodEnd {
			return EventSubscriptionCanceled
		}
		return EventSubscriptionCreated
	}
}

func stripeInterval(interval stripe.PriceRecurringInterval) string {
	switch interval {
	case stripe.PriceRecurringIntervalMonth:
		return models.BillingIntervalMonth
	case stripe.PriceRecurringIntervalYear:
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalUnknown
	}
}
