package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
	stripe "github.com/stripe/stripe-go/v82"
)

const stripeSubscriptionCreatedPayload = `{
	"id": "evt_1",
	"type": "customer.subscription.created",
	"data": {
		"object": {
			"id": "sub_ABC",
			"status": "active",
			"cancel_at_period_end": false,
			"customer": "cus_9",
			"metadata": {"user_id": "42"},
			"items": {
				"data": [
					{
						"current_period_end": 1775001600,
						"price": {
							"id": "price_pro_month",
							"recurring": {"interval": "month"}
						}
					}
				]
			}
		}
	}
}`

const stripeSubscriptionDeletedPayload = `{
	"id": "evt_2",
	"type": "customer.subscription.deleted",
	"data": {
		"object": {
			"id": "sub_ABC",
			"status": "canceled",
			"customer": "cus_9",
			"ended_at": 1775001600
		}
	}
}`

const stripeCheckoutCompletedPayload = `{
	"id": "evt_3",
	"type": "checkout.session.completed",
	"data": {
		"object": {
			"id": "cs_test_1",
			"client_reference_id": "42",
			"customer": "cus_9",
			"subscription": "sub_ABC"
		}
	}
}`

func TestStripeDecodeSubscriptionCreated(t *testing.T) {
	a := NewStripeAdapter(Config{StripeSigningSecret: "whsec"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ev, err := a.Decode([]byte(stripeSubscriptionCreatedPayload), func(string) string { return "" }, now)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Kind != EventSubscriptionCreated {
		t.Errorf("expected created kind, got %q", ev.Kind)
	}
	if ev.Provider != models.BillingProviderStripe {
		t.Errorf("unexpected provider %q", ev.Provider)
	}
	if ev.ProviderEventID != "evt_1" {
		t.Errorf("unexpected event id %q", ev.ProviderEventID)
	}
	if ev.UserRef != "42" {
		t.Errorf("expected user ref from metadata, got %q", ev.UserRef)
	}
	if ev.SubscriptionID != "sub_ABC" || ev.CustomerID != "cus_9" {
		t.Errorf("unexpected identifiers: sub=%q customer=%q", ev.SubscriptionID, ev.CustomerID)
	}
	if ev.ProductID != "price_pro_month" {
		t.Errorf("expected price id as product ref, got %q", ev.ProductID)
	}
	if ev.BillingInterval != models.BillingIntervalMonth {
		t.Errorf("expected month interval, got %q", ev.BillingInterval)
	}
	if ev.RenewsAt == nil || ev.RenewsAt.Unix() != 1775001600 {
		t.Errorf("unexpected renews_at %v", ev.RenewsAt)
	}
}

func TestStripeDecodeSubscriptionDeleted(t *testing.T) {
	a := NewStripeAdapter(Config{})
	now := time.Now().UTC()

	ev, err := a.Decode([]byte(stripeSubscriptionDeletedPayload), func(string) string { return "" }, now)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Kind != EventSubscriptionRevoked {
		t.Errorf("deleted subscription must map to revoked, got %q", ev.Kind)
	}
	if ev.UserRef != "" {
		t.Errorf("expected empty user ref, got %q", ev.UserRef)
	}
	if ev.EndsAt == nil || ev.EndsAt.Unix() != 1775001600 {
		t.Errorf("expected ends_at from ended_at, got %v", ev.EndsAt)
	}
}

func TestStripeDecodeCheckoutCompleted(t *testing.T) {
	a := NewStripeAdapter(Config{})

	ev, err := a.Decode([]byte(stripeCheckoutCompletedPayload), func(string) string { return "" }, time.Now().UTC())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Kind != EventSubscriptionCreated {
		t.Errorf("checkout completion must map to created, got %q", ev.Kind)
	}
	if ev.UserRef != "42" {
		t.Errorf("expected client_reference_id as user ref, got %q", ev.UserRef)
	}
	if ev.SubscriptionID != "sub_ABC" {
		t.Errorf("unexpected subscription id %q", ev.SubscriptionID)
	}
}

func TestStripeDecodeIgnoresNonBillingEvents(t *testing.T) {
	a := NewStripeAdapter(Config{})
	payload := `{"id":"evt_4","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`
	_, err := a.Decode([]byte(payload), func(string) string { return "" }, time.Now().UTC())
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}

	// One-time checkout without a subscription is not a billing event either.
	oneTime := `{"id":"evt_5","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`
	_, err = a.Decode([]byte(oneTime), func(string) string { return "" }, time.Now().UTC())
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent for one-time checkout, got %v", err)
	}
}

func TestStripeSubscriptionKind(t *testing.T) {
	if got := stripeSubscriptionKind("customer.subscription.deleted", &stripe.Subscription{Status: stripe.SubscriptionStatusActive}); got != EventSubscriptionRevoked {
		t.Errorf("deleted event: expected revoked, got %q", got)
	}
	if got := stripeSubscriptionKind("customer.subscription.updated", &stripe.Subscription{Status: stripe.SubscriptionStatusCanceled}); got != EventSubscriptionRevoked {
		t.Errorf("canceled status: expected revoked, got %q", got)
	}
	if got := stripeSubscriptionKind("customer.subscription.updated", &stripe.Subscription{Status: stripe.SubscriptionStatusActive, CancelAtPeriodEnd: true}); got != EventSubscriptionCanceled {
		t.Errorf("cancel_at_period_end: expected canceled, got %q", got)
	}
	if got := stripeSubscriptionKind("customer.subscription.updated", &stripe.Subscription{Status: stripe.SubscriptionStatusActive}); got != EventSubscriptionCreated {
		t.Errorf("active update: expected created, got %q", got)
	}
}

func TestStripeVerifyRequiresSecret(t *testing.T) {
	a := NewStripeAdapter(Config{})
	if a.Verify([]byte(`{}`), func(string) string { return "t=1,v1=abc" }) {
		t.Fatal("verification must fail without a configured secret")
	}
}
