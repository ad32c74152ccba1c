package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
)

const lemonSqueezySubscriptionPayload = `{
	"meta": {
		"event_name": "subscription_created",
		"custom_data": {"user_id": "42"}
	},
	"data": {
		"type": "subscriptions",
		"id": "319743",
		"attributes": {
			"customer_id": 908123,
			"product_id": 22,
			"variant_id": 101,
			"status": "active",
			"renews_at": "2026-04-01T00:00:00Z",
			"ends_at": null
		}
	}
}`

func lemonSqueezyHeaders(eventName, eventID string) Header {
	return func(name string) string {
		switch name {
		case "X-Event-Name":
			return eventName
		case "X-Event-Id":
			return eventID
		}
		return ""
	}
}

func TestLemonSqueezyDecodeCreated(t *testing.T) {
	a := NewLemonSqueezyAdapter(Config{LemonSqueezySigningSecret: "whsec"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ev, err := a.Decode([]byte(lemonSqueezySubscriptionPayload), lemonSqueezyHeaders("subscription_created", "ls_evt_1"), now)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ev.Kind != EventSubscriptionCreated {
		t.Errorf("expected created kind, got %q", ev.Kind)
	}
	if ev.Provider != models.BillingProviderLemonSqueezy {
		t.Errorf("unexpected provider %q", ev.Provider)
	}
	if ev.ProviderEventID != "ls_evt_1" {
		t.Errorf("expected event id from header, got %q", ev.ProviderEventID)
	}
	if ev.UserRef != "42" {
		t.Errorf("expected user ref 42 from custom data, got %q", ev.UserRef)
	}
	if ev.SubscriptionID != "319743" {
		t.Errorf("unexpected subscription id %q", ev.SubscriptionID)
	}
	if ev.CustomerID != "908123" {
		t.Errorf("unexpected customer id %q", ev.CustomerID)
	}
	if ev.ProductID != "101" {
		t.Errorf("expected variant id as product ref, got %q", ev.ProductID)
	}
	if ev.RenewsAt == nil || !ev.RenewsAt.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected renews_at %v", ev.RenewsAt)
	}
	if ev.EndsAt != nil {
		t.Errorf("expected nil ends_at, got %v", ev.EndsAt)
	}
	if !ev.OccurredAt.Equal(now) {
		t.Errorf("occurred_at must come from ingestion, got %v", ev.OccurredAt)
	}
}

func TestLemonSqueezyDecodeMalformed(t *testing.T) {
	a := NewLemonSqueezyAdapter(Config{})
	_, err := a.Decode([]byte(`{"meta": truncated`), lemonSqueezyHeaders("subscription_created", ""), time.Now().UTC())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	// Structurally valid JSON without a subscription id is malformed too.
	_, err = a.Decode([]byte(`{"meta":{"event_name":"subscription_created"},"data":{"type":"subscriptions","id":""}}`),
		lemonSqueezyHeaders("subscription_created", ""), time.Now().UTC())
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload for missing id, got %v", err)
	}
}

func TestLemonSqueezyDecodeUnsupportedEvent(t *testing.T) {
	a := NewLemonSqueezyAdapter(Config{})
	_, err := a.Decode([]byte(`{"meta":{"event_name":"order_created"},"data":{"type":"orders","id":"1"}}`),
		lemonSqueezyHeaders("order_created", ""), time.Now().UTC())
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestLemonSqueezyEventKind(t *testing.T) {
	cases := []struct {
		eventName string
		status    string
		want      EventKind
	}{
		{"subscription_created", "active", EventSubscriptionCreated},
		{"subscription_resumed", "active", EventSubscriptionCreated},
		{"subscription_unpaused", "active", EventSubscriptionCreated},
		{"subscription_cancelled", "cancelled", EventSubscriptionCanceled},
		{"subscription_expired", "expired", EventSubscriptionRevoked},
		{"subscription_updated", "active", EventSubscriptionCreated},
		{"subscription_updated", "cancelled", EventSubscriptionCanceled},
		{"subscription_updated", "expired", EventSubscriptionRevoked},
	}
	for _, c := range cases {
		got, err := lemonSqueezyEventKind(c.eventName, c.status)
		if err != nil {
			t.Errorf("%s/%s: unexpected error %v", c.eventName, c.status, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s/%s: expected %q, got %q", c.eventName, c.status, c.want, got)
		}
	}

	if _, err := lemonSqueezyEventKind("subscription_payment_success", ""); !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("payment events must be unsupported, got %v", err)
	}
}

func TestLemonSqueezyEventTypeFallsBackToBody(t *testing.T) {
	a := NewLemonSqueezyAdapter(Config{})
	empty := func(string) string { return "" }
	got := a.EventType([]byte(`{"meta":{"event_name":"subscription_cancelled"}}`), empty)
	if got != "subscription_cancelled" {
		t.Fatalf("expected event name from body, got %q", got)
	}
}
