package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
)

// LemonSqueezyAdapter verifies and decodes Lemon Squeezy subscription
// webhooks. Lemon Squeezy signs the raw body with HMAC-SHA256 (hex) in the
// X-Signature header and names the event in X-Event-Name.
type LemonSqueezyAdapter struct {
	SigningSecret string
}

func NewLemonSqueezyAdapter(cfg Config) *LemonSqueezyAdapter {
	return &LemonSqueezyAdapter{SigningSecret: cfg.LemonSqueezySigningSecret}
}

func (a *LemonSqueezyAdapter) Name() string {
	return models.BillingProviderLemonSqueezy
}

func (a *LemonSqueezyAdapter) Verify(rawBody []byte, hdr Header) bool {
	return VerifyHMACSHA256(rawBody, hdr("X-Signature"), a.SigningSecret)
}

func (a *LemonSqueezyAdapter) EventID(_ []byte, hdr Header) string {
	return strings.TrimSpace(hdr("X-Event-Id"))
}

func (a *LemonSqueezyAdapter) EventType(rawBody []byte, hdr Header) string {
	if name := strings.TrimSpace(hdr("X-Event-Name")); name != "" {
		return name
	}
	var probe struct {
		Meta struct {
			EventName string `json:"event_name"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.Meta.EventName)
}

type lemonSqueezyPayload struct {
	Meta struct {
		EventName  string `json:"event_name"`
		CustomData struct {
			UserID string `json:"user_id"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			CustomerID int64   `json:"customer_id"`
			ProductID  int64   `json:"product_id"`
			VariantID  int64   `json:"variant_id"`
			Status     string  `json:"status"`
			RenewsAt   *string `json:"renews_at"`
			EndsAt     *string `json:"ends_at"`
		} `json:"attributes"`
	} `json:"data"`
}

func (a *LemonSqueezyAdapter) Decode(rawBody []byte, hdr Header, now time.Time) (*CanonicalEvent, error) {
	var raw lemonSqueezyPayload
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	eventName := strings.TrimSpace(raw.Meta.EventName)
	if eventName == "" {
		eventName = a.EventType(rawBody, hdr)
	}
	if raw.Data.Type != "" && raw.Data.Type != "subscriptions" {
		return nil, ErrUnsupportedEvent
	}

	kind, err := lemonSqueezyEventKind(eventName, raw.Data.Attributes.Status)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Data.ID) == "" {
		return nil, fmt.Errorf("%w: missing subscription id", ErrMalformedPayload)
	}

	ev := &CanonicalEvent{
		ProviderEventID: a.EventID(rawBody, hdr),
		Provider:        models.BillingProviderLemonSqueezy,
		Kind:            kind,
		UserRef:         strings.TrimSpace(raw.Meta.CustomData.UserID),
		SubscriptionID:  strings.TrimSpace(raw.Data.ID),
		CustomerID:      formatLemonSqueezyID(raw.Data.Attributes.CustomerID),
		ProductID:       formatLemonSqueezyID(raw.Data.Attributes.VariantID),
		BillingInterval: models.BillingIntervalUnknown,
		RenewsAt:        parseLemonSqueezyTime(raw.Data.Attributes.RenewsAt),
		EndsAt:          parseLemonSqueezyTime(raw.Data.Attributes.EndsAt),
		OccurredAt:      now,
	}
	return ev, nil
}

func lemonSqueezyEventKind(eventName, status string) (EventKind, error) {
	switch strings.ToLower(eventName) {
	case "subscription_created", "subscription_resumed", "subscription_unpaused":
		return EventSubscriptionCreated, nil
	case "subscription_cancelled":
		return EventSubscriptionCanceled, nil
	case "subscription_expired":
		return EventSubscriptionRevoked, nil
	case "subscription_updated":
		// Updates carry the resulting status; classify from it.
		switch strings.ToLower(strings.TrimSpace(status)) {
		case "active", "on_trial", "past_due":
			return EventSubscriptionCreated, nil
		case "cancelled":
			return EventSubscriptionCanceled, nil
		case "expired", "unpaid":
			return EventSubscriptionRevoked, nil
		}
		return "", ErrUnsupportedEvent
	default:
		return "", ErrUnsupportedEvent
	}
}

func formatLemonSqueezyID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func parseLemonSqueezyTime(raw *string) *time.Time {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil
	}
	return &t
}
