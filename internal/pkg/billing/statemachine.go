package billing

import (
	"github.com/MartinHagen/Tempora/app/models"
	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
)

// Transition is the pure subscription state transition function. It maps the
// current entitlement record (nil when the user has none yet) and an incoming
// canonical event to the next record, without performing any I/O.
//
// A created event always wins: a fresh subscription supersedes whatever is
// stored, including a different active subscription id (last-writer-wins on
// subscription identity). Cancel/revoke events referencing a subscription id
// other than the stored one are rejected with ErrStaleEvent so a late-arriving
// cancellation for an old subscription cannot clobber a newer active one.
//
// The plan column is a projection of the resulting state: active maps to pro,
// every other state maps to free.
func Transition(current *models.Entitlement, ev *CanonicalEvent) (*models.Entitlement, error) {
	next := models.Entitlement{State: models.SubscriptionStateNone, Plan: string(entitlements.PlanFree)}
	if current != nil {
		next = *current
	}
	if next.State == "" {
		next.State = models.SubscriptionStateNone
	}

	switch ev.Kind {
	case EventSubscriptionCreated:
		next.State = models.SubscriptionStateActive
		next.Provider = ev.Provider
		next.SubscriptionID = ev.SubscriptionID
		if ev.CustomerID != "" {
			next.CustomerID = ev.CustomerID
		}
		if ev.ProductID != "" {
			next.ProductID = ev.ProductID
		}
		if ev.BillingInterval != "" {
			next.BillingInterval = ev.BillingInterval
		} else if next.BillingInterval == "" {
			next.BillingInterval = models.BillingIntervalUnknown
		}
		next.RenewsAt = ev.RenewsAt
		next.EndsAt = ev.EndsAt

	case EventSubscriptionCanceled:
		if next.SubscriptionID != ev.SubscriptionID {
			return nil, ErrStaleEvent
		}
		switch next.State {
		case models.SubscriptionStateActive:
			next.State = models.SubscriptionStateCanceled
			next.RenewsAt = nil
			if ev.EndsAt != nil {
				next.EndsAt = ev.EndsAt
			}
		case models.SubscriptionStateCanceled:
			// Repeat cancellation of the same subscription is a no-op.
		default:
			return nil, ErrStaleEvent
		}

	case EventSubscriptionRevoked:
		if next.SubscriptionID != ev.SubscriptionID {
			return nil, ErrStaleEvent
		}
		switch next.State {
		case models.SubscriptionStateActive, models.SubscriptionStateCanceled:
			next.State = models.SubscriptionStateRevoked
			next.RenewsAt = nil
			if ev.EndsAt != nil {
				next.EndsAt = ev.EndsAt
			} else {
				occurred := ev.OccurredAt
				next.EndsAt = &occurred
			}
		case models.SubscriptionStateRevoked:
			// Already revoked; nothing to apply.
		default:
			return nil, ErrStaleEvent
		}

	default:
		return nil, ErrUnsupportedEvent
	}

	next.Plan = string(DerivePlan(next.State))
	next.UpdatedAt = ev.OccurredAt
	return &next, nil
}

// DerivePlan projects a subscription state onto the entitlement tier.
func DerivePlan(state string) entitlements.Plan {
	if state == models.SubscriptionStateActive {
		return entitlements.PlanPro
	}
	return entitlements.PlanFree
}
