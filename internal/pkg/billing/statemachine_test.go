package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
)

func createdEvent(subID string, at time.Time) *CanonicalEvent {
	renews := at.Add(30 * 24 * time.Hour)
	return &CanonicalEvent{
		ProviderEventID: "evt_" + subID,
		Provider:        models.BillingProviderLemonSqueezy,
		Kind:            EventSubscriptionCreated,
		SubscriptionID:  subID,
		CustomerID:      "cus_1",
		ProductID:       "var_100",
		BillingInterval: models.BillingIntervalMonth,
		RenewsAt:        &renews,
		OccurredAt:      at,
	}
}

func TestTransitionCreatedFromNothing(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	next, err := Transition(nil, createdEvent("sub_1", at))
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if next.State != models.SubscriptionStateActive {
		t.Errorf("expected state %q, got %q", models.SubscriptionStateActive, next.State)
	}
	if next.Plan != string(entitlements.PlanPro) {
		t.Errorf("expected plan pro, got %q", next.Plan)
	}
	if next.SubscriptionID != "sub_1" {
		t.Errorf("expected subscription sub_1, got %q", next.SubscriptionID)
	}
	if next.RenewsAt == nil {
		t.Error("expected renews_at to be set")
	}
}

func TestTransitionIsDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := &models.Entitlement{
		UserID:         7,
		State:          models.SubscriptionStateActive,
		Plan:           string(entitlements.PlanPro),
		SubscriptionID: "sub_1",
	}
	ev := createdEvent("sub_2", at)

	first, err := Transition(current, ev)
	if err != nil {
		t.Fatalf("first transition failed: %v", err)
	}
	second, err := Transition(current, ev)
	if err != nil {
		t.Fatalf("second transition failed: %v", err)
	}
	if *first != *second {
		t.Errorf("same input produced different outputs:\n%+v\n%+v", first, second)
	}
	if current.SubscriptionID != "sub_1" {
		t.Errorf("input record was mutated: %+v", current)
	}
}

func TestTransitionCancelThenRevoke(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active, err := Transition(nil, createdEvent("sub_1", at))
	if err != nil {
		t.Fatalf("created transition failed: %v", err)
	}

	ends := at.Add(20 * 24 * time.Hour)
	canceled, err := Transition(active, &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionCanceled,
		SubscriptionID: "sub_1",
		EndsAt:         &ends,
		OccurredAt:     at.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("cancel transition failed: %v", err)
	}
	if canceled.State != models.SubscriptionStateCanceled {
		t.Errorf("expected canceled state, got %q", canceled.State)
	}
	if canceled.Plan != string(entitlements.PlanFree) {
		t.Errorf("canceled subscription must project free plan, got %q", canceled.Plan)
	}
	if canceled.RenewsAt != nil {
		t.Error("canceled subscription must not carry renews_at")
	}
	if canceled.EndsAt == nil || !canceled.EndsAt.Equal(ends) {
		t.Errorf("expected ends_at %v, got %v", ends, canceled.EndsAt)
	}

	revoked, err := Transition(canceled, &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionRevoked,
		SubscriptionID: "sub_1",
		OccurredAt:     ends,
	})
	if err != nil {
		t.Fatalf("revoke transition failed: %v", err)
	}
	if revoked.State != models.SubscriptionStateRevoked {
		t.Errorf("expected revoked state, got %q", revoked.State)
	}
	if revoked.SubscriptionID != "sub_1" {
		t.Errorf("revoked record must retain historical subscription id, got %q", revoked.SubscriptionID)
	}
	if revoked.EndsAt == nil {
		t.Error("revoked record must carry ends_at")
	}
}

func TestTransitionCreatedAlwaysWins(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, state := range []string{
		models.SubscriptionStateNone,
		models.SubscriptionStateActive,
		models.SubscriptionStateCanceled,
		models.SubscriptionStateRevoked,
	} {
		current := &models.Entitlement{UserID: 7, State: state, SubscriptionID: "sub_old"}
		next, err := Transition(current, createdEvent("sub_new", at))
		if err != nil {
			t.Fatalf("created event from state %q failed: %v", state, err)
		}
		if next.State != models.SubscriptionStateActive {
			t.Errorf("created event from state %q: expected active, got %q", state, next.State)
		}
		if next.SubscriptionID != "sub_new" {
			t.Errorf("created event from state %q: expected sub_new, got %q", state, next.SubscriptionID)
		}
	}
}

func TestTransitionStaleCancelIsRejected(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active, err := Transition(nil, createdEvent("sub_2", at))
	if err != nil {
		t.Fatalf("created transition failed: %v", err)
	}

	// Late cancellation of the superseded subscription must not clobber the
	// newer active one.
	_, err = Transition(active, &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionCanceled,
		SubscriptionID: "sub_1",
		OccurredAt:     at.Add(time.Hour),
	})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent, got %v", err)
	}

	_, err = Transition(active, &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionRevoked,
		SubscriptionID: "sub_1",
		OccurredAt:     at.Add(time.Hour),
	})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent for stale revoke, got %v", err)
	}
}

func TestTransitionCancelWithoutSubscriptionIsStale(t *testing.T) {
	_, err := Transition(nil, &CanonicalEvent{
		Provider:       models.BillingProviderStripe,
		Kind:           EventSubscriptionCanceled,
		SubscriptionID: "sub_1",
		OccurredAt:     time.Now().UTC(),
	})
	if !errors.Is(err, ErrStaleEvent) {
		t.Fatalf("expected ErrStaleEvent, got %v", err)
	}
}

func TestTransitionRepeatedCancelIsNoop(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active, _ := Transition(nil, createdEvent("sub_1", at))
	cancel := &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionCanceled,
		SubscriptionID: "sub_1",
		OccurredAt:     at.Add(time.Hour),
	}
	once, err := Transition(active, cancel)
	if err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	twice, err := Transition(once, cancel)
	if err != nil {
		t.Fatalf("repeat cancel must be a no-op, got error: %v", err)
	}
	if twice.State != models.SubscriptionStateCanceled {
		t.Errorf("expected canceled state after repeat cancel, got %q", twice.State)
	}
}

func TestTransitionRevokeDefaultsEndsAtToOccurrence(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	active, _ := Transition(nil, createdEvent("sub_1", at))
	revoked, err := Transition(active, &CanonicalEvent{
		Provider:       models.BillingProviderLemonSqueezy,
		Kind:           EventSubscriptionRevoked,
		SubscriptionID: "sub_1",
		OccurredAt:     at.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if revoked.EndsAt == nil || !revoked.EndsAt.Equal(at.Add(48*time.Hour)) {
		t.Errorf("expected ends_at to default to the occurrence time, got %v", revoked.EndsAt)
	}
}

func TestDerivePlan(t *testing.T) {
	if got := DerivePlan(models.SubscriptionStateActive); got != entitlements.PlanPro {
		t.Errorf("active must derive pro, got %q", got)
	}
	for _, state := range []string{
		models.SubscriptionStateNone,
		models.SubscriptionStateCanceled,
		models.SubscriptionStateRevoked,
		"",
	} {
		if got := DerivePlan(state); got != entitlements.PlanFree {
			t.Errorf("state %q must derive free, got %q", state, got)
		}
	}
}
