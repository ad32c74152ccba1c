package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
)

func freePlan(_ context.Context, _ uint) (entitlements.Plan, error) {
	return entitlements.PlanFree, nil
}

func proPlan(_ context.Context, _ uint) (entitlements.Plan, error) {
	return entitlements.PlanPro, nil
}

func TestTryConsumeEnforcesDailyLimit(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 3, ProDailyLimit: 100}, freePlan)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	wantAllowed := []bool{true, true, true, false, false}
	wantRemaining := []int{2, 1, 0, 0, 0}
	for i := range wantAllowed {
		res, err := tracker.TryConsume(context.Background(), 7, now)
		if err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
		if res.Allowed != wantAllowed[i] {
			t.Errorf("attempt %d: allowed=%v, want %v", i+1, res.Allowed, wantAllowed[i])
		}
		if res.Remaining != wantRemaining[i] {
			t.Errorf("attempt %d: remaining=%d, want %d", i+1, res.Remaining, wantRemaining[i])
		}
		if res.Limit != 3 {
			t.Errorf("attempt %d: limit=%d, want 3", i+1, res.Limit)
		}
	}
}

func TestTryConsumeResetsOnNewWindow(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 1, ProDailyLimit: 100}, freePlan)
	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	res, err := tracker.TryConsume(context.Background(), 7, day1)
	if err != nil || !res.Allowed {
		t.Fatalf("first unit of day 1 must be admitted: res=%+v err=%v", res, err)
	}
	res, err = tracker.TryConsume(context.Background(), 7, day1)
	if err != nil || res.Allowed {
		t.Fatalf("second unit of day 1 must be denied: res=%+v err=%v", res, err)
	}

	// Day boundary: the window key changes, the counter starts fresh.
	res, err = tracker.TryConsume(context.Background(), 7, day2)
	if err != nil {
		t.Fatalf("day 2 attempt failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("first unit of day 2 must be admitted")
	}
}

func TestTryConsumeIsolatesUsers(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 1, ProDailyLimit: 100}, freePlan)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if res, _ := tracker.TryConsume(context.Background(), 1, now); !res.Allowed {
		t.Fatal("user 1 first unit must be admitted")
	}
	if res, _ := tracker.TryConsume(context.Background(), 1, now); res.Allowed {
		t.Fatal("user 1 second unit must be denied")
	}
	if res, _ := tracker.TryConsume(context.Background(), 2, now); !res.Allowed {
		t.Fatal("user 2 must have an independent counter")
	}
}

func TestTryConsumeUsesPlanLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	free := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 2, ProDailyLimit: 10}, freePlan)
	res, err := free.TryConsume(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("free consume failed: %v", err)
	}
	if res.Limit != 2 {
		t.Errorf("free plan limit=%d, want 2", res.Limit)
	}

	pro := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 2, ProDailyLimit: 10}, proPlan)
	res, err = pro.TryConsume(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("pro consume failed: %v", err)
	}
	if res.Limit != 10 {
		t.Errorf("pro plan limit=%d, want 10", res.Limit)
	}
}

func TestTryConsumePlanChangeAppliesToCurrentWindow(t *testing.T) {
	// The limit is resolved per attempt, so an upgrade mid-window takes effect
	// immediately against the same counter.
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	plan := entitlements.PlanFree
	planFn := func(_ context.Context, _ uint) (entitlements.Plan, error) {
		mu.Lock()
		defer mu.Unlock()
		return plan, nil
	}
	tracker := NewTracker(store, Config{FreeDailyLimit: 1, ProDailyLimit: 5}, planFn)

	if res, _ := tracker.TryConsume(context.Background(), 7, now); !res.Allowed {
		t.Fatal("first free unit must be admitted")
	}
	if res, _ := tracker.TryConsume(context.Background(), 7, now); res.Allowed {
		t.Fatal("free ceiling reached, second unit must be denied")
	}

	mu.Lock()
	plan = entitlements.PlanPro
	mu.Unlock()

	res, err := tracker.TryConsume(context.Background(), 7, now)
	if err != nil {
		t.Fatalf("post-upgrade consume failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("upgraded plan must admit against the higher ceiling")
	}
	if res.Remaining != 3 {
		t.Errorf("expected remaining 3 (5 limit, 2 used), got %d", res.Remaining)
	}
}

func TestTryConsumeCounterNeverSettlesAboveLimit(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(store, Config{FreeDailyLimit: 2, ProDailyLimit: 10}, freePlan)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		if _, err := tracker.TryConsume(context.Background(), 7, now); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
	count, err := store.Get(context.Background(), windowKey(7, now))
	if err != nil {
		t.Fatalf("store get failed: %v", err)
	}
	if count != 2 {
		t.Errorf("counter settled at %d, want the limit 2", count)
	}
}

func TestRemainingDoesNotConsume(t *testing.T) {
	tracker := NewTracker(NewMemoryStore(), Config{FreeDailyLimit: 3, ProDailyLimit: 10}, freePlan)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if _, err := tracker.TryConsume(context.Background(), 7, now); err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		res, err := tracker.Remaining(context.Background(), 7, now)
		if err != nil {
			t.Fatalf("Remaining failed: %v", err)
		}
		if res.Remaining != 2 {
			t.Errorf("Remaining call %d consumed units: remaining=%d, want 2", i+1, res.Remaining)
		}
	}
}

func TestWindowKeyIsUTCDay(t *testing.T) {
	// 23:30 in UTC-3 is already the next UTC day; windows are keyed on UTC.
	loc := time.FixedZone("UTC-3", -3*60*60)
	local := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	if got := windowKey(7, local); got != "quota:ai:7:20260302" {
		t.Fatalf("window key %q, want quota:ai:7:20260302", got)
	}
}

func TestMemoryStoreEvictsExpiredKeys(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Incr(context.Background(), "k", -time.Second); err != nil {
		t.Fatalf("incr failed: %v", err)
	}
	count, err := store.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expired key still counted: %d", count)
	}
}
