package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
	"github.com/MartinHagen/Tempora/internal/pkg/env"
)

// Counter windows are daily; keys carry the UTC day so a new window is simply
// a new key. The TTL only bounds storage, it is not the reset mechanism.
const windowTTL = 48 * time.Hour

// Config carries the per-tier daily ceilings, injected at construction.
type Config struct {
	FreeDailyLimit int
	ProDailyLimit  int
}

// ConfigFromEnv builds the quota configuration at bootstrap time.
func ConfigFromEnv() Config {
	return Config{
		FreeDailyLimit: env.GetEnvInt("QUOTA_AI_FREE_DAILY", 10),
		ProDailyLimit:  env.GetEnvInt("QUOTA_AI_PRO_DAILY", 10000),
	}
}

// Store is the atomic counter backend. Incr must be atomic per key so the
// read-check-increment in TryConsume cannot over-admit by more than one unit
// under concurrent requests for the same user.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (int64, error)
}

// PlanFunc resolves the user's current entitlement tier. It must observe the
// latest committed record, not a stale cache.
type PlanFunc func(ctx context.Context, userID uint) (entitlements.Plan, error)

// Result reports the outcome of a consumption attempt.
type Result struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// Tracker enforces the per-user daily AI usage ceiling derived from the
// user's entitlement tier.
type Tracker struct {
	store   Store
	cfg     Config
	planFor PlanFunc
}

func NewTracker(store Store, cfg Config, planFor PlanFunc) *Tracker {
	return &Tracker{store: store, cfg: cfg, planFor: planFor}
}

// TryConsume consumes one unit of AI usage for the user in the current daily
// window. It increments first and backs out when the ceiling was already
// reached, so the stored count never settles above the limit and parallel
// requests can over-admit by at most one in-flight unit.
func (t *Tracker) TryConsume(ctx context.Context, userID uint, now time.Time) (*Result, error) {
	plan, err := t.planFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan for user %d: %w", userID, err)
	}
	limit := t.limitFor(plan)

	count, err := t.store.Incr(ctx, windowKey(userID, now), windowTTL)
	if err != nil {
		return nil, err
	}
	if count > int64(limit) {
		// Over the ceiling: undo so the counter stays at the limit.
		if derr := t.store.Decr(ctx, windowKey(userID, now)); derr != nil {
			return nil, derr
		}
		return &Result{Allowed: false, Remaining: 0, Limit: limit}, nil
	}
	return &Result{Allowed: true, Remaining: limit - int(count), Limit: limit}, nil
}

// Remaining reports the units left in the current window without consuming.
func (t *Tracker) Remaining(ctx context.Context, userID uint, now time.Time) (*Result, error) {
	plan, err := t.planFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan for user %d: %w", userID, err)
	}
	limit := t.limitFor(plan)

	count, err := t.store.Get(ctx, windowKey(userID, now))
	if err != nil {
		return nil, err
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: remaining > 0, Remaining: remaining, Limit: limit}, nil
}

func (t *Tracker) limitFor(plan entitlements.Plan) int {
	if plan == entitlements.PlanPro {
		return t.cfg.ProDailyLimit
	}
	return t.cfg.FreeDailyLimit
}

func windowKey(userID uint, now time.Time) string {
	return fmt.Sprintf("quota:ai:%d:%s", userID, now.UTC().Format("20060102"))
}
