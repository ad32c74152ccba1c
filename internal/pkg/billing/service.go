package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/MartinHagen/Tempora/app/models"
	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Outcome classifies how the dispatcher handled a webhook delivery.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInconsistent Outcome = "inconsistent"
)

// ProcessResult reports what a webhook delivery did.
type ProcessResult struct {
	Outcome       Outcome
	EventID       string
	EventType     string
	UserID        uint
	EffectivePlan string
}

// Service is the provider-neutral webhook dispatcher: it verifies, claims,
// decodes, transitions and persists billing events, and keeps the per-user
// plan in sync with the entitlement record.
type Service struct {
	repo     Repository
	cfg      Config
	adapters map[string]ProviderAdapter
	validate *validator.Validate
}

// NewService creates a billing service with the default provider adapters.
func NewService(repo Repository, cfg Config) *Service {
	s := &Service{
		repo:     repo,
		cfg:      cfg,
		adapters: make(map[string]ProviderAdapter),
		validate: validator.New(),
	}
	s.RegisterAdapter(NewLemonSqueezyAdapter(cfg))
	s.RegisterAdapter(NewStripeAdapter(cfg))
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config) *Service {
	return NewService(NewRepository(db), cfg)
}

// RegisterAdapter installs or replaces the adapter for a provider.
func (s *Service) RegisterAdapter(a ProviderAdapter) {
	s.adapters[a.Name()] = a
}

// ProcessWebhook runs one inbound delivery through the full pipeline:
// verify -> claim -> decode -> transition -> persist -> commit.
//
// The returned error is non-nil only when the caller must answer non-2xx:
// ErrInvalidSignature for authenticity failures, or an infrastructure error
// from the claim insert itself (safe to let the provider retry, since nothing
// has been applied yet). Every post-claim condition is absorbed into the
// ProcessResult so the provider is never pushed into a retry loop it cannot
// resolve.
func (s *Service) ProcessWebhook(ctx context.Context, provider string, rawBody []byte, hdr Header) (*ProcessResult, error) {
	_ = ctx
	adapter, ok := s.adapters[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	if !adapter.Verify(rawBody, hdr) {
		// Same result for bad signature and malformed header; details stay
		// server-side only.
		return &ProcessResult{Outcome: OutcomeRejected}, ErrInvalidSignature
	}

	eventID := adapter.EventID(rawBody, hdr)
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}
	eventType := adapter.EventType(rawBody, hdr)

	created, stored, err := s.repo.CreateWebhookEventIfNotExists(&models.BillingWebhookEvent{
		Provider:        adapter.Name(),
		ProviderEventID: eventID,
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("claim webhook event: %w", err)
	}
	result := &ProcessResult{EventID: eventID, EventType: eventType}
	if !created {
		// Lost the claim race or replayed delivery: effects were (or are
		// being) applied exactly once elsewhere.
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	ev, err := adapter.Decode(rawBody, hdr, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrUnsupportedEvent) {
			s.markProcessed(stored.ID, nil)
			result.Outcome = OutcomeIgnored
			return result, nil
		}
		s.markProcessed(stored.ID, err)
		result.Outcome = OutcomeSkipped
		return result, nil
	}
	if err := s.validate.Struct(ev); err != nil {
		s.markProcessed(stored.ID, fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	userID, err := s.resolveUser(ev)
	if err != nil {
		s.markProcessed(stored.ID, err)
		result.Outcome = OutcomeSkipped
		return result, nil
	}
	result.UserID = userID

	current, err := s.repo.GetEntitlement(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return s.recordInconsistency(stored.ID, result, fmt.Errorf("read entitlement: %w", err))
	}

	next, err := Transition(current, ev)
	if err != nil {
		if errors.Is(err, ErrStaleEvent) {
			s.markProcessed(stored.ID, err)
			result.Outcome = OutcomeIgnored
			return result, nil
		}
		s.markProcessed(stored.ID, err)
		result.Outcome = OutcomeSkipped
		return result, nil
	}
	next.UserID = userID
	s.refineInterval(next, ev)

	if err := s.repo.UpsertEntitlement(next); err != nil {
		return s.recordInconsistency(stored.ID, result, fmt.Errorf("persist entitlement: %w", err))
	}

	plan, err := s.ReconcileUserPlan(ctx, userID)
	if err != nil {
		log.Printf("billing: plan reconcile failed for user %d: %v", userID, err)
	}
	result.EffectivePlan = plan

	s.markProcessed(stored.ID, nil)
	result.Outcome = OutcomeApplied
	return result, nil
}

// recordInconsistency handles the one unrecoverable case: the idempotency key
// is already claimed, so the provider will not redeliver, but the entitlement
// write failed. It is logged for manual reconciliation and the delivery is
// still acknowledged.
func (s *Service) recordInconsistency(ledgerID uint, result *ProcessResult, cause error) (*ProcessResult, error) {
	log.Printf("billing: INCONSISTENCY event ledger id %d claimed but not applied, manual reconciliation required: %v", ledgerID, cause)
	s.markProcessed(ledgerID, cause)
	result.Outcome = OutcomeInconsistent
	return result, nil
}

func (s *Service) markProcessed(ledgerID uint, processingErr error) {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	if err := s.repo.MarkWebhookProcessed(ledgerID, errMsg); err != nil {
		log.Printf("billing: failed to mark webhook event %d processed: %v", ledgerID, err)
	}
}

// resolveUser maps a canonical event to a local user: the explicit user
// reference from provider custom data wins; otherwise the billing account
// linkage for the provider customer id is consulted. When the explicit
// reference is present the linkage is refreshed as a side effect so later
// events without custom data still resolve.
func (s *Service) resolveUser(ev *CanonicalEvent) (uint, error) {
	if ref := strings.TrimSpace(ev.UserRef); ref != "" {
		id, err := strconv.ParseUint(ref, 10, 64)
		if err != nil || id == 0 {
			return 0, fmt.Errorf("%w: bad user reference %q", ErrMalformedPayload, ref)
		}
		if ev.CustomerID != "" {
			if err := s.repo.UpsertBillingAccount(&models.BillingAccount{
				UserID:            uint(id),
				Provider:          ev.Provider,
				ProviderAccountID: ev.CustomerID,
			}); err != nil {
				log.Printf("billing: failed to refresh account linkage for user %d: %v", id, err)
			}
		}
		return uint(id), nil
	}

	if ev.CustomerID == "" {
		return 0, ErrUnmappedUser
	}
	account, err := s.repo.GetBillingAccountByProviderAccountID(ev.Provider, ev.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUnmappedUser
		}
		return 0, err
	}
	return account.UserID, nil
}

// refineInterval fills in the billing interval from the plan mapping table
// when the payload did not carry one.
func (s *Service) refineInterval(e *models.Entitlement, ev *CanonicalEvent) {
	if e.BillingInterval != models.BillingIntervalUnknown && e.BillingInterval != "" {
		return
	}
	if ev.ProductID == "" {
		return
	}
	for _, interval := range []string{models.BillingIntervalMonth, models.BillingIntervalYear, models.BillingIntervalUnknown} {
		m, err := s.repo.FindActivePlanMapping(ev.Provider, ev.ProductID, interval)
		if err == nil {
			if m.BillingInterval != models.BillingIntervalUnknown {
				e.BillingInterval = m.BillingInterval
			}
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
	}
}

// GetPlan returns the current entitlement tier for a user, free when no
// entitlement record exists. It reads the committed record, not a cache.
func (s *Service) GetPlan(ctx context.Context, userID uint) (entitlements.Plan, error) {
	_ = ctx
	e, err := s.repo.GetEntitlement(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entitlements.PlanFree, nil
		}
		return entitlements.PlanFree, err
	}
	return DerivePlan(e.State), nil
}

// GetEntitlement returns the canonical per-user subscription record, or nil
// when the user has never produced a billing event.
func (s *Service) GetEntitlement(ctx context.Context, userID uint) (*models.Entitlement, error) {
	_ = ctx
	e, err := s.repo.GetEntitlement(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ReconcileUserPlan recomputes the user's effective plan from the entitlement
// record and syncs it into user settings.
func (s *Service) ReconcileUserPlan(ctx context.Context, userID uint) (string, error) {
	if userID == 0 {
		return "", errors.New("user_id is required")
	}

	plan, err := s.GetPlan(ctx, userID)
	if err != nil {
		return "", err
	}

	us, err := s.repo.GetOrCreateUserSettings(userID)
	if err != nil {
		return "", err
	}
	if entitlements.NormalizePlan(us.Plan) == plan {
		return string(plan), nil
	}
	us.Plan = string(plan)
	if err := s.repo.SaveUserSettings(us); err != nil {
		return "", err
	}
	return string(plan), nil
}

// LinkBillingAccount creates or updates a linked billing identity for a user.
func (s *Service) LinkBillingAccount(ctx context.Context, userID uint, provider, providerAccountID, email string) (*models.BillingAccount, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	paID := strings.TrimSpace(providerAccountID)
	if userID == 0 || p == "" || paID == "" {
		return nil, errors.New("user_id, provider and provider_account_id are required")
	}

	account := &models.BillingAccount{
		UserID:            userID,
		Provider:          p,
		ProviderAccountID: paID,
		Email:             strings.TrimSpace(email),
	}
	if err := s.repo.UpsertBillingAccount(account); err != nil {
		return nil, err
	}
	return account, nil
}

// PruneProcessedEvents removes processed ledger rows past the retention
// horizon. The ledger is append-only during processing; providers do not
// replay indefinitely, so old rows only cost storage.
func (s *Service) PruneProcessedEvents(ctx context.Context, now time.Time) (int64, error) {
	_ = ctx
	if s.cfg.EventRetention <= 0 {
		return 0, nil
	}
	return s.repo.PruneWebhookEvents(now.Add(-s.cfg.EventRetention))
}
