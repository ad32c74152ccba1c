package controllers

import (
	"errors"

	"github.com/MartinHagen/Tempora/app/models"
	"github.com/MartinHagen/Tempora/internal/pkg/billing"
	"github.com/MartinHagen/Tempora/internal/pkg/database"
	"github.com/MartinHagen/Tempora/internal/pkg/session"
	"github.com/MartinHagen/Tempora/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

var billingConfig billing.Config

// SetupBilling injects the billing configuration at bootstrap.
func SetupBilling(cfg billing.Config) {
	billingConfig = cfg
}

// HandleLemonSqueezyWebhook receives Lemon Squeezy billing notifications.
func HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	return handleProviderWebhook(c, models.BillingProviderLemonSqueezy)
}

// HandleStripeWebhook receives Stripe billing notifications.
func HandleStripeWebhook(c *fiber.Ctx) error {
	return handleProviderWebhook(c, models.BillingProviderStripe)
}

// handleProviderWebhook is the shared HTTP edge of the webhook dispatcher.
// The raw body is captured before any parsing; signature verification runs
// over these exact bytes.
func handleProviderWebhook(c *fiber.Ctx, provider string) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	hdr := func(name string) string { return c.Get(name) }

	svc := billing.NewServiceFromDB(database.GetDB(), billingConfig)
	ctx, cancel := requestContext()
	defer cancel()

	result, err := svc.ProcessWebhook(ctx, provider, rawBody, hdr)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidSignature) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		if errors.Is(err, billing.ErrUnknownProvider) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_provider"})
		}
		// The claim itself failed; nothing was applied, provider retry is safe.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}

	resp := fiber.Map{"ok": true}
	switch result.Outcome {
	case billing.OutcomeDuplicate:
		resp["duplicate"] = true
	case billing.OutcomeIgnored, billing.OutcomeSkipped:
		resp["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleBillingResync recomputes the caller's plan from the entitlement record.
func HandleBillingResync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billingConfig)
	ctx, cancel := requestContext()
	defer cancel()

	effectivePlan, err := svc.ReconcileUserPlan(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "plan_resync_failed"})
	}

	_ = session.SetSessionValue(c, usercontext.KeyUserPlan, effectivePlan)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "plan": effectivePlan})
}
