package controllers

import (
	"log"

	"github.com/MartinHagen/Tempora/app/models"
	"github.com/MartinHagen/Tempora/app/repository"
	"github.com/MartinHagen/Tempora/internal/pkg/billing"
	"github.com/MartinHagen/Tempora/internal/pkg/database"
	"github.com/MartinHagen/Tempora/internal/pkg/entitlements"
	"github.com/MartinHagen/Tempora/internal/pkg/usercontext"
	"github.com/MartinHagen/Tempora/internal/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HandleGetUserAccount returns account information for the authenticated user.
func HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	us, err := models.GetOrCreateUserSettings(database.GetDB(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	var avatarURL string
	if user, uerr := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID); uerr == nil {
		avatarURL = utils.GetGravatarURL(user.Email, 200)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id":            userCtx.UserID,
		"username":           userCtx.Username,
		"avatar_url":         avatarURL,
		"plan":               us.Plan,
		"multi_account":      entitlements.AllowsMultiAccount(entitlements.NormalizePlan(us.Plan)),
		"max_accounts":       entitlements.MaxCalendarAccounts(entitlements.NormalizePlan(us.Plan)),
		"api_key_prefix":     us.APIKeyPrefix,
		"api_key_created_at": formatTimePtr(us.APIKeyCreatedAt),
		"api_key_last_used":  formatTimePtr(us.APIKeyLastUsedAt),
	})
}

// HandleGetUserEntitlement returns the caller's canonical subscription record
// projection used by feature-gating consumers.
func HandleGetUserEntitlement(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	svc := billing.NewServiceFromDB(database.GetDB(), billingConfig)
	ctx, cancel := requestContext()
	defer cancel()

	e, err := svc.GetEntitlement(ctx, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if e == nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"plan":  string(entitlements.PlanFree),
			"state": models.SubscriptionStateNone,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"plan":             e.Plan,
		"state":            e.State,
		"provider":         e.Provider,
		"subscription_id":  e.SubscriptionID,
		"billing_interval": e.BillingInterval,
		"renews_at":        formatTimePtr(e.RenewsAt),
		"ends_at":          formatTimePtr(e.EndsAt),
	})
}

// HandleIssueAPIKey issues a fresh API key and returns the raw secret once.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()
	us, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	rawKey, err := us.IssueAPIKey()
	if err != nil {
		log.Printf("api key generation failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if err := db.Save(us).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"api_key":        rawKey,
		"api_key_prefix": us.APIKeyPrefix,
	})
}

// HandleRevokeAPIKey revokes the caller's active API key.
func HandleRevokeAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	db := database.GetDB()
	us, err := models.GetOrCreateUserSettings(db, userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	us.RevokeAPIKey()
	if err := db.Save(us).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
