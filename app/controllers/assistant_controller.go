package controllers

import (
	"strings"
	"time"

	"github.com/MartinHagen/Tempora/internal/pkg/quota"
	"github.com/MartinHagen/Tempora/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

var quotaTracker *quota.Tracker

// SetupQuota injects the usage tracker at bootstrap.
func SetupQuota(t *quota.Tracker) {
	quotaTracker = t
}

type assistantChatRequest struct {
	Message string `json:"message"`
}

// HandleAssistantChat gates AI assistant requests on the caller's daily
// quota. The model call itself is performed by the assistant collaborator;
// this endpoint only admits or rejects the request.
func HandleAssistantChat(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if quotaTracker == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quota_unavailable"})
	}

	var req assistantChatRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "message is required"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := quotaTracker.TryConsume(ctx, userCtx.UserID, time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quota_check_failed"})
	}
	if !result.Allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":     "limit_reached",
			"remaining": 0,
			"limit":     result.Limit,
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted":  true,
		"remaining": result.Remaining,
		"limit":     result.Limit,
	})
}

// HandleAssistantQuota reports the caller's remaining AI usage without consuming.
func HandleAssistantQuota(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if quotaTracker == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quota_unavailable"})
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := quotaTracker.Remaining(ctx, userCtx.UserID, time.Now())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "quota_check_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
