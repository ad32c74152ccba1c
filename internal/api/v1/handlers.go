package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/MartinHagen/Tempora/app/controllers"
	"github.com/MartinHagen/Tempora/internal/pkg/middleware"
)

// APIServer implements the versioned JSON API surface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// RegisterHandlers attaches the v1 routes to the given group
func RegisterHandlers(v1 fiber.Router, s *APIServer) {
	v1.Get("/ping", s.GetPing)

	// Session-authenticated user surface
	user := v1.Group("/user", middleware.RequireAuthMiddleware)
	user.Get("/account", s.GetUserAccount)
	user.Get("/entitlement", s.GetUserEntitlement)
	user.Post("/api-key", s.PostIssueAPIKey)
	user.Delete("/api-key", s.DeleteAPIKey)

	billing := v1.Group("/billing", middleware.RequireAuthMiddleware)
	billing.Post("/resync", s.PostBillingResync)

	assistant := v1.Group("/assistant", middleware.RequireAuthMiddleware)
	assistant.Post("/chat", s.PostAssistantChat)
	assistant.Get("/quota", s.GetAssistantQuota)

	// API-key-authenticated machine surface mirrors the user endpoints
	ext := v1.Group("/ext", middleware.APIKeyAuthMiddleware())
	ext.Get("/entitlement", s.GetUserEntitlement)
	ext.Post("/assistant/chat", s.PostAssistantChat)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
}

// GetUserAccount returns account information for the authenticated user.
func (s *APIServer) GetUserAccount(c *fiber.Ctx) error {
	return controllers.HandleGetUserAccount(c)
}

// GetUserEntitlement returns the caller's entitlement projection.
func (s *APIServer) GetUserEntitlement(c *fiber.Ctx) error {
	return controllers.HandleGetUserEntitlement(c)
}

// PostIssueAPIKey issues a fresh API key for the caller.
func (s *APIServer) PostIssueAPIKey(c *fiber.Ctx) error {
	return controllers.HandleIssueAPIKey(c)
}

// DeleteAPIKey revokes the caller's API key.
func (s *APIServer) DeleteAPIKey(c *fiber.Ctx) error {
	return controllers.HandleRevokeAPIKey(c)
}

// PostBillingResync recomputes the caller's plan from the entitlement record.
func (s *APIServer) PostBillingResync(c *fiber.Ctx) error {
	return controllers.HandleBillingResync(c)
}

// PostAssistantChat admits or rejects an AI assistant request against quota.
func (s *APIServer) PostAssistantChat(c *fiber.Ctx) error {
	return controllers.HandleAssistantChat(c)
}

// GetAssistantQuota reports remaining AI usage for the caller.
func (s *APIServer) GetAssistantQuota(c *fiber.Ctx) error {
	return controllers.HandleAssistantQuota(c)
}
