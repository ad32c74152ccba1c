package router

import (
	"github.com/MartinHagen/Tempora/app/controllers"
	"github.com/MartinHagen/Tempora/internal/pkg/constants"
	"github.com/MartinHagen/Tempora/internal/pkg/middleware"
	"github.com/MartinHagen/Tempora/internal/pkg/session"
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize the session store before any session-dependent middleware.
	session.NewSessionStore()

	// Provider webhooks are authenticated by signature, not by session; they
	// are registered before the user context middleware so session handling
	// never touches provider traffic.
	webhooks := app.Group(constants.WebhooksRoute)
	webhooks.Post(constants.LemonSqueezyRoute, controllers.HandleLemonSqueezyWebhook)
	webhooks.Post(constants.StripeRoute, controllers.HandleStripeWebhook)

	app.Use(middleware.UserContextMiddleware)

	auth := app.Group(constants.AuthRoute)
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/logout", controllers.HandleLogout)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
