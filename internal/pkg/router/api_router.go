package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/FelixHaller/RoomCanvas/app/controllers"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/constants"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")

	// Plan catalog is public
	v1.Get("/plans", controllers.HandlePlans)

	authed := v1.Group("", requireAPIAuth)
	authed.Post("/transformations", controllers.HandleCreateTransformation)
	authed.Get("/transformations/:id", controllers.HandleTransformationStatus)

	authed.Get("/user/usage", controllers.HandleUserUsage)
	authed.Get("/user/history", controllers.HandleUserHistory)
	authed.Post("/user/api-key", controllers.HandleIssueAPIKey)
	authed.Delete("/user/api-key", controllers.HandleRevokeAPIKey)

	authed.Post("/billing/checkout/subscription", controllers.HandleCreateSubscriptionCheckout)
	authed.Post("/billing/checkout/pack", controllers.HandleCreatePackCheckout)
	authed.Post("/billing/change-plan", controllers.HandleChangePlan)
	authed.Post("/billing/cancel", controllers.HandleCancelSubscription)

	admin := authed.Group("/admin", middleware.RequireAPIAdmin)
	admin.Get("/users", controllers.HandleAdminUsers)
}

// requireAPIAuth accepts either an API key header or a logged-in session.
func requireAPIAuth(c *fiber.Ctx) error {
	if hasAPIKeyHeader(c) {
		return middleware.APIKeyAuthMiddleware()(c)
	}
	return middleware.RequireAPISessionAuth(c)
}

func hasAPIKeyHeader(c *fiber.Ctx) bool {
	if strings.TrimSpace(c.Get("X-API-Key")) != "" {
		return true
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	return strings.HasPrefix(strings.ToLower(auth), "bearer ")
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
