package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixHaller/RoomCanvas/app/controllers"
	"github.com/FelixHaller/RoomCanvas/app/repository"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/constants"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/database"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/entitlements"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/inference"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/middleware"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/objectstore"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/session"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/transform"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Wire the transformation pipeline into its controller
	initTransformPipeline()

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get(constants.PublicRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": "RoomCanvas", "status": "ok"})
	})

	app.Post("/register", controllers.HandleAuthRegister)
	app.Post("/login", controllers.HandleAuthLogin)
	app.Post("/logout", controllers.HandleAuthLogout)

	// Billing provider webhooks (signature-verified in controller)
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}

func initTransformPipeline() {
	cfg, err := objectstore.LoadConfig()
	if err != nil {
		log.Fatalf("[Router] Object storage configuration invalid: %v", err)
	}
	store, err := objectstore.NewClient(cfg)
	if err != nil {
		log.Fatalf("[Router] Object storage unavailable: %v", err)
	}

	tracker := transform.NewCacheTracker()
	ents := entitlements.NewServiceFromDB(database.GetDB())
	orchestrator := transform.NewOrchestrator(
		ents,
		inference.NewClientFromEnv(),
		repository.GetGlobalFactory().GetHistoryRepository(),
		tracker,
	).WithArchiver(store)
	controllers.InitializeTransformController(orchestrator, tracker, store, ents)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
