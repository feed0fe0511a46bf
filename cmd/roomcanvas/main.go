package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/FelixHaller/RoomCanvas/app/repository"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/billing"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/cache"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/database"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/env"
	"github.com/FelixHaller/RoomCanvas/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	repository.InitializeFactory(database.GetDB())
	cache.SetupCache()
	billing.SetupStripe()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 33554432, // 32 MiB, plenty for a single property photo
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
