package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/andesco/whitelabel/pkg/config"
	"github.com/andesco/whitelabel/pkg/metrics"
	"github.com/andesco/whitelabel/pkg/ruleset"
)

// NewApp wires the middleware, the static branding assets and the catch-all
// proxy route.
func NewApp(cfg *config.Config, rules ruleset.RuleSet, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(CORS())

	app.Static("/static", cfg.Server.StaticDir)
	app.All("/*", ProxySite(cfg, rules, m))

	return app
}
