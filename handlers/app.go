package handlers

import (
	"strings"

	"gamification-engine/middleware"
	"gamification-engine/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Deps struct {
	Engine         *services.Engine
	Catalog        *services.CatalogService
	Logger         *zap.Logger
	Gatherer       prometheus.Gatherer
	ServiceToken   string
	AllowedOrigins []string
}

// NewApp builds the fiber app. /healthz and /metrics are registered before
// the gateway check so probes do not need the token.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "gamification-engine",
		ErrorHandler: errorHandler(d.Logger),
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(d.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID, X-User-Roles",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	app.Use(middleware.GatewayAuthMiddleware(d.ServiceToken, d.Logger))

	h := &gamificationHandler{
		engine:   d.Engine,
		catalog:  d.Catalog,
		logger:   d.Logger,
		validate: validator.New(),
	}
	SetupGamificationRoutes(app, h)
	return app
}

func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
