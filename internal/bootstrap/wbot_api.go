package bootstrap

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	inhttp "github.com/countplus7/wbot-backend-sub000/adapter/in/http"
	"github.com/countplus7/wbot-backend-sub000/config"
	"github.com/countplus7/wbot-backend-sub000/infra/middleware"
	"github.com/countplus7/wbot-backend-sub000/pkg/logger"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "wbot-api",
	})

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "bootstrap").Logger()

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		Prefork:               false,

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json is a drop-in replacement, ~2x faster than encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:   5 * 1024 * 1024,
		Concurrency: 256 * 1024,

		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
		} else {
			allowOrigins = "http://localhost:3000"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
		MaxAge:        86400,
	}))

	// WhatsApp webhook (no auth - verified by token handshake)
	webhookHandler := inhttp.NewWebhookHandler(deps.Pipeline, deps.BusinessRepo, cfg.WebhookVerifyToken)
	app.Get("/webhook", webhookHandler.Verify)
	app.Post("/webhook", webhookHandler.Receive)

	// Probes
	healthHandler := inhttp.NewHealthHandler(deps.DB, deps.Redis, deps.ResultCache, deps.Registry, webhookHandler)
	healthHandler.Register(app)

	// Operator API
	adminHandler := inhttp.NewAdminHandler(deps.LabelRepo, deps.FAQRepo, deps.LLMClient, deps.Registry, deps.Matcher)
	admin := app.Group("/admin", middleware.AdminAuth(cfg.AdminJWTSecret))
	admin.Post("/labels/:name/examples", adminHandler.AddExamples)
	admin.Post("/labels/:name/deactivate", adminHandler.DeactivateLabel)
	admin.Put("/businesses/:id/faqs", adminHandler.ReplaceFAQs)

	zlog.Info().
		Int("active_labels", deps.Registry.Len()).
		Bool("archive", deps.PayloadArchive != nil).
		Bool("calendar", deps.Calendar != nil).
		Bool("crm", deps.CRMClient != nil).
		Msg("API server initialized")

	return app, cleanup, nil
}
