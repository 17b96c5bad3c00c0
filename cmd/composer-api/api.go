package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/composer/pkg/cmd"
	"github.com/dukex/composer/pkg/eventbus"
	"github.com/dukex/composer/pkg/metrics"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger      *slog.Logger
	sessions    *services.Sessions
	library     *services.Library
	traces      *services.Traces
	checkpoints *services.Checkpoints
	eventBus    eventbus.EventBus
	registry    *prometheus.Registry
	validate    *validator.Validate
}

type APIConfig struct {
	Logger      *slog.Logger
	API         services.API
	Stores      *cmd.Stores
	EventBus    eventbus.EventBus
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	TracePoller services.TracesConfig
}

func NewAPI(cfg APIConfig) *API {
	traces := cfg.TracePoller
	traces.API = cfg.API
	traces.Publisher = cfg.EventBus
	traces.Metrics = cfg.Metrics
	traces.Logger = cfg.Logger

	return &API{
		logger: cfg.Logger,
		sessions: services.NewSessions(services.SessionsConfig{
			API:       cfg.API,
			Drafts:    cfg.Stores.Drafts,
			Cache:     cfg.Stores.Catalog,
			CacheKey:  "library",
			Publisher: cfg.EventBus,
			Metrics:   cfg.Metrics,
			Logger:    cfg.Logger,
		}),
		library: services.NewLibrary(cfg.API, cfg.Stores.Catalog, "library"),
		traces:  services.NewTraces(traces),
		checkpoints: services.NewCheckpoints(services.CheckpointsConfig{
			API:       cfg.API,
			Publisher: cfg.EventBus,
			Metrics:   cfg.Metrics,
			Logger:    cfg.Logger,
		}),
		eventBus: cfg.EventBus,
		registry: cfg.Registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.sessions, a.library, a.traces, a.checkpoints, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Composer API")
	})

	if a.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	handlers.Routes(app)

	return app
}

// Prepare restores autosaved sessions and wires the trace streams to the
// event bus. It must run before Start.
func (a *API) Prepare(ctx context.Context) error {
	if _, err := a.sessions.Restore(ctx); err != nil {
		a.logger.WarnContext(ctx, "Failed to restore drafts", "error", err)
	}

	if a.eventBus == nil {
		return nil
	}

	if err := a.traces.Register(a.eventBus); err != nil {
		return err
	}

	return a.eventBus.Subscribe(ctx)
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return app.Shutdown()
	}
}

func (a *API) Shutdown() {
	a.checkpoints.Stop()
	a.traces.Close()
}
