// Package main provides the composer console backend: editing sessions,
// trace views and HITL checkpoints for the browser console.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/composer/pkg/cmd"
	"github.com/dukex/composer/pkg/log"
	"github.com/dukex/composer/pkg/metrics"
	"github.com/dukex/composer/pkg/services"
	"github.com/dukex/composer/pkg/trace"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:                  "composer-api",
		Usage:                 "Serve editing sessions, trace views and checkpoints to the console",
		EnableShellCompletion: true,
		Flags: append(cmd.ClientFlags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "drafts-url",
				Usage:   "Draft store: a directory, redis:// or postgres:// URL",
				Value:   "./data/drafts",
				Sources: cli.EnvVars("DRAFTS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka brokers for the kafka event bus",
				Value:   []string{"localhost:9092"},
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Trace refresh interval",
				Value:   trace.DefaultInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "checkpoint-schedule",
				Usage:   "Cron schedule of the pending checkpoint refresh",
				Value:   services.DefaultCheckpointSchedule,
				Sources: cli.EnvVars("CHECKPOINT_SCHEDULE"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("composer-api", command.String("log-level"), command.String("log-format"))
			logger := log.WithModule("api")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing Composer API")

			api, shutdownTracer, err := cmd.NewClient(ctx, logger, cmd.ClientConfigFrom(command, "composer-api"))
			if err != nil {
				return err
			}

			defer func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer", "error", err)
				}
			}()

			stores, err := cmd.NewPersistence(ctx, logger, command.String("drafts-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := stores.Drafts.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			m, err := metrics.New(registry)
			if err != nil {
				return fmt.Errorf("failed to register metrics: %w", err)
			}

			server := NewAPI(APIConfig{
				Logger:      logger,
				API:         api,
				Stores:      stores,
				EventBus:    eventBus,
				Registry:    registry,
				Metrics:     m,
				TracePoller: services.TracesConfig{Poller: trace.PollerConfig{Interval: command.Duration("poll-interval")}},
			})
			defer server.Shutdown()

			if err := server.Prepare(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}

			if err := server.checkpoints.Start(ctx, command.String("checkpoint-schedule")); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Listening", "port", command.Int("port"))

			return server.Start(ctx, command.Int("port"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.WithModule("api").Error("Composer API stopped", "error", err)
		os.Exit(1)
	}
}
