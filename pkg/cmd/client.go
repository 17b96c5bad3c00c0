// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/composer/pkg/client"
	"github.com/dukex/composer/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

type ClientConfig struct {
	BaseURL      string
	AccessToken  string
	RefreshToken string
	Timeout      time.Duration
	// Tracing exports a span per API call over OTLP/HTTP, configured through
	// the standard OTEL_EXPORTER_OTLP_* variables.
	Tracing     bool
	ServiceName string
}

// NewClient builds the execution API client. The returned shutdown flushes
// pending spans and must be called once the client is no longer used.
func NewClient(ctx context.Context, logger *slog.Logger, cfg ClientConfig) (*client.Client, func(context.Context) error, error) {
	tracer := otelhelper.NoopTracer()
	shutdown := func(context.Context) error { return nil }

	if cfg.Tracing {
		var (
			t   trace.Tracer
			err error
		)

		t, shutdown, err = otelhelper.NewTracer(ctx, cfg.ServiceName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		tracer = t
	}

	c, err := client.NewClient(client.Config{
		BaseURL:     cfg.BaseURL,
		Credentials: client.NewCredentials(cfg.AccessToken, cfg.RefreshToken),
		Timeout:     cfg.Timeout,
		Tracer:      tracer,
		Logger:      logger,
	})
	if err != nil {
		_ = shutdown(ctx)

		return nil, nil, err
	}

	return c, shutdown, nil
}
