package cmd

import (
	"time"

	cli "github.com/urfave/cli/v3"
)

// ClientFlags are the execution API and logging flags shared by both binaries.
func ClientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Usage:   "Base URL of the execution API",
			Value:   "http://localhost:8000/api/v1",
			Sources: cli.EnvVars("COMPOSER_API_URL"),
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "Session access token",
			Sources: cli.EnvVars("COMPOSER_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "refresh-token",
			Usage:   "Session refresh token, used once when the access token is rejected",
			Sources: cli.EnvVars("COMPOSER_REFRESH_TOKEN"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Timeout of a single API request",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("COMPOSER_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export a span per API call over OTLP/HTTP",
			Sources: cli.EnvVars("COMPOSER_OTEL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ClientConfigFrom reads the ClientFlags of command.
func ClientConfigFrom(command *cli.Command, serviceName string) ClientConfig {
	return ClientConfig{
		BaseURL:      command.String("api-url"),
		AccessToken:  command.String("token"),
		RefreshToken: command.String("refresh-token"),
		Timeout:      command.Duration("timeout"),
		Tracing:      command.Bool("otel"),
		ServiceName:  serviceName,
	}
}
