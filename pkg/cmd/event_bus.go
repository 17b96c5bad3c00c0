package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/composer/pkg/channels/gochannel"
	"github.com/dukex/composer/pkg/channels/kafka"
	"github.com/dukex/composer/pkg/eventbus"
	"github.com/google/uuid"
)

// NewEventBus creates the bus carrying trace and checkpoint events. Every
// backend instance reads kafka with its own consumer group so each one can
// feed its own browser streams.
func NewEventBus(provider string, brokers []string, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, brokers, consumerGroup())
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}

func consumerGroup() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()
	}

	return "composer-api-" + host
}
