package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/composer/pkg/events"
)

var ErrNilHandler = errors.New("event handler is nil")

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType][]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        slog.With("module", "eventbus"),
		subscriptions: make(map[events.EventType][]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// decode returns a pointer to the concrete event for eventType, or nil when
// the type is unknown.
func decode(eventType events.EventType, payload []byte) (any, error) {
	var event any

	switch eventType {
	case events.TraceSnapshotEvent:
		event = &events.TraceSnapshot{}
	case events.TraceFinishedEvent:
		event = &events.TraceFinished{}
	case events.CheckpointsRefreshedEvent:
		event = &events.CheckpointsRefreshed{}
	case events.CheckpointRespondedEvent:
		event = &events.CheckpointResponded{}
	case events.EntitySavedEvent:
		event = &events.EntitySaved{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, err
	}

	return event, nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handlers := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if len(handlers) == 0 {
				msg.Ack()

				continue
			}

			event, err := decode(eventType, msg.Payload)
			if err != nil || event == nil {
				eb.logger.WarnContext(ctx, "Dropping undecodable event", "event_type", eventType, "error", err)
				msg.Nack()

				continue
			}

			failed := false

			for _, handler := range handlers {
				if err := handler(ctx, event); err != nil {
					eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", eventType, "error", err)

					failed = true
				}
			}

			if failed {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = append(eb.subscriptions[eventType], handler)

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
