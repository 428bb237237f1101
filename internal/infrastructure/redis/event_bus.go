package redis

import (
	"context"
	"encoding/json"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type EventBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewEventBus(client *redis.Client, channel string, logger *zap.Logger) *EventBus {
	if channel == "" {
		channel = "approvals:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

var _ ports.EventBus = (*EventBus)(nil)

// Publish broadcasts the event to every process
func (b *EventBus) Publish(ctx context.Context, event domain.Event) error {
	// Serialize the struct to JSON
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Notify lets the bus act as a notification sink.
func (b *EventBus) Notify(ctx context.Context, event domain.Event) error {
	return b.Publish(ctx, event)
}

// Subscribe opens a continuous stream for the Coordinator. The channel is
// closed when ctx is done.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	// Create a Go channel to send messages to the Coordinator
	msgChan := make(chan domain.Event)

	// Start a background goroutine to listen to Redis and forward to our Go channel
	go func() {
		defer close(msgChan)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done(): // Handle shutdown gracefully
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("discarding malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case msgChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return msgChan, nil
}
