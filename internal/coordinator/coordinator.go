package coordinator

import (
	"context"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"go.uber.org/zap"
)

// Coordinator relays events published by any process on the event bus into
// a local sink, usually the live hub serving SSE and websocket clients.
type Coordinator struct {
	eventBus ports.EventBus
	sink     ports.Notifier
	logger   *zap.Logger
}

func NewCoordinator(bus ports.EventBus, sink ports.Notifier, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		eventBus: bus,
		sink:     sink,
		logger:   logger,
	}
}

// Start begins the listening loop and blocks until ctx is done or the bus
// closes the subscription. Call this from main as a goroutine.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("coordinator started, listening for events")

	// Subscribe returns a Go channel that receives messages from Redis
	eventChannel, err := c.eventBus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator shutting down")
			return nil

		case event, ok := <-eventChannel:
			if !ok {
				c.logger.Warn("event bus subscription closed")
				return nil
			}
			c.handleEvent(ctx, event)
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event domain.Event) {
	if err := c.sink.Notify(ctx, event); err != nil {
		c.logger.Warn("coordinator failed to relay event",
			zap.String("kind", string(event.Kind)),
			zap.Stringer("instance_id", event.InstanceID),
			zap.Error(err))
		return
	}
	c.logger.Debug("coordinator relayed event",
		zap.String("kind", string(event.Kind)),
		zap.Stringer("instance_id", event.InstanceID))
}
