package notify

import (
	"context"
	"errors"
	"sync"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrTooManySubscribers = errors.New("live event subscriber limit reached")

type subscriber struct {
	ch        chan domain.Event
	companyID uuid.UUID
}

// Hub fans events out to live subscribers (SSE and websocket clients). It
// holds at most max subscribers; each gets a buffered channel and events are
// dropped for a subscriber whose buffer is full. A Hub belongs to one server,
// subscriptions live as long as the context passed to Subscribe.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	max    int
	buffer int
	logger *zap.Logger
}

func NewHub(max, buffer int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		max:    max,
		buffer: buffer,
		logger: logger,
	}
}

var _ ports.Notifier = (*Hub)(nil)

// Subscribe registers a subscriber for companyID (uuid.Nil for every
// company). The channel is closed once ctx is done.
func (h *Hub) Subscribe(ctx context.Context, companyID uuid.UUID) (<-chan domain.Event, error) {
	h.mu.Lock()
	if len(h.subs) >= h.max {
		h.mu.Unlock()
		return nil, ErrTooManySubscribers
	}
	id := h.nextID
	h.nextID++
	sub := &subscriber{ch: make(chan domain.Event, h.buffer), companyID: companyID}
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch, nil
}

// Notify publishes ev to every matching subscriber without blocking.
func (h *Hub) Notify(ctx context.Context, ev domain.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.companyID != uuid.Nil && sub.companyID != ev.CompanyID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("dropping live event for slow subscriber",
				zap.String("kind", string(ev.Kind)),
				zap.Stringer("instance_id", ev.InstanceID))
		}
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
