package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanBus struct {
	ch chan domain.Event
}

func (b *chanBus) Publish(ctx context.Context, ev domain.Event) error {
	b.ch <- ev
	return nil
}

func (b *chanBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	return b.ch, nil
}

type failingBus struct{}

func (failingBus) Publish(ctx context.Context, ev domain.Event) error { return nil }

func (failingBus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	return nil, errors.New("redis down")
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *recordingSink) Notify(ctx context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestCoordinatorRelaysUntilCancelled(t *testing.T) {
	bus := &chanBus{ch: make(chan domain.Event, 4)}
	sink := &recordingSink{err: errors.New("ignored")}
	c := NewCoordinator(bus, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.NoError(t, bus.Publish(ctx, domain.Event{Kind: domain.EventApprovalRequest, InstanceID: uuid.New()}))
	require.NoError(t, bus.Publish(ctx, domain.Event{Kind: domain.EventApprovalCompleted, InstanceID: uuid.New()}))
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestCoordinatorStopsWhenSubscriptionCloses(t *testing.T) {
	bus := &chanBus{ch: make(chan domain.Event)}
	close(bus.ch)

	err := NewCoordinator(bus, &recordingSink{}, nil).Start(context.Background())
	assert.NoError(t, err)
}

func TestCoordinatorSubscribeError(t *testing.T) {
	err := NewCoordinator(failingBus{}, &recordingSink{}, nil).Start(context.Background())
	assert.EqualError(t, err, "redis down")
}
