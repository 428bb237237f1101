package redis

import (
	"context"
	"testing"
	"time"

	"go-approvals/internal/core/memory"
	"go-approvals/internal/domain"
	"go-approvals/internal/testutil"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := testutil.StartRedis(t)
	client, err := NewRedisClient(context.Background(), addr, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisAdapters(t *testing.T) {
	client := newClient(t)

	t.Run("queue is FIFO", func(t *testing.T) {
		q := NewNotificationQueue(client, "")
		ctx := context.Background()
		require.NoError(t, q.Push(ctx, "first"))
		require.NoError(t, q.Push(ctx, "second"))

		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "first", got)
		got, err = q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", got)
	})

	t.Run("event bus delivers to subscribers", func(t *testing.T) {
		bus := NewEventBus(client, "approvals:test:events", nil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events, err := bus.Subscribe(ctx)
		require.NoError(t, err)

		sent := domain.Event{Kind: domain.EventApprovalReminder, InstanceID: uuid.New(), CompanyID: uuid.New()}
		require.NoError(t, bus.Notify(ctx, sent))

		select {
		case got := <-events:
			assert.Equal(t, sent.Kind, got.Kind)
			assert.Equal(t, sent.InstanceID, got.InstanceID)
		case <-time.After(5 * time.Second):
			t.Fatal("no event received")
		}

		cancel()
		require.Eventually(t, func() bool {
			_, open := <-events
			return !open
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("roster cache serves until invalidated", func(t *testing.T) {
		ctx := context.Background()
		roster := memory.NewRoster()
		company := uuid.New()
		alice, bob := uuid.New(), uuid.New()
		roster.Grant(company, "manager", alice)
		roster.Grant(company, "manager", bob)

		cache := NewRosterCache(client, roster, time.Minute, nil)
		users, err := cache.UsersWithRole(ctx, company, "manager")
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)

		roster.Revoke(company, "manager", bob)
		users, err = cache.UsersWithRole(ctx, company, "manager")
		require.NoError(t, err)
		assert.Len(t, users, 2, "cached membership is served within the ttl")

		require.NoError(t, cache.Invalidate(ctx, company, "manager"))
		users, err = cache.UsersWithRole(ctx, company, "manager")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{alice}, users)
	})
}
