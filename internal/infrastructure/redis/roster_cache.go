package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-approvals/internal/core/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RosterCache memoizes UsersWithRole answers for ttl. Redis failures fall
// through to the wrapped roster.
type RosterCache struct {
	client *redis.Client
	next   ports.Roster
	ttl    time.Duration
	logger *zap.Logger
}

func NewRosterCache(client *redis.Client, next ports.Roster, ttl time.Duration, logger *zap.Logger) *RosterCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{client: client, next: next, ttl: ttl, logger: logger}
}

var _ ports.Roster = (*RosterCache)(nil)

func rosterKey(companyID uuid.UUID, role string) string {
	return fmt.Sprintf("approvals:roster:%s:%s", companyID, role)
}

func (c *RosterCache) UsersWithRole(ctx context.Context, companyID uuid.UUID, role string) ([]uuid.UUID, error) {
	key := rosterKey(companyID, role)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var users []uuid.UUID
		if jsonErr := json.Unmarshal([]byte(cached), &users); jsonErr == nil {
			return users, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
	}

	users, err := c.next.UsersWithRole(ctx, companyID, role)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(users)
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
	}
	return users, nil
}

// Invalidate drops the cached members of one role.
func (c *RosterCache) Invalidate(ctx context.Context, companyID uuid.UUID, role string) error {
	return c.client.Del(ctx, rosterKey(companyID, role)).Err()
}
