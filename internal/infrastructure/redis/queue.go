package redis

import (
	"context"

	"go-approvals/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type NotificationQueue struct {
	client    *redis.Client
	queueName string
}

func NewNotificationQueue(client *redis.Client, queueName string) *NotificationQueue {
	if queueName == "" {
		queueName = "approvals:notifications:pending"
	}
	return &NotificationQueue{
		client:    client,
		queueName: queueName,
	}
}

var _ ports.NotificationQueue = (*NotificationQueue)(nil)

// Push adds a job to the end of the list
func (q *NotificationQueue) Push(ctx context.Context, payload string) error {
	return q.client.RPush(ctx, q.queueName, payload).Err()
}

// Pop waits for a job and removes it from the front of the list
func (q *NotificationQueue) Pop(ctx context.Context) (string, error) {
	// 0 means "Wait forever until an item appears"
	result, err := q.client.BLPop(ctx, 0, q.queueName).Result()
	if err != nil {
		return "", err
	}
	// BLPop returns a slice: [QueueName, Element]
	return result[1], nil
}
