package memory

import (
	"context"

	"go-approvals/internal/core/ports"
)

// Queue is a buffered channel standing in for the redis notification list.
type Queue struct {
	items chan string
}

func NewQueue(size int) *Queue {
	return &Queue{items: make(chan string, size)}
}

var _ ports.NotificationQueue = (*Queue)(nil)

// Push blocks while the buffer is full.
func (q *Queue) Push(ctx context.Context, payload string) error {
	select {
	case q.items <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Pop(ctx context.Context) (string, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (q *Queue) Len() int {
	return len(q.items)
}
