package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
)

// Job is the queued unit of email work.
type Job struct {
	Event   domain.Event `json:"event"`
	Attempt int          `json:"attempt"`
}

func EncodeJob(job Job) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func DecodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, fmt.Errorf("decode notification job: %w", err)
	}
	return job, nil
}

// Enqueuer hands events to the notification worker pool through a queue.
type Enqueuer struct {
	queue ports.NotificationQueue
}

func NewEnqueuer(q ports.NotificationQueue) *Enqueuer {
	return &Enqueuer{queue: q}
}

var _ ports.Notifier = (*Enqueuer)(nil)

func (e *Enqueuer) Notify(ctx context.Context, ev domain.Event) error {
	payload, err := EncodeJob(Job{Event: ev, Attempt: 0})
	if err != nil {
		return err
	}
	return e.queue.Push(ctx, payload)
}
