package worker

import (
	"context"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
)

// NotificationHandler is the blueprint for any function that delivers an event
type NotificationHandler func(ctx context.Context, event domain.Event) error

// Registry maps event kinds to their delivery handler
type Registry map[domain.EventKind]NotificationHandler

// InitRegistry routes every event kind to the given sink
func InitRegistry(sink ports.Notifier) Registry {
	registry := make(Registry)
	for _, kind := range domain.EventKinds {
		registry[kind] = sink.Notify
	}
	return registry
}
