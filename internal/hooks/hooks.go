package hooks

import (
	"context"
	"fmt"
	"sync"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HookFunc adapts a plain function to ports.BusinessHook.
type HookFunc func(ctx context.Context, ref domain.BusinessObjectRef, instanceID uuid.UUID, status domain.WorkflowStatus) error

func (f HookFunc) OnInstanceTerminal(ctx context.Context, ref domain.BusinessObjectRef, instanceID uuid.UUID, status domain.WorkflowStatus) error {
	return f(ctx, ref, instanceID, status)
}

// Registry routes terminal callbacks by business object type. Types without
// a registered hook are logged and otherwise ignored.
type Registry struct {
	mu     sync.RWMutex
	hooks  map[string]ports.BusinessHook
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		hooks:  make(map[string]ports.BusinessHook),
		logger: logger,
	}
}

var _ ports.BusinessHook = (*Registry)(nil)

// Register binds hook to objectType, replacing any earlier binding.
func (r *Registry) Register(objectType string, hook ports.BusinessHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[objectType] = hook
}

func (r *Registry) OnInstanceTerminal(ctx context.Context, ref domain.BusinessObjectRef, instanceID uuid.UUID, status domain.WorkflowStatus) error {
	r.mu.RLock()
	hook, ok := r.hooks[ref.Type]
	r.mu.RUnlock()

	if !ok {
		r.logger.Info("workflow finished for unhooked business object",
			zap.String("business_object", ref.String()),
			zap.Stringer("instance_id", instanceID),
			zap.String("status", string(status)))
		return nil
	}

	if err := hook.OnInstanceTerminal(ctx, ref, instanceID, status); err != nil {
		return fmt.Errorf("hook for %s: %w", ref.Type, err)
	}
	return nil
}
