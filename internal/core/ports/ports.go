package ports

import (
	"context"
	"time"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

// DefinitionRepository stores versioned, immutable workflow definitions.
type DefinitionRepository interface {
	// Assigns def.Version as one past the latest version stored under def.Name.
	CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error
	GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error)
	LatestDefinition(ctx context.Context, name string) (*domain.WorkflowDefinition, error)
}

// InstanceRepository represents the workflow instance operations
type InstanceRepository interface {
	CreateInstance(ctx context.Context, inst *domain.WorkflowInstance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error)

	// UpdateInstance writes inst only if the stored version equals
	// expectedVersion, then bumps inst.Version. Returns ErrStaleState otherwise.
	UpdateInstance(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int) error

	// Audit trail. The store assigns Seq.
	AppendTransition(ctx context.Context, t *domain.Transition) error
	ListTransitions(ctx context.Context, instanceID uuid.UUID) ([]domain.Transition, error)
}

// StepRepository represents the step execution operations
type StepRepository interface {
	CreateStepExecution(ctx context.Context, step *domain.StepExecution) error
	GetStepExecution(ctx context.Context, id uuid.UUID) (*domain.StepExecution, error)
	ListStepExecutions(ctx context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error)

	// The "Claim" (Optimistic Locking)
	// "Set ... WHERE id=? AND version=? AND status=PENDING"
	// Returns the updated row, or ErrStaleState when the guard does not match.
	ConditionalUpdateStepExecution(ctx context.Context, id uuid.UUID, expectedVersion int, patch domain.StepPatch) (*domain.StepExecution, error)

	// MarkEscalated raises LastEscalation to level when the execution is still
	// pending and below level. It reports whether the row changed.
	MarkEscalated(ctx context.Context, id uuid.UUID, level domain.EscalationLevel) (bool, error)

	// Pending executions with DueAt <= now, oldest first.
	FindPendingStepExecutions(ctx context.Context, now time.Time) ([]domain.StepExecution, error)
	// All pending executions of a company, oldest first.
	ListPendingForCompany(ctx context.Context, companyID uuid.UUID) ([]domain.StepExecution, error)
}

// Store groups the repositories. Atomically runs fn against a transactional
// view of the store; any error rolls every write in fn back.
type Store interface {
	DefinitionRepository
	InstanceRepository
	StepRepository
	Atomically(ctx context.Context, fn func(tx Store) error) error
}

// Roster answers who currently holds a role inside a company.
type Roster interface {
	// Active members holding role, sorted by user id.
	UsersWithRole(ctx context.Context, companyID uuid.UUID, role string) ([]uuid.UUID, error)
}

// Notifier is the notification sink. Implementations may deliver
// asynchronously; the engine never rolls back on a returned error.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event) error
}

// BusinessHook lets the owning business object react to a finished workflow.
type BusinessHook interface {
	OnInstanceTerminal(ctx context.Context, ref domain.BusinessObjectRef, instanceID uuid.UUID, status domain.WorkflowStatus) error
}

// NotificationQueue represents the notification queue operations
type NotificationQueue interface {
	// Push an encoded job to the "To-Do" list
	Push(ctx context.Context, payload string) error

	// Wait (Block) until a job is available
	Pop(ctx context.Context) (string, error)
}

// EventBus represents the cross-process event bus operations
type EventBus interface {
	// Publish an approval event to subscribers in every process
	Publish(ctx context.Context, event domain.Event) error

	// Subscribe to events (Used by the Coordinator)
	Subscribe(ctx context.Context) (<-chan domain.Event, error)
}
