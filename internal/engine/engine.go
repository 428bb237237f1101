// Package engine implements the approval state machine: starting workflow
// instances, recording step decisions, and the administrative transitions
// (reassign, resubmit, cancel) plus the escalation transitions the sweep uses.
//
// Every transition runs as one short store transaction guarded by
// compare-and-swap on the step and instance versions. Notifications and
// business hooks fire only after the transaction commits and never undo it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
	"go-approvals/internal/metrics"
	"go-approvals/internal/router"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Engine struct {
	store    ports.Store
	router   *router.Router
	notifier ports.Notifier
	hook     ports.BusinessHook
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(store ports.Store, r *router.Router, notifier ports.Notifier, hook ports.BusinessHook, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		router:   r,
		notifier: notifier,
		hook:     hook,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InstanceState is the read model returned by GetInstanceState.
type InstanceState struct {
	Instance   domain.WorkflowInstance
	Definition domain.WorkflowDefinition
	Steps      []domain.StepExecution
	// Active is the pending execution, nil when the instance has none.
	Active *domain.StepExecution
}

type StartRequest struct {
	DefinitionID   uuid.UUID
	DefinitionName string
	CompanyID      uuid.UUID
	RequestedBy    uuid.UUID
	BusinessObject domain.BusinessObjectRef
}

// CreateDefinition validates def and stores it as the next version of its name.
func (e *Engine) CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := e.store.CreateDefinition(ctx, def); err != nil {
		return fmt.Errorf("store definition %s: %w", def.Name, err)
	}
	e.logger.Info("workflow definition stored",
		zap.String("name", def.Name),
		zap.Int("version", def.Version),
		zap.Int("steps", len(def.Steps)))
	return nil
}

func (e *Engine) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	return e.store.GetDefinition(ctx, id)
}

// StartWorkflow creates an instance for a business object and routes its
// first step. An unroutable first step leaves the instance Pending with an
// orphaned execution.
func (e *Engine) StartWorkflow(ctx context.Context, req StartRequest) (*InstanceState, error) {
	if req.CompanyID == uuid.Nil || req.RequestedBy == uuid.Nil {
		return nil, fmt.Errorf("%w: company and requester are required", domain.ErrInvalidInput)
	}
	if req.BusinessObject.Type == "" || req.BusinessObject.ID == "" {
		return nil, fmt.Errorf("%w: business object reference is required", domain.ErrInvalidInput)
	}

	def, err := e.resolveDefinition(ctx, req)
	if err != nil {
		return nil, err
	}

	now := e.now()
	inst := domain.NewInstance(def, req.CompanyID, req.RequestedBy, req.BusinessObject, now)
	ob := &outbox{}

	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		if err := tx.CreateInstance(ctx, inst); err != nil {
			return err
		}
		expected := inst.Version
		if _, err := e.routeStep(ctx, tx, def, inst, 0, 1, now, ob); err != nil {
			return err
		}
		return e.commitInstance(ctx, tx, inst, expected, "", &req.RequestedBy, now)
	})
	if err != nil {
		return nil, fmt.Errorf("start workflow %s for %s: %w", def.Name, req.BusinessObject, err)
	}

	e.logger.Info("workflow started",
		zap.Stringer("instance_id", inst.ID),
		zap.String("definition", def.Name),
		zap.Int("definition_version", def.Version),
		zap.Stringer("business_object", req.BusinessObject))

	e.flush(ctx, def, inst, ob)
	return e.GetInstanceState(ctx, inst.ID)
}

func (e *Engine) resolveDefinition(ctx context.Context, req StartRequest) (*domain.WorkflowDefinition, error) {
	if req.DefinitionID != uuid.Nil {
		return e.store.GetDefinition(ctx, req.DefinitionID)
	}
	if req.DefinitionName != "" {
		return e.store.LatestDefinition(ctx, req.DefinitionName)
	}
	return nil, fmt.Errorf("%w: definition id or name is required", domain.ErrInvalidInput)
}

func (e *Engine) GetInstanceState(ctx context.Context, instanceID uuid.UUID) (*InstanceState, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	def, err := e.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, fmt.Errorf("definition %s of instance %s: %w", inst.DefinitionID, inst.ID, err)
	}
	steps, err := e.store.ListStepExecutions(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	state := &InstanceState{Instance: *inst, Definition: *def, Steps: steps}
	for i := range steps {
		if steps[i].IsPending() {
			state.Active = &steps[i]
			break
		}
	}
	return state, nil
}

func (e *Engine) History(ctx context.Context, instanceID uuid.UUID) ([]domain.Transition, error) {
	if _, err := e.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return e.store.ListTransitions(ctx, instanceID)
}

// ListPendingForActor is the approval inbox: pending executions of the
// company the actor is allowed to decide on.
func (e *Engine) ListPendingForActor(ctx context.Context, companyID, actorID uuid.UUID) ([]domain.StepExecution, error) {
	steps, err := e.store.ListPendingForCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var out []domain.StepExecution
	for i := range steps {
		ok, err := e.router.CanAct(ctx, companyID, &steps[i], actorID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, steps[i])
		}
	}
	return out, nil
}

// load fetches a step with its instance and definition.
func (e *Engine) load(ctx context.Context, stepID uuid.UUID) (*domain.StepExecution, *domain.WorkflowInstance, *domain.WorkflowDefinition, error) {
	step, err := e.store.GetStepExecution(ctx, stepID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("step execution %s: %w", stepID, err)
	}
	inst, def, err := e.loadInstance(ctx, step.InstanceID)
	if err != nil {
		return nil, nil, nil, err
	}
	return step, inst, def, nil
}

func (e *Engine) loadInstance(ctx context.Context, instanceID uuid.UUID) (*domain.WorkflowInstance, *domain.WorkflowDefinition, error) {
	inst, err := e.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("instance %s: %w", instanceID, err)
	}
	def, err := e.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, nil, fmt.Errorf("definition %s: %w", inst.DefinitionID, err)
	}
	return inst, def, nil
}

// routeStep creates the execution for def.Steps[index] and points the
// instance at it. The instance is mutated in memory only; the caller writes it.
func (e *Engine) routeStep(ctx context.Context, tx ports.Store, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, index, attempt int, now time.Time, ob *outbox) (*domain.StepExecution, error) {
	a, err := e.router.RouteStep(ctx, def, inst, index)
	unroutable := errors.Is(err, domain.ErrUnroutableStep)
	if err != nil && !unroutable {
		return nil, err
	}
	return e.placeStep(ctx, tx, def, inst, index, attempt, a, unroutable, domain.EventApprovalRequest, now, ob)
}

func (e *Engine) placeStep(ctx context.Context, tx ports.Store, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, index, attempt int, a domain.Assignment, orphaned bool, kind domain.EventKind, now time.Time, ob *outbox) (*domain.StepExecution, error) {
	if index < inst.CurrentStepIndex {
		return nil, fmt.Errorf("%w: step index %d precedes current index %d", domain.ErrInvalidState, index, inst.CurrentStepIndex)
	}

	step := domain.NewStepExecution(inst, index, def.Steps[index], a, attempt, now)
	inst.CurrentStepIndex = index
	if orphaned {
		step.Status = domain.StepOrphaned
		step.CompletedAt = &now
		inst.Status = domain.WorkflowPending
		kind = domain.EventApprovalOrphaned
	} else {
		inst.Status = domain.WorkflowInProgress
	}
	inst.UpdatedAt = now

	if err := tx.CreateStepExecution(ctx, step); err != nil {
		return nil, err
	}
	if err := e.record(ctx, tx, inst, &step.ID, "", string(step.Status), nil, nil, "", now); err != nil {
		return nil, err
	}

	if orphaned {
		e.logger.Warn("step has no eligible assignee",
			zap.Stringer("instance_id", inst.ID),
			zap.Int("step_index", index),
			zap.String("role", a.Role))
	}
	ob.add(newEvent(kind, def, inst, step, now))
	return step, nil
}
