package engine

import (
	"context"
	"errors"
	"fmt"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitDecision records actor's decision on a pending step execution and
// advances the instance.
//
// Errors: ErrInvalidDecision for an unknown decision, ErrNotFound for an
// unknown execution, ErrForbidden when actor may not act, ErrStaleState when
// the execution is no longer pending or a concurrent transition won.
func (e *Engine) SubmitDecision(ctx context.Context, stepID, actorID uuid.UUID, decision domain.Decision, notes string) (*domain.StepExecution, error) {
	step, err := e.submitDecision(ctx, stepID, actorID, decision, notes)
	e.metrics.RecordDecision(string(decision), resultLabel(err))
	if errors.Is(err, domain.ErrStaleState) {
		e.metrics.RecordStaleConflict()
	}
	return step, err
}

func (e *Engine) submitDecision(ctx context.Context, stepID, actorID uuid.UUID, decision domain.Decision, notes string) (*domain.StepExecution, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDecision, decision)
	}

	step, inst, def, err := e.load(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if !step.IsPending() {
		return nil, fmt.Errorf("%w: step execution %s is %s", domain.ErrStaleState, step.ID, step.Status)
	}

	ok, err := e.router.CanAct(ctx, inst.CompanyID, step, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s may not act on step execution %s", domain.ErrForbidden, actorID, step.ID)
	}

	now := e.now()
	ob := &outbox{}
	var updated *domain.StepExecution

	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		expected, prev := inst.Version, inst.Status
		d := decision
		status := decision.StepStatus()

		var cerr error
		updated, cerr = tx.ConditionalUpdateStepExecution(ctx, step.ID, step.Version, domain.CompletionPatch(status, &d, &actorID, notes, now))
		if cerr != nil {
			return cerr
		}
		if err := e.record(ctx, tx, inst, &step.ID, string(domain.StepPending), string(status), &actorID, &d, notes, now); err != nil {
			return err
		}
		ob.add(newEvent(domain.EventApprovalCompleted, def, inst, updated, now))

		switch decision {
		case domain.DecisionApprove:
			if def.IsLastStep(step.StepIndex) {
				inst.Finish(domain.WorkflowApproved, now)
				ob.terminal = true
			} else if _, err := e.routeStep(ctx, tx, def, inst, step.StepIndex+1, 1, now, ob); err != nil {
				return err
			}
		case domain.DecisionReject:
			inst.Finish(domain.WorkflowRejected, now)
			ob.terminal = true
		case domain.DecisionRequestChanges:
			if def.ChangesPolicy == domain.ChangesReopen {
				if _, err := e.routeStep(ctx, tx, def, inst, step.StepIndex, step.Attempt+1, now, ob); err != nil {
					return err
				}
			} else {
				inst.Status = domain.WorkflowPending
				inst.UpdatedAt = now
			}
		}

		return e.commitInstance(ctx, tx, inst, expected, prev, &actorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("decide step execution %s: %w", step.ID, err)
	}

	e.logger.Info("step decided",
		zap.Stringer("instance_id", inst.ID),
		zap.Stringer("step_execution_id", step.ID),
		zap.Int("step_index", step.StepIndex),
		zap.String("decision", string(decision)),
		zap.Stringer("actor_id", actorID),
		zap.String("instance_status", string(inst.Status)))

	e.flush(ctx, def, inst, ob)
	return updated, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrStaleState):
		return "stale"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidDecision):
		return "invalid"
	default:
		return "error"
	}
}
