package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"go.uber.org/zap"
)

// Remind raises the escalation level of a pending execution and fires the
// matching reminder. It reports false, without notifying, when the level was
// already reached or the execution is no longer pending.
func (e *Engine) Remind(ctx context.Context, step *domain.StepExecution, level domain.EscalationLevel, now time.Time) (bool, error) {
	var kind domain.EventKind
	switch level {
	case domain.EscalationReminder:
		kind = domain.EventApprovalReminder
	case domain.EscalationUrgent:
		kind = domain.EventApprovalUrgentReminder
	default:
		return false, fmt.Errorf("%w: %s is not a reminder level", domain.ErrInvalidState, level)
	}

	inst, def, err := e.loadInstance(ctx, step.InstanceID)
	if err != nil {
		return false, err
	}

	changed, err := e.store.MarkEscalated(ctx, step.ID, level)
	if err != nil || !changed {
		return false, err
	}

	ob := &outbox{}
	ob.add(newEvent(kind, def, inst, step, now))
	e.flush(ctx, def, inst, ob)
	return true, nil
}

// Expire closes an overdue pending execution and short-circuits the
// instance to Expired.
func (e *Engine) Expire(ctx context.Context, step *domain.StepExecution, now time.Time) error {
	return e.closeStep(ctx, step, domain.StepExpired, now)
}

// Orphan closes a pending execution whose role lost every active member. The
// instance is parked in Pending until it is reassigned or resubmitted.
func (e *Engine) Orphan(ctx context.Context, step *domain.StepExecution, now time.Time) error {
	return e.closeStep(ctx, step, domain.StepOrphaned, now)
}

func (e *Engine) closeStep(ctx context.Context, step *domain.StepExecution, status domain.StepStatus, now time.Time) error {
	inst, def, err := e.loadInstance(ctx, step.InstanceID)
	if err != nil {
		return err
	}

	ob := &outbox{}
	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		expected, prev := inst.Version, inst.Status

		closed, err := tx.ConditionalUpdateStepExecution(ctx, step.ID, step.Version, domain.CompletionPatch(status, nil, nil, "", now))
		if err != nil {
			return err
		}
		if err := e.record(ctx, tx, inst, &step.ID, string(domain.StepPending), string(status), nil, nil, "", now); err != nil {
			return err
		}

		switch status {
		case domain.StepExpired:
			inst.Finish(domain.WorkflowExpired, now)
			ob.terminal = true
			ob.add(newEvent(domain.EventApprovalExpired, def, inst, closed, now))
		case domain.StepOrphaned:
			inst.Status = domain.WorkflowPending
			inst.UpdatedAt = now
			ob.add(newEvent(domain.EventApprovalOrphaned, def, inst, closed, now))
		}
		return e.commitInstance(ctx, tx, inst, expected, prev, nil, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleState) {
			e.metrics.RecordStaleConflict()
		}
		return fmt.Errorf("mark step execution %s %s: %w", step.ID, status, err)
	}

	e.logger.Info("step escalated",
		zap.Stringer("instance_id", inst.ID),
		zap.Stringer("step_execution_id", step.ID),
		zap.String("status", string(status)),
		zap.String("instance_status", string(inst.Status)))

	e.flush(ctx, def, inst, ob)
	return nil
}
