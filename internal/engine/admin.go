package engine

import (
	"context"
	"fmt"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reassign moves a pending or orphaned execution to a new assignee. The old
// execution is closed and a fresh one with a new due date is created at the
// same step index. Admins and anyone allowed to act on the step may reassign.
func (e *Engine) Reassign(ctx context.Context, stepID, actorID uuid.UUID, target domain.Assignment, notes string) (*domain.StepExecution, error) {
	step, inst, def, err := e.load(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if inst.IsFinished() {
		return nil, fmt.Errorf("%w: instance %s is %s", domain.ErrInvalidState, inst.ID, inst.Status)
	}
	if step.Status != domain.StepPending && step.Status != domain.StepOrphaned {
		return nil, fmt.Errorf("%w: step execution %s is %s", domain.ErrStaleState, step.ID, step.Status)
	}

	ok, err := e.router.CanAct(ctx, inst.CompanyID, step, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s may not reassign step execution %s", domain.ErrForbidden, actorID, step.ID)
	}

	a, err := e.router.Reroute(ctx, inst.CompanyID, target)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ob := &outbox{}
	var next *domain.StepExecution

	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		expected, prev := inst.Version, inst.Status

		if step.IsPending() {
			if _, err := tx.ConditionalUpdateStepExecution(ctx, step.ID, step.Version, domain.CompletionPatch(domain.StepReassigned, nil, &actorID, notes, now)); err != nil {
				return err
			}
			if err := e.record(ctx, tx, inst, &step.ID, string(domain.StepPending), string(domain.StepReassigned), &actorID, nil, notes, now); err != nil {
				return err
			}
		} else if err := e.requireLatest(ctx, tx, inst, step); err != nil {
			return err
		}

		var perr error
		next, perr = e.placeStep(ctx, tx, def, inst, step.StepIndex, step.Attempt+1, a, false, domain.EventApprovalReassigned, now, ob)
		if perr != nil {
			return perr
		}
		ob.events[len(ob.events)-1].ActorID = &actorID
		ob.events[len(ob.events)-1].Notes = notes

		return e.commitInstance(ctx, tx, inst, expected, prev, &actorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("reassign step execution %s: %w", step.ID, err)
	}

	e.logger.Info("step reassigned",
		zap.Stringer("instance_id", inst.ID),
		zap.Stringer("from_step_execution_id", step.ID),
		zap.Stringer("to_step_execution_id", next.ID),
		zap.Stringer("actor_id", actorID))

	e.flush(ctx, def, inst, ob)
	return next, nil
}

// Resubmit re-routes the current step of a parked instance: after a
// RequestChanges decision under the resubmit policy, or after the step was
// orphaned and the roster has since been fixed. Only the requester or an
// admin may resubmit.
func (e *Engine) Resubmit(ctx context.Context, instanceID, actorID uuid.UUID) (*InstanceState, error) {
	inst, def, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != domain.WorkflowPending {
		return nil, fmt.Errorf("%w: instance %s is %s", domain.ErrInvalidState, inst.ID, inst.Status)
	}
	if err := e.requireRequesterOrAdmin(ctx, inst, actorID); err != nil {
		return nil, err
	}

	now := e.now()
	ob := &outbox{}

	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		expected, prev := inst.Version, inst.Status

		last, err := e.latestExecution(ctx, tx, inst)
		if err != nil {
			return err
		}
		if last.Status != domain.StepRequestedChanges && last.Status != domain.StepOrphaned {
			return fmt.Errorf("%w: last execution of instance %s is %s", domain.ErrInvalidState, inst.ID, last.Status)
		}
		if _, err := e.routeStep(ctx, tx, def, inst, last.StepIndex, last.Attempt+1, now, ob); err != nil {
			return err
		}
		return e.commitInstance(ctx, tx, inst, expected, prev, &actorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit instance %s: %w", inst.ID, err)
	}

	e.logger.Info("workflow resubmitted",
		zap.Stringer("instance_id", inst.ID),
		zap.Int("step_index", inst.CurrentStepIndex),
		zap.Stringer("actor_id", actorID))

	e.flush(ctx, def, inst, ob)
	return e.GetInstanceState(ctx, inst.ID)
}

// Cancel stops a running instance. The active execution, if any, is closed
// as Cancelled and the business hook is told once.
func (e *Engine) Cancel(ctx context.Context, instanceID, actorID uuid.UUID, notes string) (*InstanceState, error) {
	inst, def, err := e.loadInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.IsFinished() {
		return nil, fmt.Errorf("%w: instance %s is %s", domain.ErrInvalidState, inst.ID, inst.Status)
	}
	if err := e.requireRequesterOrAdmin(ctx, inst, actorID); err != nil {
		return nil, err
	}

	now := e.now()
	ob := &outbox{terminal: true}

	err = e.store.Atomically(ctx, func(tx ports.Store) error {
		expected, prev := inst.Version, inst.Status

		steps, err := tx.ListStepExecutions(ctx, inst.ID)
		if err != nil {
			return err
		}
		for _, s := range steps {
			if !s.IsPending() {
				continue
			}
			if _, err := tx.ConditionalUpdateStepExecution(ctx, s.ID, s.Version, domain.CompletionPatch(domain.StepCancelled, nil, &actorID, notes, now)); err != nil {
				return err
			}
			if err := e.record(ctx, tx, inst, &s.ID, string(domain.StepPending), string(domain.StepCancelled), &actorID, nil, notes, now); err != nil {
				return err
			}
		}

		inst.Finish(domain.WorkflowCancelled, now)
		return e.commitInstance(ctx, tx, inst, expected, prev, &actorID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("cancel instance %s: %w", inst.ID, err)
	}

	e.logger.Info("workflow cancelled",
		zap.Stringer("instance_id", inst.ID),
		zap.Stringer("actor_id", actorID))

	e.flush(ctx, def, inst, ob)
	return e.GetInstanceState(ctx, inst.ID)
}

func (e *Engine) requireRequesterOrAdmin(ctx context.Context, inst *domain.WorkflowInstance, actorID uuid.UUID) error {
	if inst.RequestedBy == actorID {
		return nil
	}
	admin, err := e.router.IsAdmin(ctx, inst.CompanyID, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return fmt.Errorf("%w: %s is neither requester nor admin of instance %s", domain.ErrForbidden, actorID, inst.ID)
	}
	return nil
}

// latestExecution returns the newest execution at the instance's current index.
func (e *Engine) latestExecution(ctx context.Context, tx ports.Store, inst *domain.WorkflowInstance) (*domain.StepExecution, error) {
	steps, err := tx.ListStepExecutions(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	var last *domain.StepExecution
	for i := range steps {
		if steps[i].StepIndex != inst.CurrentStepIndex {
			continue
		}
		if last == nil || steps[i].Attempt > last.Attempt {
			last = &steps[i]
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: instance %s has no execution at step %d", domain.ErrNotFound, inst.ID, inst.CurrentStepIndex)
	}
	return last, nil
}

// requireLatest rejects acting on an orphaned execution that has already been
// superseded by a later attempt.
func (e *Engine) requireLatest(ctx context.Context, tx ports.Store, inst *domain.WorkflowInstance, step *domain.StepExecution) error {
	last, err := e.latestExecution(ctx, tx, inst)
	if err != nil {
		return err
	}
	if last.ID != step.ID {
		return fmt.Errorf("%w: step execution %s was superseded by %s", domain.ErrStaleState, step.ID, last.ID)
	}
	return nil
}
