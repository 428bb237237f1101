package engine

import (
	"context"
	"encoding/json"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// outbox collects the side effects of a transaction so they run only after
// it commits.
type outbox struct {
	events   []domain.Event
	terminal bool
}

func (o *outbox) add(ev domain.Event) {
	o.events = append(o.events, ev)
}

func newEvent(kind domain.EventKind, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, step *domain.StepExecution, now time.Time) domain.Event {
	ev := domain.Event{
		Kind:            kind,
		InstanceID:      inst.ID,
		StepExecutionID: step.ID,
		CompanyID:       inst.CompanyID,
		DefinitionName:  def.Name,
		StepIndex:       step.StepIndex,
		StepName:        step.StepName,
		BusinessObject:  inst.BusinessObject(),
		RequestedBy:     inst.RequestedBy,
		DueAt:           step.DueAt,
		OccurredAt:      now,
	}
	a := step.Assignment()
	if a.UserID != uuid.Nil {
		id := a.UserID
		ev.AssignedUserID = &id
	}
	ev.AssignedRole = a.Role
	if step.Decision != nil {
		ev.Decision = *step.Decision
	}
	if step.CompletedBy != nil {
		by := *step.CompletedBy
		ev.ActorID = &by
	}
	if step.Notes != nil {
		ev.Notes = *step.Notes
	}
	return ev
}

// commitInstance records the instance status change (if any) and writes the
// instance under its version guard.
func (e *Engine) commitInstance(ctx context.Context, tx ports.Store, inst *domain.WorkflowInstance, expectedVersion int, prev domain.WorkflowStatus, actor *uuid.UUID, now time.Time) error {
	if prev != inst.Status {
		if err := e.record(ctx, tx, inst, nil, string(prev), string(inst.Status), actor, nil, "", now); err != nil {
			return err
		}
	}
	return tx.UpdateInstance(ctx, inst, expectedVersion)
}

func (e *Engine) record(ctx context.Context, tx ports.Store, inst *domain.WorkflowInstance, stepID *uuid.UUID, from, to string, actor *uuid.UUID, decision *domain.Decision, notes string, now time.Time) error {
	meta, err := json.Marshal(map[string]any{
		"step_index":    inst.CurrentStepIndex,
		"business_type": inst.BusinessObjectType,
		"business_id":   inst.BusinessObjectID,
	})
	if err != nil {
		return err
	}
	t := &domain.Transition{
		ID:              uuid.New(),
		InstanceID:      inst.ID,
		StepExecutionID: stepID,
		From:            from,
		To:              to,
		ActorID:         actor,
		Decision:        decision,
		Metadata:        datatypes.JSON(meta),
		At:              now,
	}
	if notes != "" {
		t.Notes = &notes
	}
	return tx.AppendTransition(ctx, t)
}

// flush dispatches the outbox. Failures are logged and counted only; the
// transition that produced them has already committed.
func (e *Engine) flush(ctx context.Context, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, ob *outbox) {
	ctx = context.WithoutCancel(ctx)

	for _, ev := range ob.events {
		ev.InstanceStatus = inst.Status
		ev.Recipients = e.recipients(ctx, ev)
		e.dispatch(ctx, ev)
	}

	if ob.terminal && e.hook != nil {
		if err := e.hook.OnInstanceTerminal(ctx, inst.BusinessObject(), inst.ID, inst.Status); err != nil {
			e.logger.Error("business hook failed",
				zap.Stringer("instance_id", inst.ID),
				zap.String("definition", def.Name),
				zap.String("status", string(inst.Status)),
				zap.Error(err))
		}
	}
}

func (e *Engine) recipients(ctx context.Context, ev domain.Event) []uuid.UUID {
	var (
		users []uuid.UUID
		err   error
	)
	switch ev.Kind {
	case domain.EventApprovalOrphaned:
		users, err = e.router.Recipients(ctx, ev.CompanyID, domain.Assignment{Role: e.router.AdminRole()})
	case domain.EventApprovalCompleted, domain.EventApprovalExpired:
		users = []uuid.UUID{ev.RequestedBy}
	default:
		a := domain.Assignment{Role: ev.AssignedRole}
		if ev.AssignedUserID != nil {
			a.UserID = *ev.AssignedUserID
		}
		users, err = e.router.Recipients(ctx, ev.CompanyID, a)
	}
	if err != nil {
		e.logger.Warn("could not resolve notification recipients",
			zap.String("kind", string(ev.Kind)),
			zap.Stringer("instance_id", ev.InstanceID),
			zap.Error(err))
	}
	return users
}

func (e *Engine) dispatch(ctx context.Context, ev domain.Event) {
	if err := ev.Validate(); err != nil {
		e.metrics.RecordNotification(string(ev.Kind), "invalid")
		e.logger.Error("dropping incomplete notification", zap.Error(err))
		return
	}
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.metrics.RecordNotification(string(ev.Kind), "failed")
		e.logger.Warn("notification dispatch failed",
			zap.String("kind", string(ev.Kind)),
			zap.Stringer("instance_id", ev.InstanceID),
			zap.Stringer("step_execution_id", ev.StepExecutionID),
			zap.Error(err))
		return
	}
	e.metrics.RecordNotification(string(ev.Kind), "sent")
}
