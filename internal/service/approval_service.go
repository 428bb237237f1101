package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go-approvals/internal/api/dto"
	"go-approvals/internal/domain"
	"go-approvals/internal/engine"
	"go-approvals/internal/escalation"

	"github.com/google/uuid"
)

type ApprovalService interface {
	CreateDefinition(ctx context.Context, req dto.CreateDefinitionRequest) (*domain.WorkflowDefinition, error)
	GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error)
	StartWorkflow(ctx context.Context, actorID uuid.UUID, req dto.StartWorkflowRequest) (*engine.InstanceState, error)
	GetInstance(ctx context.Context, id uuid.UUID) (*engine.InstanceState, error)
	History(ctx context.Context, id uuid.UUID) ([]domain.Transition, error)
	SubmitDecision(ctx context.Context, stepID, actorID uuid.UUID, req dto.DecisionRequest) (*engine.InstanceState, error)
	Reassign(ctx context.Context, stepID, actorID uuid.UUID, req dto.ReassignRequest) (*engine.InstanceState, error)
	Resubmit(ctx context.Context, instanceID, actorID uuid.UUID) (*engine.InstanceState, error)
	Cancel(ctx context.Context, instanceID, actorID uuid.UUID, req dto.CancelRequest) (*engine.InstanceState, error)
	PendingApprovals(ctx context.Context, companyID, actorID uuid.UUID) ([]domain.StepExecution, error)
	RunSweep(ctx context.Context, req dto.SweepRequest) (escalation.Report, error)
}

// Defaults fill escalation windows a definition request leaves empty.
type Defaults struct {
	GracePeriod  time.Duration
	UrgentBefore time.Duration
}

// The Implementation
type approvalService struct {
	engine    *engine.Engine
	scheduler *escalation.Scheduler
	defaults  Defaults
	now       func() time.Time
}

// Constructor
func NewApprovalService(e *engine.Engine, s *escalation.Scheduler, defaults Defaults) ApprovalService {
	return &approvalService{
		engine:    e,
		scheduler: s,
		defaults:  defaults,
		now:       time.Now,
	}
}

func (s *approvalService) CreateDefinition(ctx context.Context, req dto.CreateDefinitionRequest) (*domain.WorkflowDefinition, error) {
	// Converting the dto objects to step templates
	steps := make([]domain.StepTemplate, 0, len(req.Steps))
	for i, sd := range req.Steps {
		tpl, err := s.stepTemplate(sd)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", domain.ErrInvalidDefinition, i, err)
		}
		steps = append(steps, tpl)
	}

	def := domain.NewDefinition(req.Name, domain.ChangesPolicy(strings.ToLower(req.ChangesPolicy)), steps)
	if err := s.engine.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

func (s *approvalService) stepTemplate(sd dto.StepDTO) (domain.StepTemplate, error) {
	timeout, err := time.ParseDuration(sd.Timeout)
	if err != nil {
		return domain.StepTemplate{}, fmt.Errorf("timeout: %w", err)
	}
	grace, err := durationOr(sd.GracePeriod, s.defaults.GracePeriod)
	if err != nil {
		return domain.StepTemplate{}, fmt.Errorf("grace_period: %w", err)
	}
	urgent, err := durationOr(sd.UrgentBefore, s.defaults.UrgentBefore)
	if err != nil {
		return domain.StepTemplate{}, fmt.Errorf("urgent_before: %w", err)
	}
	return domain.StepTemplate{
		Name: sd.Name,
		Rule: domain.AssigneeRule{
			Kind:   domain.RuleKind(sd.Assignee.Kind),
			UserID: sd.Assignee.UserID,
			Role:   sd.Assignee.Role,
		},
		Timeout: timeout,
		Escalation: domain.EscalationPolicy{
			GracePeriod:  grace,
			UrgentBefore: urgent,
		},
	}, nil
}

func durationOr(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	return time.ParseDuration(raw)
}

func (s *approvalService) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	return s.engine.GetDefinition(ctx, id)
}

func (s *approvalService) StartWorkflow(ctx context.Context, actorID uuid.UUID, req dto.StartWorkflowRequest) (*engine.InstanceState, error) {
	if req.DefinitionID == uuid.Nil && req.DefinitionName == "" {
		return nil, fmt.Errorf("%w: definition_id or definition_name is required", domain.ErrInvalidInput)
	}
	return s.engine.StartWorkflow(ctx, engine.StartRequest{
		DefinitionID:   req.DefinitionID,
		DefinitionName: req.DefinitionName,
		CompanyID:      req.CompanyID,
		RequestedBy:    actorID,
		BusinessObject: domain.BusinessObjectRef{
			Type: req.BusinessObject.Type,
			ID:   req.BusinessObject.ID,
		},
	})
}

func (s *approvalService) GetInstance(ctx context.Context, id uuid.UUID) (*engine.InstanceState, error) {
	return s.engine.GetInstanceState(ctx, id)
}

func (s *approvalService) History(ctx context.Context, id uuid.UUID) ([]domain.Transition, error) {
	return s.engine.History(ctx, id)
}

// SubmitDecision returns the instance state after the decision so callers
// see where the workflow went next.
func (s *approvalService) SubmitDecision(ctx context.Context, stepID, actorID uuid.UUID, req dto.DecisionRequest) (*engine.InstanceState, error) {
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		return nil, err
	}
	step, err := s.engine.SubmitDecision(ctx, stepID, actorID, decision, req.Notes)
	if err != nil {
		return nil, err
	}
	return s.engine.GetInstanceState(ctx, step.InstanceID)
}

func (s *approvalService) Reassign(ctx context.Context, stepID, actorID uuid.UUID, req dto.ReassignRequest) (*engine.InstanceState, error) {
	target := domain.Assignment{UserID: req.UserID, Role: req.Role}
	if target.IsZero() {
		return nil, fmt.Errorf("%w: user_id or role is required", domain.ErrInvalidInput)
	}
	step, err := s.engine.Reassign(ctx, stepID, actorID, target, req.Notes)
	if err != nil {
		return nil, err
	}
	return s.engine.GetInstanceState(ctx, step.InstanceID)
}

func (s *approvalService) Resubmit(ctx context.Context, instanceID, actorID uuid.UUID) (*engine.InstanceState, error) {
	return s.engine.Resubmit(ctx, instanceID, actorID)
}

func (s *approvalService) Cancel(ctx context.Context, instanceID, actorID uuid.UUID, req dto.CancelRequest) (*engine.InstanceState, error) {
	return s.engine.Cancel(ctx, instanceID, actorID, req.Notes)
}

func (s *approvalService) PendingApprovals(ctx context.Context, companyID, actorID uuid.UUID) ([]domain.StepExecution, error) {
	return s.engine.ListPendingForActor(ctx, companyID, actorID)
}

func (s *approvalService) RunSweep(ctx context.Context, req dto.SweepRequest) (escalation.Report, error) {
	now := s.now()
	if req.Now != "" {
		at, err := time.Parse(time.RFC3339, req.Now)
		if err != nil {
			return escalation.Report{}, fmt.Errorf("%w: now must be RFC3339: %v", domain.ErrInvalidInput, err)
		}
		now = at
	}
	return s.scheduler.RunEscalationSweep(ctx, now)
}
