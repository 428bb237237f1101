package dto

import (
	"time"

	"go-approvals/internal/domain"
	"go-approvals/internal/engine"

	"github.com/google/uuid"
)

type StepTemplateResponse struct {
	Name         string      `json:"name"`
	Assignee     AssigneeDTO `json:"assignee"`
	Timeout      string      `json:"timeout"`
	GracePeriod  string      `json:"grace_period"`
	UrgentBefore string      `json:"urgent_before"`
}

type DefinitionResponse struct {
	ID            uuid.UUID              `json:"id"`
	Name          string                 `json:"name"`
	Version       int                    `json:"version"`
	ChangesPolicy string                 `json:"changes_policy"`
	Steps         []StepTemplateResponse `json:"steps"`
	CreatedAt     time.Time              `json:"created_at"`
}

func NewDefinitionResponse(def *domain.WorkflowDefinition) DefinitionResponse {
	resp := DefinitionResponse{
		ID:            def.ID,
		Name:          def.Name,
		Version:       def.Version,
		ChangesPolicy: string(def.ChangesPolicy),
		CreatedAt:     def.CreatedAt,
	}
	for _, s := range def.Steps {
		resp.Steps = append(resp.Steps, StepTemplateResponse{
			Name: s.Name,
			Assignee: AssigneeDTO{
				Kind:   string(s.Rule.Kind),
				UserID: s.Rule.UserID,
				Role:   s.Rule.Role,
			},
			Timeout:      s.Timeout.String(),
			GracePeriod:  s.Escalation.GracePeriod.String(),
			UrgentBefore: s.Escalation.UrgentBefore.String(),
		})
	}
	return resp
}

type StepResponse struct {
	ID             uuid.UUID  `json:"id"`
	InstanceID     uuid.UUID  `json:"instance_id"`
	StepIndex      int        `json:"step_index"`
	StepName       string     `json:"step_name"`
	Attempt        int        `json:"attempt"`
	AssignedUserID *uuid.UUID `json:"assigned_user_id,omitempty"`
	AssignedRole   *string    `json:"assigned_role,omitempty"`
	Status         string     `json:"status"`
	Decision       *string    `json:"decision,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	Escalation     string     `json:"escalation"`
	DueAt          time.Time  `json:"due_at"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    *uuid.UUID `json:"completed_by,omitempty"`
}

func NewStepResponse(s *domain.StepExecution) StepResponse {
	resp := StepResponse{
		ID:             s.ID,
		InstanceID:     s.InstanceID,
		StepIndex:      s.StepIndex,
		StepName:       s.StepName,
		Attempt:        s.Attempt,
		AssignedUserID: s.AssignedUserID,
		AssignedRole:   s.AssignedRole,
		Status:         string(s.Status),
		Notes:          s.Notes,
		Escalation:     s.LastEscalation.String(),
		DueAt:          s.DueAt,
		CreatedAt:      s.CreatedAt,
		CompletedAt:    s.CompletedAt,
		CompletedBy:    s.CompletedBy,
	}
	if s.Decision != nil {
		d := string(*s.Decision)
		resp.Decision = &d
	}
	return resp
}

func NewStepResponses(steps []domain.StepExecution) []StepResponse {
	out := make([]StepResponse, 0, len(steps))
	for i := range steps {
		out = append(out, NewStepResponse(&steps[i]))
	}
	return out
}

type InstanceResponse struct {
	ID                uuid.UUID         `json:"id"`
	DefinitionID      uuid.UUID         `json:"definition_id"`
	DefinitionName    string            `json:"definition_name"`
	DefinitionVersion int               `json:"definition_version"`
	CompanyID         uuid.UUID         `json:"company_id"`
	RequestedBy       uuid.UUID         `json:"requested_by"`
	BusinessObject    BusinessObjectDTO `json:"business_object"`
	CurrentStepIndex  int               `json:"current_step_index"`
	Status            string            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	ActiveStep        *StepResponse     `json:"active_step,omitempty"`
	Steps             []StepResponse    `json:"steps"`
}

func NewInstanceResponse(state *engine.InstanceState) InstanceResponse {
	inst := state.Instance
	resp := InstanceResponse{
		ID:                inst.ID,
		DefinitionID:      inst.DefinitionID,
		DefinitionName:    state.Definition.Name,
		DefinitionVersion: state.Definition.Version,
		CompanyID:         inst.CompanyID,
		RequestedBy:       inst.RequestedBy,
		BusinessObject:    BusinessObjectDTO{Type: inst.BusinessObjectType, ID: inst.BusinessObjectID},
		CurrentStepIndex:  inst.CurrentStepIndex,
		Status:            string(inst.Status),
		CreatedAt:         inst.CreatedAt,
		UpdatedAt:         inst.UpdatedAt,
		CompletedAt:       inst.CompletedAt,
		Steps:             NewStepResponses(state.Steps),
	}
	if state.Active != nil {
		active := NewStepResponse(state.Active)
		resp.ActiveStep = &active
	}
	return resp
}

type TransitionResponse struct {
	Seq             int        `json:"seq"`
	StepExecutionID *uuid.UUID `json:"step_execution_id,omitempty"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	ActorID         *uuid.UUID `json:"actor_id,omitempty"`
	Decision        *string    `json:"decision,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	Metadata        any        `json:"metadata,omitempty"`
	At              time.Time  `json:"at"`
}

func NewTransitionResponses(ts []domain.Transition) []TransitionResponse {
	out := make([]TransitionResponse, 0, len(ts))
	for _, t := range ts {
		r := TransitionResponse{
			Seq:             t.Seq,
			StepExecutionID: t.StepExecutionID,
			From:            t.From,
			To:              t.To,
			ActorID:         t.ActorID,
			Notes:           t.Notes,
			At:              t.At,
		}
		if t.Decision != nil {
			d := string(*t.Decision)
			r.Decision = &d
		}
		if len(t.Metadata) > 0 {
			r.Metadata = t.Metadata
		}
		out = append(out, r)
	}
	return out
}

type ErrorResponse struct {
	Error string `json:"error"`
}
