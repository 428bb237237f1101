package dto

import "github.com/google/uuid"

type AssigneeDTO struct {
	Kind   string    `json:"kind" binding:"required,oneof=user role any"`
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

// StepDTO carries durations as Go duration strings ("72h", "30m").
// Empty escalation windows take the configured defaults.
type StepDTO struct {
	Name         string      `json:"name" binding:"required"`
	Assignee     AssigneeDTO `json:"assignee" binding:"required"`
	Timeout      string      `json:"timeout" binding:"required"`
	GracePeriod  string      `json:"grace_period"`
	UrgentBefore string      `json:"urgent_before"`
}

type CreateDefinitionRequest struct {
	Name          string    `json:"name" binding:"required"`
	ChangesPolicy string    `json:"changes_policy"`
	Steps         []StepDTO `json:"steps" binding:"required,min=1,dive"`
}

type BusinessObjectDTO struct {
	Type string `json:"type" binding:"required"`
	ID   string `json:"id" binding:"required"`
}

// StartWorkflowRequest names the definition by id or by name; a name starts
// the latest version.
type StartWorkflowRequest struct {
	DefinitionID   uuid.UUID         `json:"definition_id"`
	DefinitionName string            `json:"definition_name"`
	CompanyID      uuid.UUID         `json:"company_id" binding:"required"`
	BusinessObject BusinessObjectDTO `json:"business_object" binding:"required"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

type ReassignRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Notes  string    `json:"notes"`
}

type CancelRequest struct {
	Notes string `json:"notes"`
}

type SweepRequest struct {
	Now string `json:"now"`
}
