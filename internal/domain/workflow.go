package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type WorkflowStatus string

const (
	WorkflowPending    WorkflowStatus = "PENDING"
	WorkflowInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowApproved   WorkflowStatus = "APPROVED"
	WorkflowRejected   WorkflowStatus = "REJECTED"
	WorkflowExpired    WorkflowStatus = "EXPIRED"
	WorkflowCancelled  WorkflowStatus = "CANCELLED"
)

// IsTerminal reports whether no further step can be routed for the status.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowApproved, WorkflowRejected, WorkflowExpired, WorkflowCancelled:
		return true
	}
	return false
}

// ChangesPolicy decides what happens after a RequestChanges decision.
type ChangesPolicy string

const (
	// ChangesResubmit parks the instance until an explicit Resubmit call.
	ChangesResubmit ChangesPolicy = "resubmit"
	// ChangesReopen immediately routes a fresh execution for the same step.
	ChangesReopen ChangesPolicy = "reopen"
)

type RuleKind string

const (
	RuleUser RuleKind = "user"
	RuleRole RuleKind = "role"
	// RuleAny is routed to the admin role of the company.
	RuleAny RuleKind = "any"
)

type AssigneeRule struct {
	Kind   RuleKind  `json:"kind"`
	UserID uuid.UUID `json:"user_id,omitempty"`
	Role   string    `json:"role,omitempty"`
}

type EscalationPolicy struct {
	// GracePeriod is how long past dueAt a step may sit before it expires.
	GracePeriod time.Duration `json:"grace_period"`
	// UrgentBefore is measured back from the final deadline (dueAt + GracePeriod).
	// Zero disables the urgent reminder.
	UrgentBefore time.Duration `json:"urgent_before"`
}

type StepTemplate struct {
	Name       string           `json:"name"`
	Rule       AssigneeRule     `json:"rule"`
	Timeout    time.Duration    `json:"timeout"`
	Escalation EscalationPolicy `json:"escalation"`
}

// WorkflowDefinition is immutable once stored. Editing a definition stores a
// new row with the same Name and the next Version.
type WorkflowDefinition struct {
	ID            uuid.UUID      `gorm:"type:uuid;primary_key;"`
	Name          string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_definition_name_version"`
	Version       int            `gorm:"not null;uniqueIndex:idx_definition_name_version"`
	ChangesPolicy ChangesPolicy  `gorm:"type:varchar(20);not null;default:'resubmit'"`
	Steps         []StepTemplate `gorm:"type:jsonb;serializer:json;not null"`

	CreatedAt time.Time
}

func NewDefinition(name string, policy ChangesPolicy, steps []StepTemplate) *WorkflowDefinition {
	if policy == "" {
		policy = ChangesResubmit
	}
	return &WorkflowDefinition{
		ID:            uuid.New(),
		Name:          name,
		ChangesPolicy: policy,
		Steps:         steps,
		CreatedAt:     time.Now(),
	}
}

// Validate checks the definition shape. It does not consult the roster.
func (d *WorkflowDefinition) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if d.ChangesPolicy != ChangesResubmit && d.ChangesPolicy != ChangesReopen {
		return fmt.Errorf("%w: unknown changes policy %q", ErrInvalidDefinition, d.ChangesPolicy)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidDefinition)
	}
	for i, s := range d.Steps {
		if s.Timeout <= 0 {
			return fmt.Errorf("%w: step %d: timeout must be positive", ErrInvalidDefinition, i)
		}
		if s.Escalation.GracePeriod < 0 || s.Escalation.UrgentBefore < 0 {
			return fmt.Errorf("%w: step %d: negative escalation window", ErrInvalidDefinition, i)
		}
		switch s.Rule.Kind {
		case RuleUser:
			if s.Rule.UserID == uuid.Nil {
				return fmt.Errorf("%w: step %d: user rule without user id", ErrInvalidDefinition, i)
			}
		case RuleRole:
			if s.Rule.Role == "" {
				return fmt.Errorf("%w: step %d: role rule without role", ErrInvalidDefinition, i)
			}
		case RuleAny:
		default:
			return fmt.Errorf("%w: step %d: unknown rule kind %q", ErrInvalidDefinition, i, s.Rule.Kind)
		}
	}
	return nil
}

func (d *WorkflowDefinition) IsLastStep(index int) bool {
	return index == len(d.Steps)-1
}

type BusinessObjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r BusinessObjectRef) String() string {
	return r.Type + "/" + r.ID
}

// WorkflowInstance is owned by the engine. Business objects only keep its ID.
type WorkflowInstance struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key;"`
	DefinitionID       uuid.UUID `gorm:"type:uuid;index;not null"`
	CompanyID          uuid.UUID `gorm:"type:uuid;index;not null"`
	RequestedBy        uuid.UUID `gorm:"type:uuid;not null"`
	BusinessObjectType string    `gorm:"type:varchar(50);not null;index:idx_instance_business_object"`
	BusinessObjectID   string    `gorm:"type:varchar(100);not null;index:idx_instance_business_object"`

	// State
	CurrentStepIndex int            `gorm:"not null;default:0"`
	Status           WorkflowStatus `gorm:"type:varchar(20);index;default:'PENDING'"`
	Version          int            `gorm:"default:1"`

	// Audit
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func NewInstance(def *WorkflowDefinition, companyID, requestedBy uuid.UUID, ref BusinessObjectRef, now time.Time) *WorkflowInstance {
	return &WorkflowInstance{
		ID:                 uuid.New(),
		DefinitionID:       def.ID,
		CompanyID:          companyID,
		RequestedBy:        requestedBy,
		BusinessObjectType: ref.Type,
		BusinessObjectID:   ref.ID,
		Status:             WorkflowPending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (w *WorkflowInstance) BusinessObject() BusinessObjectRef {
	return BusinessObjectRef{Type: w.BusinessObjectType, ID: w.BusinessObjectID}
}

func (w *WorkflowInstance) IsFinished() bool {
	return w.Status.IsTerminal()
}

// Finish moves the instance to a terminal status.
func (w *WorkflowInstance) Finish(status WorkflowStatus, now time.Time) {
	w.Status = status
	w.CompletedAt = &now
	w.UpdatedAt = now
}
