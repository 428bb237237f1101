package domain

import (
	"time"

	"github.com/google/uuid"
)

type StepStatus string

const (
	StepPending          StepStatus = "PENDING"
	StepApproved         StepStatus = "APPROVED"
	StepRejected         StepStatus = "REJECTED"
	StepRequestedChanges StepStatus = "REQUESTED_CHANGES"
	StepReassigned       StepStatus = "REASSIGNED"
	StepOrphaned         StepStatus = "ORPHANED"
	StepExpired          StepStatus = "EXPIRED"
	StepCancelled        StepStatus = "CANCELLED"
)

// StepExecution records one routed attempt at a workflow step. Only Pending
// executions accept decisions; every other status is final for the row.
// DueAt is written once on creation.
type StepExecution struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;"`
	InstanceID uuid.UUID `gorm:"type:uuid;index;not null"`
	CompanyID  uuid.UUID `gorm:"type:uuid;index;not null"`
	StepIndex  int       `gorm:"not null"`
	StepName   string    `gorm:"type:varchar(100)"`
	Attempt    int       `gorm:"not null;default:1"`

	AssignedRole   *string    `gorm:"type:varchar(50)"`
	AssignedUserID *uuid.UUID `gorm:"type:uuid;index"`

	Status         StepStatus      `gorm:"type:varchar(20);index;default:'PENDING'"`
	Decision       *Decision       `gorm:"type:varchar(20)"`
	Notes          *string         `gorm:"type:text"`
	LastEscalation EscalationLevel `gorm:"default:0"`
	Version        int             `gorm:"default:1"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueAt       time.Time `gorm:"index;not null"`
	CompletedAt *time.Time
	CompletedBy *uuid.UUID `gorm:"type:uuid"`
}

func NewStepExecution(inst *WorkflowInstance, index int, tpl StepTemplate, a Assignment, attempt int, now time.Time) *StepExecution {
	step := &StepExecution{
		ID:         uuid.New(),
		InstanceID: inst.ID,
		CompanyID:  inst.CompanyID,
		StepIndex:  index,
		StepName:   tpl.Name,
		Attempt:    attempt,
		Status:     StepPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		DueAt:      now.Add(tpl.Timeout),
	}
	a.applyTo(step)
	return step
}

func (s *StepExecution) IsPending() bool {
	return s.Status == StepPending
}

// Assignment returns who the execution is routed to.
func (s *StepExecution) Assignment() Assignment {
	var a Assignment
	if s.AssignedUserID != nil {
		a.UserID = *s.AssignedUserID
	}
	if s.AssignedRole != nil {
		a.Role = *s.AssignedRole
	}
	return a
}

// StepPatch is the set of mutable fields a conditional update may write.
// Nil fields are left untouched.
type StepPatch struct {
	Status      *StepStatus
	Decision    *Decision
	Notes       *string
	CompletedAt *time.Time
	CompletedBy *uuid.UUID
}

// CompletionPatch builds the patch for moving a pending execution to a final status.
func CompletionPatch(status StepStatus, decision *Decision, actor *uuid.UUID, notes string, now time.Time) StepPatch {
	p := StepPatch{
		Status:      &status,
		Decision:    decision,
		CompletedAt: &now,
		CompletedBy: actor,
	}
	if notes != "" {
		p.Notes = &notes
	}
	return p
}

// Apply writes the patch onto s and bumps its version.
func (p StepPatch) Apply(s *StepExecution, now time.Time) {
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Decision != nil {
		d := *p.Decision
		s.Decision = &d
	}
	if p.Notes != nil {
		n := *p.Notes
		s.Notes = &n
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		s.CompletedAt = &t
	}
	if p.CompletedBy != nil {
		by := *p.CompletedBy
		s.CompletedBy = &by
	}
	s.Version++
	s.UpdatedAt = now
}

// Assignment is the routing result for a step: a concrete user, a role whose
// members may all act (first to act wins), or both.
type Assignment struct {
	UserID uuid.UUID `json:"user_id,omitempty"`
	Role   string    `json:"role,omitempty"`
}

func (a Assignment) IsZero() bool {
	return a.UserID == uuid.Nil && a.Role == ""
}

func (a Assignment) applyTo(s *StepExecution) {
	if a.UserID != uuid.Nil {
		id := a.UserID
		s.AssignedUserID = &id
	}
	if a.Role != "" {
		role := a.Role
		s.AssignedRole = &role
	}
}
