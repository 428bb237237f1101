package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventApprovalRequest        EventKind = "approval_request"
	EventApprovalReminder       EventKind = "approval_reminder"
	EventApprovalUrgentReminder EventKind = "approval_urgent_reminder"
	EventApprovalReassigned     EventKind = "approval_reassigned"
	EventApprovalOrphaned       EventKind = "approval_orphaned"
	EventApprovalCompleted      EventKind = "approval_completed"
	EventApprovalExpired        EventKind = "approval_expired"
)

var EventKinds = []EventKind{
	EventApprovalRequest,
	EventApprovalReminder,
	EventApprovalUrgentReminder,
	EventApprovalReassigned,
	EventApprovalOrphaned,
	EventApprovalCompleted,
	EventApprovalExpired,
}

// Event is the payload handed to notification sinks after a transition
// commits. It is published as JSON on the redis event bus and queue.
type Event struct {
	Kind            EventKind         `json:"kind"`
	InstanceID      uuid.UUID         `json:"instance_id"`
	StepExecutionID uuid.UUID         `json:"step_execution_id"`
	CompanyID       uuid.UUID         `json:"company_id"`
	DefinitionName  string            `json:"definition_name"`
	StepIndex       int               `json:"step_index"`
	StepName        string            `json:"step_name"`
	BusinessObject  BusinessObjectRef `json:"business_object"`
	RequestedBy     uuid.UUID         `json:"requested_by"`
	AssignedUserID  *uuid.UUID        `json:"assigned_user_id,omitempty"`
	AssignedRole    string            `json:"assigned_role,omitempty"`
	Recipients      []uuid.UUID       `json:"recipients"`
	ActorID         *uuid.UUID        `json:"actor_id,omitempty"`
	Decision        Decision          `json:"decision,omitempty"`
	InstanceStatus  WorkflowStatus    `json:"instance_status"`
	Notes           string            `json:"notes,omitempty"`
	DueAt           time.Time         `json:"due_at"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// Validate checks that the fields the templates for e.Kind rely on are set.
func (e Event) Validate() error {
	if e.InstanceID == uuid.Nil || e.StepExecutionID == uuid.Nil || e.CompanyID == uuid.Nil {
		return fmt.Errorf("event %s: missing identifiers", e.Kind)
	}
	if e.DefinitionName == "" || e.BusinessObject.Type == "" || e.BusinessObject.ID == "" || e.RequestedBy == uuid.Nil {
		return fmt.Errorf("event %s: missing workflow context", e.Kind)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("event %s: missing timestamp", e.Kind)
	}
	switch e.Kind {
	case EventApprovalRequest, EventApprovalReminder, EventApprovalUrgentReminder, EventApprovalReassigned:
		if e.AssignedUserID == nil && e.AssignedRole == "" {
			return fmt.Errorf("event %s: missing assignee", e.Kind)
		}
		if e.DueAt.IsZero() {
			return fmt.Errorf("event %s: missing due date", e.Kind)
		}
	case EventApprovalOrphaned:
		if e.AssignedRole == "" {
			return fmt.Errorf("event %s: missing role", e.Kind)
		}
	case EventApprovalCompleted:
		if !e.Decision.Valid() || e.ActorID == nil {
			return fmt.Errorf("event %s: missing decision or actor", e.Kind)
		}
	case EventApprovalExpired:
		if e.DueAt.IsZero() {
			return fmt.Errorf("event %s: missing due date", e.Kind)
		}
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}
