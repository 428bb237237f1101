package domain

import "time"

type EscalationLevel int

const (
	EscalationNone EscalationLevel = iota
	EscalationReminder
	EscalationUrgent
	EscalationExpired
)

func (l EscalationLevel) String() string {
	switch l {
	case EscalationReminder:
		return "reminder"
	case EscalationUrgent:
		return "urgent"
	case EscalationExpired:
		return "expired"
	default:
		return "none"
	}
}

// Deadline is the instant after which a pending step expires.
func (p EscalationPolicy) Deadline(dueAt time.Time) time.Time {
	return dueAt.Add(p.GracePeriod)
}

// LevelAt returns the highest escalation level reached at now.
func (p EscalationPolicy) LevelAt(dueAt, now time.Time) EscalationLevel {
	if now.Before(dueAt) {
		return EscalationNone
	}
	deadline := p.Deadline(dueAt)
	if !now.Before(deadline) {
		return EscalationExpired
	}
	if p.UrgentBefore > 0 && !now.Before(deadline.Add(-p.UrgentBefore)) {
		return EscalationUrgent
	}
	return EscalationReminder
}
