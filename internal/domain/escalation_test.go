package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEscalationPolicyLevelAt(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	policy := EscalationPolicy{GracePeriod: 24 * time.Hour, UrgentBefore: 4 * time.Hour}

	assert.Equal(t, EscalationNone, policy.LevelAt(due, due.Add(-time.Minute)))
	assert.Equal(t, EscalationReminder, policy.LevelAt(due, due))
	assert.Equal(t, EscalationReminder, policy.LevelAt(due, due.Add(19*time.Hour)))
	assert.Equal(t, EscalationUrgent, policy.LevelAt(due, due.Add(20*time.Hour)))
	assert.Equal(t, EscalationExpired, policy.LevelAt(due, due.Add(24*time.Hour)))
	assert.Equal(t, EscalationExpired, policy.LevelAt(due, due.Add(30*24*time.Hour)))
}

func TestEscalationPolicyWithoutUrgentOrGrace(t *testing.T) {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	noUrgent := EscalationPolicy{GracePeriod: time.Hour}
	assert.Equal(t, EscalationReminder, noUrgent.LevelAt(due, due.Add(59*time.Minute)))

	// Without a grace period the step expires as soon as it is due.
	noGrace := EscalationPolicy{}
	assert.Equal(t, EscalationExpired, noGrace.LevelAt(due, due))
	assert.Equal(t, due, noGrace.Deadline(due))
}

func TestEscalationLevelString(t *testing.T) {
	assert.Equal(t, "none", EscalationNone.String())
	assert.Equal(t, "reminder", EscalationReminder.String())
	assert.Equal(t, "urgent", EscalationUrgent.String())
	assert.Equal(t, "expired", EscalationExpired.String())
}
