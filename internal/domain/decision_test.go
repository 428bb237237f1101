package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	cases := map[string]Decision{
		"approve":         DecisionApprove,
		" Approved ":      DecisionApprove,
		"REJECT":          DecisionReject,
		"rejected":        DecisionReject,
		"request_changes": DecisionRequestChanges,
		"request-changes": DecisionRequestChanges,
	}
	for raw, want := range cases {
		got, err := ParseDecision(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseDecision("maybe")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	_, err = ParseDecision("")
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestDecisionStepStatus(t *testing.T) {
	assert.Equal(t, StepApproved, DecisionApprove.StepStatus())
	assert.Equal(t, StepRejected, DecisionReject.StepStatus())
	assert.Equal(t, StepRequestedChanges, DecisionRequestChanges.StepStatus())
	assert.False(t, Decision("MAYBE").Valid())
}
