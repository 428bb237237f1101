package domain

import (
	"fmt"
	"strings"
)

type Decision string

const (
	DecisionApprove        Decision = "APPROVE"
	DecisionReject         Decision = "REJECT"
	DecisionRequestChanges Decision = "REQUEST_CHANGES"
)

// ParseDecision normalizes the decision strings accepted at the API boundary.
func ParseDecision(raw string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	case "request_changes", "request-changes", "requested_changes", "changes":
		return DecisionRequestChanges, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, raw)
}

func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionReject, DecisionRequestChanges:
		return true
	}
	return false
}

// StepStatus is the execution status a decision moves a pending step to.
func (d Decision) StepStatus() StepStatus {
	switch d {
	case DecisionApprove:
		return StepApproved
	case DecisionReject:
		return StepRejected
	default:
		return StepRequestedChanges
	}
}
