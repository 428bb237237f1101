package hooks

import (
	"context"
	"errors"
	"testing"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRoutesByObjectType(t *testing.T) {
	r := NewRegistry(nil)

	var got []domain.WorkflowStatus
	r.Register("purchase_order", HookFunc(func(ctx context.Context, ref domain.BusinessObjectRef, id uuid.UUID, status domain.WorkflowStatus) error {
		got = append(got, status)
		return nil
	}))

	po := domain.BusinessObjectRef{Type: "purchase_order", ID: "PO-1"}
	inv := domain.BusinessObjectRef{Type: "invoice", ID: "INV-1"}

	require.NoError(t, r.OnInstanceTerminal(context.Background(), po, uuid.New(), domain.WorkflowApproved))
	require.NoError(t, r.OnInstanceTerminal(context.Background(), inv, uuid.New(), domain.WorkflowRejected))

	assert.Equal(t, []domain.WorkflowStatus{domain.WorkflowApproved}, got)
}

func TestRegistryWrapsHookErrors(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("ledger locked")
	r.Register("invoice", HookFunc(func(context.Context, domain.BusinessObjectRef, uuid.UUID, domain.WorkflowStatus) error {
		return boom
	}))

	err := r.OnInstanceTerminal(context.Background(), domain.BusinessObjectRef{Type: "invoice", ID: "7"}, uuid.New(), domain.WorkflowExpired)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "hook for invoice")
}
