// Package router resolves who must act on a workflow step.
package router

import (
	"context"
	"fmt"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

// Router turns a StepTemplate rule into an Assignment. Resolution only
// depends on the template and the roster, so equal rosters route equally.
type Router struct {
	roster    ports.Roster
	adminRole string
}

func New(roster ports.Roster, adminRole string) *Router {
	return &Router{roster: roster, adminRole: adminRole}
}

func (r *Router) AdminRole() string {
	return r.adminRole
}

// RouteStep resolves the assignment for def.Steps[index]. A role rule whose
// role has no active members fails with ErrUnroutableStep; the returned
// assignment still names the role so the caller can record the orphan.
func (r *Router) RouteStep(ctx context.Context, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, index int) (domain.Assignment, error) {
	if index < 0 || index >= len(def.Steps) {
		return domain.Assignment{}, fmt.Errorf("%w: step %d out of range for %s v%d", domain.ErrInvalidState, index, def.Name, def.Version)
	}
	rule := def.Steps[index].Rule

	switch rule.Kind {
	case domain.RuleUser:
		return domain.Assignment{UserID: rule.UserID}, nil
	case domain.RuleRole:
		return r.routeRole(ctx, inst.CompanyID, rule.Role)
	case domain.RuleAny:
		return r.routeRole(ctx, inst.CompanyID, r.adminRole)
	}
	return domain.Assignment{}, fmt.Errorf("%w: unknown rule kind %q", domain.ErrInvalidDefinition, rule.Kind)
}

// Reroute validates an explicit reassignment target.
func (r *Router) Reroute(ctx context.Context, companyID uuid.UUID, target domain.Assignment) (domain.Assignment, error) {
	if target.UserID != uuid.Nil {
		return domain.Assignment{UserID: target.UserID}, nil
	}
	if target.Role == "" {
		return domain.Assignment{}, fmt.Errorf("%w: reassignment needs a user or a role", domain.ErrInvalidInput)
	}
	return r.routeRole(ctx, companyID, target.Role)
}

func (r *Router) routeRole(ctx context.Context, companyID uuid.UUID, role string) (domain.Assignment, error) {
	members, err := r.roster.UsersWithRole(ctx, companyID, role)
	if err != nil {
		return domain.Assignment{}, fmt.Errorf("roster lookup for role %q: %w", role, err)
	}
	a := domain.Assignment{Role: role}
	if len(members) == 0 {
		return a, fmt.Errorf("%w: role %q has no active members", domain.ErrUnroutableStep, role)
	}
	return a, nil
}

// CanAct reports whether actor may decide on step: the assigned user, any
// active holder of the assigned role, or an admin.
func (r *Router) CanAct(ctx context.Context, companyID uuid.UUID, step *domain.StepExecution, actor uuid.UUID) (bool, error) {
	if step.AssignedUserID != nil && *step.AssignedUserID == actor {
		return true, nil
	}
	if step.AssignedRole != nil {
		ok, err := r.HasRole(ctx, companyID, *step.AssignedRole, actor)
		if err != nil || ok {
			return ok, err
		}
	}
	return r.IsAdmin(ctx, companyID, actor)
}

func (r *Router) IsAdmin(ctx context.Context, companyID, actor uuid.UUID) (bool, error) {
	return r.HasRole(ctx, companyID, r.adminRole, actor)
}

func (r *Router) HasRole(ctx context.Context, companyID uuid.UUID, role string, actor uuid.UUID) (bool, error) {
	members, err := r.roster.UsersWithRole(ctx, companyID, role)
	if err != nil {
		return false, fmt.Errorf("roster lookup for role %q: %w", role, err)
	}
	for _, m := range members {
		if m == actor {
			return true, nil
		}
	}
	return false, nil
}

// Recipients lists who should hear about a step: the assigned user, or every
// active member of the assigned role.
func (r *Router) Recipients(ctx context.Context, companyID uuid.UUID, a domain.Assignment) ([]uuid.UUID, error) {
	if a.UserID != uuid.Nil {
		return []uuid.UUID{a.UserID}, nil
	}
	if a.Role == "" {
		return nil, nil
	}
	return r.roster.UsersWithRole(ctx, companyID, a.Role)
}
