package memory

import (
	"context"
	"sort"
	"sync"

	"go-approvals/internal/core/ports"

	"github.com/google/uuid"
)

type membership struct {
	companyID uuid.UUID
	role      string
	userID    uuid.UUID
}

// Roster is an in-process company roster. Deactivated users keep their role
// grants but are not returned by UsersWithRole.
type Roster struct {
	mu       sync.RWMutex
	grants   map[membership]struct{}
	inactive map[uuid.UUID]struct{}
}

func NewRoster() *Roster {
	return &Roster{
		grants:   make(map[membership]struct{}),
		inactive: make(map[uuid.UUID]struct{}),
	}
}

var _ ports.Roster = (*Roster)(nil)

func (r *Roster) Grant(companyID uuid.UUID, role string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[membership{companyID, role, userID}] = struct{}{}
}

func (r *Roster) Revoke(companyID uuid.UUID, role string, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, membership{companyID, role, userID})
}

func (r *Roster) SetActive(userID uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if active {
		delete(r.inactive, userID)
	} else {
		r.inactive[userID] = struct{}{}
	}
}

func (r *Roster) UsersWithRole(ctx context.Context, companyID uuid.UUID, role string) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []uuid.UUID
	for m := range r.grants {
		if m.companyID != companyID || m.role != role {
			continue
		}
		if _, off := r.inactive[m.userID]; off {
			continue
		}
		users = append(users, m.userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users, nil
}
