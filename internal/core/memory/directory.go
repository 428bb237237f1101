package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Directory maps user ids to email addresses.
type Directory struct {
	mu     sync.RWMutex
	emails map[uuid.UUID]string
}

func NewDirectory() *Directory {
	return &Directory{emails: make(map[uuid.UUID]string)}
}

func (d *Directory) Set(userID uuid.UUID, email string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emails[userID] = email
}

func (d *Directory) Addresses(ctx context.Context, userIDs []uuid.UUID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for _, id := range userIDs {
		if email, ok := d.emails[id]; ok {
			out = append(out, email)
		}
	}
	return out, nil
}
