package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

type database struct {
	// txMu serializes writers; mu guards the maps.
	txMu sync.Mutex
	mu   sync.RWMutex

	definitions map[uuid.UUID]domain.WorkflowDefinition
	instances   map[uuid.UUID]domain.WorkflowInstance
	steps       map[uuid.UUID]domain.StepExecution
	transitions map[uuid.UUID][]domain.Transition
}

type snapshot struct {
	definitions map[uuid.UUID]domain.WorkflowDefinition
	instances   map[uuid.UUID]domain.WorkflowInstance
	steps       map[uuid.UUID]domain.StepExecution
	transitions map[uuid.UUID][]domain.Transition
}

func (d *database) snapshot() snapshot {
	snap := snapshot{
		definitions: make(map[uuid.UUID]domain.WorkflowDefinition, len(d.definitions)),
		instances:   make(map[uuid.UUID]domain.WorkflowInstance, len(d.instances)),
		steps:       make(map[uuid.UUID]domain.StepExecution, len(d.steps)),
		transitions: make(map[uuid.UUID][]domain.Transition, len(d.transitions)),
	}
	for k, v := range d.definitions {
		snap.definitions[k] = v
	}
	for k, v := range d.instances {
		snap.instances[k] = v
	}
	for k, v := range d.steps {
		snap.steps[k] = v
	}
	for k, v := range d.transitions {
		snap.transitions[k] = append([]domain.Transition(nil), v...)
	}
	return snap
}

func (d *database) restore(snap snapshot) {
	d.definitions = snap.definitions
	d.instances = snap.instances
	d.steps = snap.steps
	d.transitions = snap.transitions
}

// Store is a goroutine-safe ports.Store backed by maps. Atomically gives
// all-or-nothing semantics by restoring a snapshot when fn fails.
type Store struct {
	db   *database
	inTx bool
	now  func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		db: &database{
			definitions: make(map[uuid.UUID]domain.WorkflowDefinition),
			instances:   make(map[uuid.UUID]domain.WorkflowInstance),
			steps:       make(map[uuid.UUID]domain.StepExecution),
			transitions: make(map[uuid.UUID][]domain.Transition),
		},
		now: time.Now,
	}
}

var _ ports.Store = (*Store)(nil)

func (s *Store) write(fn func(d *database) error) error {
	if !s.inTx {
		s.db.txMu.Lock()
		defer s.db.txMu.Unlock()
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return fn(s.db)
}

func (s *Store) read(fn func(d *database) error) error {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return fn(s.db)
}

func (s *Store) Atomically(ctx context.Context, fn func(tx ports.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.txMu.Lock()
	defer s.db.txMu.Unlock()

	s.db.mu.RLock()
	snap := s.db.snapshot()
	s.db.mu.RUnlock()

	if err := fn(&Store{db: s.db, inTx: true, now: s.now}); err != nil {
		s.db.mu.Lock()
		s.db.restore(snap)
		s.db.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	return s.write(func(d *database) error {
		latest := 0
		for _, existing := range d.definitions {
			if existing.Name == def.Name && existing.Version > latest {
				latest = existing.Version
			}
		}
		def.Version = latest + 1
		stored := *def
		stored.Steps = append([]domain.StepTemplate(nil), def.Steps...)
		d.definitions[def.ID] = stored
		return nil
	})
}

func (s *Store) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	var out *domain.WorkflowDefinition
	err := s.read(func(d *database) error {
		def, ok := d.definitions[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = cloneDefinition(def)
		return nil
	})
	return out, err
}

func (s *Store) LatestDefinition(ctx context.Context, name string) (*domain.WorkflowDefinition, error) {
	var out *domain.WorkflowDefinition
	err := s.read(func(d *database) error {
		for _, def := range d.definitions {
			if def.Name == name && (out == nil || def.Version > out.Version) {
				out = cloneDefinition(def)
			}
		}
		if out == nil {
			return domain.ErrNotFound
		}
		return nil
	})
	return out, err
}

func (s *Store) CreateInstance(ctx context.Context, inst *domain.WorkflowInstance) error {
	return s.write(func(d *database) error {
		d.instances[inst.ID] = cloneInstance(*inst)
		return nil
	})
}

func (s *Store) GetInstance(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	var out *domain.WorkflowInstance
	err := s.read(func(d *database) error {
		inst, ok := d.instances[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := cloneInstance(inst)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) UpdateInstance(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int) error {
	return s.write(func(d *database) error {
		current, ok := d.instances[inst.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if current.Version != expectedVersion {
			return domain.ErrStaleState
		}
		inst.Version = expectedVersion + 1
		inst.UpdatedAt = s.now()
		d.instances[inst.ID] = cloneInstance(*inst)
		return nil
	})
}

func (s *Store) AppendTransition(ctx context.Context, t *domain.Transition) error {
	return s.write(func(d *database) error {
		existing := d.transitions[t.InstanceID]
		t.Seq = len(existing) + 1
		d.transitions[t.InstanceID] = append(existing, *t)
		return nil
	})
}

func (s *Store) ListTransitions(ctx context.Context, instanceID uuid.UUID) ([]domain.Transition, error) {
	var out []domain.Transition
	err := s.read(func(d *database) error {
		out = append(out, d.transitions[instanceID]...)
		return nil
	})
	return out, err
}

func (s *Store) CreateStepExecution(ctx context.Context, step *domain.StepExecution) error {
	return s.write(func(d *database) error {
		d.steps[step.ID] = cloneStep(*step)
		return nil
	})
}

func (s *Store) GetStepExecution(ctx context.Context, id uuid.UUID) (*domain.StepExecution, error) {
	var out *domain.StepExecution
	err := s.read(func(d *database) error {
		step, ok := d.steps[id]
		if !ok {
			return domain.ErrNotFound
		}
		c := cloneStep(step)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) ListStepExecutions(ctx context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error) {
	var out []domain.StepExecution
	err := s.read(func(d *database) error {
		for _, step := range d.steps {
			if step.InstanceID == instanceID {
				out = append(out, cloneStep(step))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].StepIndex != out[j].StepIndex {
			return out[i].StepIndex < out[j].StepIndex
		}
		return out[i].Attempt < out[j].Attempt
	})
	return out, err
}

func (s *Store) ConditionalUpdateStepExecution(ctx context.Context, id uuid.UUID, expectedVersion int, patch domain.StepPatch) (*domain.StepExecution, error) {
	var out *domain.StepExecution
	err := s.write(func(d *database) error {
		step, ok := d.steps[id]
		if !ok {
			return domain.ErrNotFound
		}
		if step.Version != expectedVersion || step.Status != domain.StepPending {
			return domain.ErrStaleState
		}
		patch.Apply(&step, s.now())
		d.steps[id] = step
		c := cloneStep(step)
		out = &c
		return nil
	})
	return out, err
}

func (s *Store) MarkEscalated(ctx context.Context, id uuid.UUID, level domain.EscalationLevel) (bool, error) {
	changed := false
	err := s.write(func(d *database) error {
		step, ok := d.steps[id]
		if !ok {
			return domain.ErrNotFound
		}
		if step.Status != domain.StepPending || step.LastEscalation >= level {
			return nil
		}
		step.LastEscalation = level
		d.steps[id] = step
		changed = true
		return nil
	})
	return changed, err
}

func (s *Store) FindPendingStepExecutions(ctx context.Context, now time.Time) ([]domain.StepExecution, error) {
	return s.pending(func(step domain.StepExecution) bool {
		return !step.DueAt.After(now)
	})
}

func (s *Store) ListPendingForCompany(ctx context.Context, companyID uuid.UUID) ([]domain.StepExecution, error) {
	return s.pending(func(step domain.StepExecution) bool {
		return step.CompanyID == companyID
	})
}

func (s *Store) pending(match func(domain.StepExecution) bool) ([]domain.StepExecution, error) {
	var out []domain.StepExecution
	err := s.read(func(d *database) error {
		for _, step := range d.steps {
			if step.Status == domain.StepPending && match(step) {
				out = append(out, cloneStep(step))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, err
}

func cloneDefinition(def domain.WorkflowDefinition) *domain.WorkflowDefinition {
	def.Steps = append([]domain.StepTemplate(nil), def.Steps...)
	return &def
}

func cloneInstance(inst domain.WorkflowInstance) domain.WorkflowInstance {
	if inst.CompletedAt != nil {
		t := *inst.CompletedAt
		inst.CompletedAt = &t
	}
	return inst
}

func cloneStep(step domain.StepExecution) domain.StepExecution {
	if step.AssignedRole != nil {
		v := *step.AssignedRole
		step.AssignedRole = &v
	}
	if step.AssignedUserID != nil {
		v := *step.AssignedUserID
		step.AssignedUserID = &v
	}
	if step.Decision != nil {
		v := *step.Decision
		step.Decision = &v
	}
	if step.Notes != nil {
		v := *step.Notes
		step.Notes = &v
	}
	if step.CompletedAt != nil {
		v := *step.CompletedAt
		step.CompletedAt = &v
	}
	if step.CompletedBy != nil {
		v := *step.CompletedBy
		step.CompletedBy = &v
	}
	return step
}
