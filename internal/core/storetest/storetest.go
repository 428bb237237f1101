// Package storetest holds behaviour tests every ports.Store implementation
// must pass. Backends embed StoreSuite and set NewStore.
package storetest

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type StoreSuite struct {
	suite.Suite
	// NewStore returns an empty store for each test.
	NewStore func() ports.Store

	ctx   context.Context
	store ports.Store
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) definition(name string) *domain.WorkflowDefinition {
	return domain.NewDefinition(name, domain.ChangesResubmit, []domain.StepTemplate{
		{Name: "review", Rule: domain.AssigneeRule{Kind: domain.RuleRole, Role: "manager"}, Timeout: time.Hour},
		{Name: "sign-off", Rule: domain.AssigneeRule{Kind: domain.RuleAny}, Timeout: 2 * time.Hour},
	})
}

// seed stores a definition, an instance and its first pending step.
func (s *StoreSuite) seed(company uuid.UUID, due time.Duration) (*domain.WorkflowInstance, *domain.StepExecution) {
	def := s.definition("po-" + uuid.NewString())
	s.Require().NoError(s.store.CreateDefinition(s.ctx, def))

	inst := domain.NewInstance(def, company, uuid.New(), domain.BusinessObjectRef{Type: "purchase_order", ID: uuid.NewString()}, s.now)
	s.Require().NoError(s.store.CreateInstance(s.ctx, inst))

	tpl := def.Steps[0]
	tpl.Timeout = due
	step := domain.NewStepExecution(inst, 0, tpl, domain.Assignment{Role: "manager"}, 1, s.now)
	s.Require().NoError(s.store.CreateStepExecution(s.ctx, step))
	return inst, step
}

func (s *StoreSuite) TestDefinitionVersions() {
	first := s.definition("expense")
	second := s.definition("expense")
	s.Require().NoError(s.store.CreateDefinition(s.ctx, first))
	s.Require().NoError(s.store.CreateDefinition(s.ctx, second))

	s.Equal(1, first.Version)
	s.Equal(2, second.Version)

	latest, err := s.store.LatestDefinition(s.ctx, "expense")
	s.Require().NoError(err)
	s.Equal(second.ID, latest.ID)
	s.Len(latest.Steps, 2)
	s.Equal(domain.RuleAny, latest.Steps[1].Rule.Kind)
	s.Equal(2*time.Hour, latest.Steps[1].Timeout)

	_, err = s.store.GetDefinition(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.store.LatestDefinition(s.ctx, "unknown")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestUpdateInstanceIsVersionGuarded() {
	inst, _ := s.seed(uuid.New(), time.Hour)

	inst.Status = domain.WorkflowInProgress
	s.Require().NoError(s.store.UpdateInstance(s.ctx, inst, 1))
	s.Equal(2, inst.Version)

	stale := *inst
	stale.Status = domain.WorkflowRejected
	s.ErrorIs(s.store.UpdateInstance(s.ctx, &stale, 1), domain.ErrStaleState)

	got, err := s.store.GetInstance(s.ctx, inst.ID)
	s.Require().NoError(err)
	s.Equal(domain.WorkflowInProgress, got.Status)
	s.Equal(2, got.Version)

	_, err = s.store.GetInstance(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *StoreSuite) TestConditionalUpdateClaimsOnce() {
	_, step := s.seed(uuid.New(), time.Hour)
	actor := uuid.New()
	d := domain.DecisionApprove

	updated, err := s.store.ConditionalUpdateStepExecution(s.ctx, step.ID, step.Version,
		domain.CompletionPatch(domain.StepApproved, &d, &actor, "looks fine", s.now))
	s.Require().NoError(err)
	s.Equal(domain.StepApproved, updated.Status)
	s.Equal(step.Version+1, updated.Version)
	s.Require().NotNil(updated.Decision)
	s.Equal(domain.DecisionApprove, *updated.Decision)
	s.Require().NotNil(updated.CompletedBy)
	s.Equal(actor, *updated.CompletedBy)

	// Same expected version: lost race.
	_, err = s.store.ConditionalUpdateStepExecution(s.ctx, step.ID, step.Version,
		domain.CompletionPatch(domain.StepRejected, nil, &actor, "", s.now))
	s.ErrorIs(err, domain.ErrStaleState)

	// Current version but no longer pending.
	_, err = s.store.ConditionalUpdateStepExecution(s.ctx, step.ID, updated.Version,
		domain.CompletionPatch(domain.StepRejected, nil, &actor, "", s.now))
	s.ErrorIs(err, domain.ErrStaleState)
}

func (s *StoreSuite) TestConcurrentClaimsHaveOneWinner() {
	_, step := s.seed(uuid.New(), time.Hour)

	const racers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		stales int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := uuid.New()
			d := domain.DecisionApprove
			_, err := s.store.ConditionalUpdateStepExecution(s.ctx, step.ID, step.Version,
				domain.CompletionPatch(domain.StepApproved, &d, &actor, "", s.now))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrStaleState):
				stales++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, wins)
	s.Equal(racers-1, stales)
}

func (s *StoreSuite) TestMarkEscalatedOnlyRaises() {
	_, step := s.seed(uuid.New(), time.Hour)

	changed, err := s.store.MarkEscalated(s.ctx, step.ID, domain.EscalationReminder)
	s.Require().NoError(err)
	s.True(changed)

	changed, err = s.store.MarkEscalated(s.ctx, step.ID, domain.EscalationReminder)
	s.Require().NoError(err)
	s.False(changed)

	changed, err = s.store.MarkEscalated(s.ctx, step.ID, domain.EscalationUrgent)
	s.Require().NoError(err)
	s.True(changed)

	got, err := s.store.GetStepExecution(s.ctx, step.ID)
	s.Require().NoError(err)
	s.Equal(domain.EscalationUrgent, got.LastEscalation)
	s.Equal(step.Version, got.Version, "escalation marks do not consume the claim version")

	_, err = s.store.ConditionalUpdateStepExecution(s.ctx, step.ID, got.Version,
		domain.CompletionPatch(domain.StepExpired, nil, nil, "", s.now))
	s.Require().NoError(err)

	changed, err = s.store.MarkEscalated(s.ctx, step.ID, domain.EscalationExpired)
	s.Require().NoError(err)
	s.False(changed)
}

func (s *StoreSuite) TestPendingQueries() {
	company := uuid.New()
	_, overdue := s.seed(company, time.Minute)
	_, later := s.seed(company, 48*time.Hour)
	_, elsewhere := s.seed(uuid.New(), time.Minute)
	_, closed := s.seed(company, time.Minute)

	_, err := s.store.ConditionalUpdateStepExecution(s.ctx, closed.ID, closed.Version,
		domain.CompletionPatch(domain.StepExpired, nil, nil, "", s.now))
	s.Require().NoError(err)

	due, err := s.store.FindPendingStepExecutions(s.ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.ElementsMatch([]uuid.UUID{overdue.ID, elsewhere.ID}, stepIDs(due))

	inbox, err := s.store.ListPendingForCompany(s.ctx, company)
	s.Require().NoError(err)
	s.Equal([]uuid.UUID{overdue.ID, later.ID}, stepIDs(inbox), "ordered by due date")
}

func (s *StoreSuite) TestTransitionsAreSequenced() {
	inst, step := s.seed(uuid.New(), time.Hour)

	for i, to := range []string{"PENDING", "IN_PROGRESS", "APPROVED"} {
		t := &domain.Transition{
			ID:              uuid.New(),
			InstanceID:      inst.ID,
			StepExecutionID: &step.ID,
			To:              to,
			Metadata:        []byte(`{"step_index":0}`),
			At:              s.now.Add(time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.store.AppendTransition(s.ctx, t))
		s.Equal(i+1, t.Seq)
	}

	history, err := s.store.ListTransitions(s.ctx, inst.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal("APPROVED", history[2].To)
	s.Equal(3, history[2].Seq)
}

// Transactions that open a new attempt on the same instance race on the
// transition sequence and the instance version. One commits, the rest see
// ErrStaleState and leave nothing behind.
func (s *StoreSuite) TestConcurrentInstanceTransactionsHaveOneWinner() {
	inst, _ := s.seed(uuid.New(), time.Hour)
	def, err := s.store.GetDefinition(s.ctx, inst.DefinitionID)
	s.Require().NoError(err)

	const racers = 6
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		stales int
		others []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mine := *inst
			err := s.store.Atomically(s.ctx, func(tx ports.Store) error {
				step := domain.NewStepExecution(&mine, 0, def.Steps[0], domain.Assignment{Role: "manager"}, 2, s.now)
				if err := tx.CreateStepExecution(s.ctx, step); err != nil {
					return err
				}
				if err := tx.AppendTransition(s.ctx, &domain.Transition{
					ID:              uuid.New(),
					InstanceID:      mine.ID,
					StepExecutionID: &step.ID,
					To:              string(domain.StepPending),
					At:              s.now,
				}); err != nil {
					return err
				}
				return tx.UpdateInstance(s.ctx, &mine, inst.Version)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrStaleState):
				stales++
			default:
				others = append(others, err)
			}
		}()
	}
	wg.Wait()

	s.Empty(others)
	s.Equal(1, wins)
	s.Equal(racers-1, stales)

	history, err := s.store.ListTransitions(s.ctx, inst.ID)
	s.Require().NoError(err)
	s.Len(history, 1)
	steps, err := s.store.ListStepExecutions(s.ctx, inst.ID)
	s.Require().NoError(err)
	s.Len(steps, 2, "the seeded attempt plus the winner's")
}

func (s *StoreSuite) TestAtomicallyRollsBack() {
	def := s.definition("rollback")
	s.Require().NoError(s.store.CreateDefinition(s.ctx, def))
	inst := domain.NewInstance(def, uuid.New(), uuid.New(), domain.BusinessObjectRef{Type: "invoice", ID: "INV-9"}, s.now)

	boom := errors.New("boom")
	err := s.store.Atomically(s.ctx, func(tx ports.Store) error {
		if err := tx.CreateInstance(s.ctx, inst); err != nil {
			return err
		}
		step := domain.NewStepExecution(inst, 0, def.Steps[0], domain.Assignment{Role: "manager"}, 1, s.now)
		if err := tx.CreateStepExecution(s.ctx, step); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.GetInstance(s.ctx, inst.ID)
	s.ErrorIs(err, domain.ErrNotFound)
	steps, err := s.store.ListStepExecutions(s.ctx, inst.ID)
	s.Require().NoError(err)
	s.Empty(steps)
}

func stepIDs(steps []domain.StepExecution) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(steps))
	for _, st := range steps {
		ids = append(ids, st.ID)
	}
	return ids
}
