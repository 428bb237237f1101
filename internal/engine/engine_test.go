package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go-approvals/internal/core/memory"
	"go-approvals/internal/domain"
	"go-approvals/internal/engine"
	"go-approvals/internal/router"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventKind, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (n *recordingNotifier) last() domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type hookCall struct {
	ref        domain.BusinessObjectRef
	instanceID uuid.UUID
	status     domain.WorkflowStatus
}

type recordingHook struct {
	mu    sync.Mutex
	calls []hookCall
}

func (h *recordingHook) OnInstanceTerminal(ctx context.Context, ref domain.BusinessObjectRef, instanceID uuid.UUID, status domain.WorkflowStatus) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, hookCall{ref: ref, instanceID: instanceID, status: status})
	return errors.New("hook failures are only logged")
}

type EngineSuite struct {
	suite.Suite

	ctx      context.Context
	store    *memory.Store
	roster   *memory.Roster
	notifier *recordingNotifier
	hook     *recordingHook
	engine   *engine.Engine
	now      time.Time

	company   uuid.UUID
	requester uuid.UUID
	manager1  uuid.UUID
	manager2  uuid.UUID
	finance   uuid.UUID
	director  uuid.UUID
	admin     uuid.UUID
	stranger  uuid.UUID

	def *domain.WorkflowDefinition
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.roster = memory.NewRoster()
	s.notifier = &recordingNotifier{}
	s.hook = &recordingHook{}
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.company = uuid.New()
	s.requester = uuid.New()
	s.manager1, s.manager2 = uuid.New(), uuid.New()
	s.finance = uuid.New()
	s.director = uuid.New()
	s.admin = uuid.New()
	s.stranger = uuid.New()

	s.roster.Grant(s.company, "manager", s.manager1)
	s.roster.Grant(s.company, "manager", s.manager2)
	s.roster.Grant(s.company, "finance", s.finance)
	s.roster.Grant(s.company, "admin", s.admin)

	s.engine = engine.New(s.store, router.New(s.roster, "admin"), s.notifier, s.hook,
		engine.WithClock(func() time.Time { return s.now }))

	s.def = s.createDefinition("purchase-order", domain.ChangesResubmit)
}

func (s *EngineSuite) createDefinition(name string, policy domain.ChangesPolicy) *domain.WorkflowDefinition {
	def := domain.NewDefinition(name, policy, []domain.StepTemplate{
		{Name: "manager review", Rule: domain.AssigneeRule{Kind: domain.RuleRole, Role: "manager"}, Timeout: 24 * time.Hour},
		{Name: "finance review", Rule: domain.AssigneeRule{Kind: domain.RuleRole, Role: "finance"}, Timeout: 24 * time.Hour},
		{Name: "director sign-off", Rule: domain.AssigneeRule{Kind: domain.RuleUser, UserID: s.director}, Timeout: 48 * time.Hour},
	})
	s.Require().NoError(s.engine.CreateDefinition(s.ctx, def))
	return def
}

func (s *EngineSuite) start(def *domain.WorkflowDefinition) *engine.InstanceState {
	state, err := s.engine.StartWorkflow(s.ctx, engine.StartRequest{
		DefinitionID:   def.ID,
		CompanyID:      s.company,
		RequestedBy:    s.requester,
		BusinessObject: domain.BusinessObjectRef{Type: "purchase_order", ID: "PO-" + uuid.NewString()[:8]},
	})
	s.Require().NoError(err)
	return state
}

func (s *EngineSuite) state(instanceID uuid.UUID) *engine.InstanceState {
	state, err := s.engine.GetInstanceState(s.ctx, instanceID)
	s.Require().NoError(err)
	return state
}

func (s *EngineSuite) decide(stepID, actor uuid.UUID, d domain.Decision) *domain.StepExecution {
	step, err := s.engine.SubmitDecision(s.ctx, stepID, actor, d, "")
	s.Require().NoError(err)
	return step
}

// assertOnePending checks that an in-progress instance has exactly one
// pending execution and it sits at the current index.
func (s *EngineSuite) assertOnePending(state *engine.InstanceState) {
	pending := 0
	for _, st := range state.Steps {
		if st.IsPending() {
			pending++
			s.Equal(state.Instance.CurrentStepIndex, st.StepIndex)
		}
	}
	switch state.Instance.Status {
	case domain.WorkflowInProgress:
		s.Equal(1, pending)
		s.Require().NotNil(state.Active)
	default:
		s.Equal(0, pending)
		s.Nil(state.Active)
	}
}

func (s *EngineSuite) TestStartWorkflowRoutesFirstStep() {
	state := s.start(s.def)

	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
	s.Equal(0, state.Instance.CurrentStepIndex)
	s.Require().NotNil(state.Active)
	s.Require().NotNil(state.Active.AssignedRole)
	s.Equal("manager", *state.Active.AssignedRole)
	s.Equal(s.now.Add(24*time.Hour), state.Active.DueAt)
	s.Equal(1, state.Active.Attempt)
	s.assertOnePending(state)

	s.Equal([]domain.EventKind{domain.EventApprovalRequest}, s.notifier.kinds())
	ev := s.notifier.last()
	s.ElementsMatch([]uuid.UUID{s.manager1, s.manager2}, ev.Recipients)
	s.Equal(domain.WorkflowInProgress, ev.InstanceStatus)
	s.Equal("purchase-order", ev.DefinitionName)
	s.NoError(ev.Validate())
}

func (s *EngineSuite) TestStartWorkflowByNameUsesLatestVersion() {
	v2 := s.createDefinition("purchase-order", domain.ChangesReopen)
	s.Equal(2, v2.Version)

	state, err := s.engine.StartWorkflow(s.ctx, engine.StartRequest{
		DefinitionName: "purchase-order",
		CompanyID:      s.company,
		RequestedBy:    s.requester,
		BusinessObject: domain.BusinessObjectRef{Type: "purchase_order", ID: "PO-2"},
	})
	s.Require().NoError(err)
	s.Equal(v2.ID, state.Instance.DefinitionID)

	_, err = s.engine.StartWorkflow(s.ctx, engine.StartRequest{
		DefinitionName: "missing",
		CompanyID:      s.company,
		RequestedBy:    s.requester,
		BusinessObject: domain.BusinessObjectRef{Type: "purchase_order", ID: "PO-3"},
	})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.engine.StartWorkflow(s.ctx, engine.StartRequest{DefinitionID: s.def.ID, CompanyID: s.company, RequestedBy: s.requester})
	s.ErrorIs(err, domain.ErrInvalidInput)
}

func (s *EngineSuite) TestCreateDefinitionRejectsInvalid() {
	def := domain.NewDefinition("broken", "", nil)
	s.ErrorIs(s.engine.CreateDefinition(s.ctx, def), domain.ErrInvalidDefinition)
}

func (s *EngineSuite) TestThreeStepApproval() {
	state := s.start(s.def)
	instanceID := state.Instance.ID

	s.decide(state.Active.ID, s.manager1, domain.DecisionApprove)
	state = s.state(instanceID)
	s.Equal(1, state.Instance.CurrentStepIndex)
	s.Require().NotNil(state.Active)
	s.Equal("finance", *state.Active.AssignedRole)
	s.assertOnePending(state)

	s.decide(state.Active.ID, s.finance, domain.DecisionApprove)
	state = s.state(instanceID)
	s.Equal(2, state.Instance.CurrentStepIndex)
	s.Require().NotNil(state.Active.AssignedUserID)
	s.Equal(s.director, *state.Active.AssignedUserID)
	s.Equal(s.now.Add(48*time.Hour), state.Active.DueAt)

	s.now = s.now.Add(time.Hour)
	last := s.decide(state.Active.ID, s.director, domain.DecisionApprove)
	s.Equal(domain.StepApproved, last.Status)

	state = s.state(instanceID)
	s.Equal(domain.WorkflowApproved, state.Instance.Status)
	s.Require().NotNil(state.Instance.CompletedAt)
	s.Equal(s.now, *state.Instance.CompletedAt)
	s.Len(state.Steps, 3)
	s.assertOnePending(state)

	s.Equal([]domain.EventKind{
		domain.EventApprovalRequest,
		domain.EventApprovalCompleted, domain.EventApprovalRequest,
		domain.EventApprovalCompleted, domain.EventApprovalRequest,
		domain.EventApprovalCompleted,
	}, s.notifier.kinds())
	done := s.notifier.last()
	s.Equal([]uuid.UUID{s.requester}, done.Recipients)
	s.Equal(domain.WorkflowApproved, done.InstanceStatus)
	s.Equal(domain.DecisionApprove, done.Decision)

	s.Require().Len(s.hook.calls, 1)
	s.Equal(instanceID, s.hook.calls[0].instanceID)
	s.Equal(domain.WorkflowApproved, s.hook.calls[0].status)
	s.Equal(state.Instance.BusinessObject(), s.hook.calls[0].ref)

	history, err := s.engine.History(s.ctx, instanceID)
	s.Require().NoError(err)
	s.NotEmpty(history)
	for i := range history {
		s.Equal(i+1, history[i].Seq)
	}
	s.Equal(string(domain.WorkflowApproved), history[len(history)-1].To)
}

func (s *EngineSuite) TestRejectAtSecondStepEndsWorkflow() {
	state := s.start(s.def)
	s.decide(state.Active.ID, s.manager2, domain.DecisionApprove)
	state = s.state(state.Instance.ID)

	rejected, err := s.engine.SubmitDecision(s.ctx, state.Active.ID, s.finance, domain.DecisionReject, "over budget")
	s.Require().NoError(err)
	s.Equal(domain.StepRejected, rejected.Status)
	s.Require().NotNil(rejected.Notes)
	s.Equal("over budget", *rejected.Notes)

	state = s.state(state.Instance.ID)
	s.Equal(domain.WorkflowRejected, state.Instance.Status)
	s.Equal(1, state.Instance.CurrentStepIndex)
	s.Len(state.Steps, 2, "no execution is created past a rejection")
	s.assertOnePending(state)

	s.Require().Len(s.hook.calls, 1)
	s.Equal(domain.WorkflowRejected, s.hook.calls[0].status)
	s.Equal("over budget", s.notifier.last().Notes)
}

func (s *EngineSuite) TestConcurrentDecisionsHaveOneWinner() {
	state := s.start(s.def)
	stepID := state.Active.ID

	actors := []uuid.UUID{s.manager1, s.manager2, s.admin}
	const racers = 12

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		stales int
		others []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(actor uuid.UUID, d domain.Decision) {
			defer wg.Done()
			_, err := s.engine.SubmitDecision(s.ctx, stepID, actor, d, "")
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
		}(actors[i%len(actors)], []domain.Decision{domain.DecisionApprove, domain.DecisionReject}[i%2])
	}
	wg.Wait()

	s.Empty(others)
	s.Equal(1, wins)
	s.Equal(racers-1, stales)

	state = s.state(state.Instance.ID)
	s.assertOnePending(state)
	s.LessOrEqual(len(state.Steps), 2)
	s.Equal(1, countKind(s.notifier.kinds(), domain.EventApprovalCompleted))
}

func (s *EngineSuite) TestDecisionErrors() {
	state := s.start(s.def)
	stepID := state.Active.ID

	_, err := s.engine.SubmitDecision(s.ctx, uuid.New(), s.manager1, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.engine.SubmitDecision(s.ctx, stepID, s.manager1, domain.Decision("MAYBE"), "")
	s.ErrorIs(err, domain.ErrInvalidDecision)

	_, err = s.engine.SubmitDecision(s.ctx, stepID, s.stranger, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrForbidden)
	_, err = s.engine.SubmitDecision(s.ctx, stepID, s.finance, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrForbidden, "finance does not hold the manager role")

	unchanged := s.state(state.Instance.ID)
	s.Equal(state.Instance.Version, unchanged.Instance.Version)
	s.True(unchanged.Active.IsPending())

	s.decide(stepID, s.manager1, domain.DecisionApprove)
	_, err = s.engine.SubmitDecision(s.ctx, stepID, s.manager2, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrStaleState)
}

func (s *EngineSuite) TestAdminMayDecideAnyStep() {
	state := s.start(s.def)
	s.decide(state.Active.ID, s.admin, domain.DecisionApprove)
	s.Equal(1, s.state(state.Instance.ID).Instance.CurrentStepIndex)
}

func (s *EngineSuite) TestNotificationFailureDoesNotUndoTransition() {
	s.notifier.err = errors.New("smtp down")
	state := s.start(s.def)
	s.decide(state.Active.ID, s.manager1, domain.DecisionApprove)

	state = s.state(state.Instance.ID)
	s.Equal(1, state.Instance.CurrentStepIndex)
	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
}

func (s *EngineSuite) TestListPendingForActor() {
	first := s.start(s.def)
	second := s.start(s.def)
	s.decide(second.Active.ID, s.manager1, domain.DecisionApprove)

	inbox, err := s.engine.ListPendingForActor(s.ctx, s.company, s.manager2)
	s.Require().NoError(err)
	s.Require().Len(inbox, 1)
	s.Equal(first.Active.ID, inbox[0].ID)

	inbox, err = s.engine.ListPendingForActor(s.ctx, s.company, s.finance)
	s.Require().NoError(err)
	s.Require().Len(inbox, 1)
	s.Equal(second.Instance.ID, inbox[0].InstanceID)

	inbox, err = s.engine.ListPendingForActor(s.ctx, s.company, s.admin)
	s.Require().NoError(err)
	s.Len(inbox, 2)

	inbox, err = s.engine.ListPendingForActor(s.ctx, s.company, s.stranger)
	s.Require().NoError(err)
	s.Empty(inbox)
}

func countKind(kinds []domain.EventKind, kind domain.EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}
