package engine_test

import (
	"time"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

func (s *EngineSuite) TestRequestChangesParksUntilResubmit() {
	state := s.start(s.def)
	s.decide(state.Active.ID, s.manager1, domain.DecisionApprove)
	state = s.state(state.Instance.ID)

	changed, err := s.engine.SubmitDecision(s.ctx, state.Active.ID, s.finance, domain.DecisionRequestChanges, "attach the quote")
	s.Require().NoError(err)
	s.Equal(domain.StepRequestedChanges, changed.Status)

	state = s.state(state.Instance.ID)
	s.Equal(domain.WorkflowPending, state.Instance.Status)
	s.Equal(1, state.Instance.CurrentStepIndex)
	s.Nil(state.Active)
	s.assertOnePending(state)

	_, err = s.engine.Resubmit(s.ctx, state.Instance.ID, s.stranger)
	s.ErrorIs(err, domain.ErrForbidden)

	s.now = s.now.Add(2 * time.Hour)
	state, err = s.engine.Resubmit(s.ctx, state.Instance.ID, s.requester)
	s.Require().NoError(err)
	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
	s.Require().NotNil(state.Active)
	s.Equal(1, state.Active.StepIndex)
	s.Equal(2, state.Active.Attempt)
	s.Equal(s.now.Add(24*time.Hour), state.Active.DueAt)
	s.assertOnePending(state)

	_, err = s.engine.Resubmit(s.ctx, state.Instance.ID, s.requester)
	s.ErrorIs(err, domain.ErrInvalidState, "nothing to resubmit while a step is pending")
}

func (s *EngineSuite) TestRequestChangesReopensUnderReopenPolicy() {
	def := s.createDefinition("contract", domain.ChangesReopen)
	state := s.start(def)

	s.decide(state.Active.ID, s.manager2, domain.DecisionRequestChanges)

	state = s.state(state.Instance.ID)
	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
	s.Equal(0, state.Instance.CurrentStepIndex)
	s.Require().NotNil(state.Active)
	s.Equal(2, state.Active.Attempt)
	s.Len(state.Steps, 2)
	s.assertOnePending(state)

	s.Equal([]domain.EventKind{
		domain.EventApprovalRequest,
		domain.EventApprovalCompleted,
		domain.EventApprovalRequest,
	}, s.notifier.kinds())
}

func (s *EngineSuite) TestReassignToUser() {
	state := s.start(s.def)
	delegate := uuid.New()
	old := state.Active

	_, err := s.engine.Reassign(s.ctx, old.ID, s.stranger, domain.Assignment{UserID: delegate}, "")
	s.ErrorIs(err, domain.ErrForbidden)

	s.now = s.now.Add(3 * time.Hour)
	next, err := s.engine.Reassign(s.ctx, old.ID, s.manager1, domain.Assignment{UserID: delegate}, "on leave")
	s.Require().NoError(err)
	s.Equal(domain.StepPending, next.Status)
	s.Equal(2, next.Attempt)
	s.Require().NotNil(next.AssignedUserID)
	s.Equal(delegate, *next.AssignedUserID)
	s.Equal(s.now.Add(24*time.Hour), next.DueAt)

	state = s.state(state.Instance.ID)
	s.assertOnePending(state)
	s.Equal(domain.StepReassigned, state.Steps[0].Status)

	ev := s.notifier.last()
	s.Equal(domain.EventApprovalReassigned, ev.Kind)
	s.Equal([]uuid.UUID{delegate}, ev.Recipients)
	s.Require().NotNil(ev.ActorID)
	s.Equal(s.manager1, *ev.ActorID)
	s.Equal("on leave", ev.Notes)

	// The old execution is closed; the delegate decides the new one.
	_, err = s.engine.SubmitDecision(s.ctx, old.ID, s.manager1, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrStaleState)
	_, err = s.engine.SubmitDecision(s.ctx, next.ID, s.manager1, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrForbidden)
	s.decide(next.ID, delegate, domain.DecisionApprove)
	s.Equal(1, s.state(state.Instance.ID).Instance.CurrentStepIndex)
}

func (s *EngineSuite) TestReassignToEmptyRoleFails() {
	state := s.start(s.def)
	_, err := s.engine.Reassign(s.ctx, state.Active.ID, s.admin, domain.Assignment{Role: "legal"}, "")
	s.ErrorIs(err, domain.ErrUnroutableStep)

	state = s.state(state.Instance.ID)
	s.True(state.Active.IsPending(), "failed reassignment leaves the step untouched")
}

func (s *EngineSuite) TestUnroutableFirstStepIsOrphaned() {
	def := domain.NewDefinition("legal-review", "", []domain.StepTemplate{
		{Name: "legal", Rule: domain.AssigneeRule{Kind: domain.RuleRole, Role: "legal"}, Timeout: time.Hour},
	})
	s.Require().NoError(s.engine.CreateDefinition(s.ctx, def))

	state := s.start(def)
	s.Equal(domain.WorkflowPending, state.Instance.Status)
	s.Nil(state.Active)
	s.Require().Len(state.Steps, 1)
	orphan := state.Steps[0]
	s.Equal(domain.StepOrphaned, orphan.Status)

	ev := s.notifier.last()
	s.Equal(domain.EventApprovalOrphaned, ev.Kind)
	s.Equal("legal", ev.AssignedRole)
	s.Equal([]uuid.UUID{s.admin}, ev.Recipients)

	// Only admins may move an orphaned step: nobody holds the role.
	_, err := s.engine.Reassign(s.ctx, orphan.ID, s.manager1, domain.Assignment{Role: "manager"}, "")
	s.ErrorIs(err, domain.ErrForbidden)

	next, err := s.engine.Reassign(s.ctx, orphan.ID, s.admin, domain.Assignment{Role: "manager"}, "")
	s.Require().NoError(err)
	s.Equal(2, next.Attempt)

	state = s.state(state.Instance.ID)
	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
	s.assertOnePending(state)

	// The orphan was superseded.
	_, err = s.engine.Reassign(s.ctx, orphan.ID, s.admin, domain.Assignment{Role: "manager"}, "")
	s.ErrorIs(err, domain.ErrStaleState)

	s.decide(next.ID, s.manager2, domain.DecisionApprove)
	s.Equal(domain.WorkflowApproved, s.state(state.Instance.ID).Instance.Status)
}

func (s *EngineSuite) TestResubmitAfterRosterFix() {
	def := domain.NewDefinition("legal-review", "", []domain.StepTemplate{
		{Name: "legal", Rule: domain.AssigneeRule{Kind: domain.RuleRole, Role: "legal"}, Timeout: time.Hour},
	})
	s.Require().NoError(s.engine.CreateDefinition(s.ctx, def))
	state := s.start(def)

	state, err := s.engine.Resubmit(s.ctx, state.Instance.ID, s.requester)
	s.Require().NoError(err)
	s.Equal(domain.WorkflowPending, state.Instance.Status, "still nobody to route to")
	s.Len(state.Steps, 2)

	lawyer := uuid.New()
	s.roster.Grant(s.company, "legal", lawyer)
	state, err = s.engine.Resubmit(s.ctx, state.Instance.ID, s.admin)
	s.Require().NoError(err)
	s.Equal(domain.WorkflowInProgress, state.Instance.Status)
	s.Require().NotNil(state.Active)
	s.Equal(3, state.Active.Attempt)
	s.assertOnePending(state)
}

func (s *EngineSuite) TestCancel() {
	state := s.start(s.def)

	_, err := s.engine.Cancel(s.ctx, state.Instance.ID, s.manager1, "")
	s.ErrorIs(err, domain.ErrForbidden)

	state, err = s.engine.Cancel(s.ctx, state.Instance.ID, s.requester, "no longer needed")
	s.Require().NoError(err)
	s.Equal(domain.WorkflowCancelled, state.Instance.Status)
	s.Nil(state.Active)
	s.Equal(domain.StepCancelled, state.Steps[0].Status)
	s.assertOnePending(state)

	s.Require().Len(s.hook.calls, 1)
	s.Equal(domain.WorkflowCancelled, s.hook.calls[0].status)

	_, err = s.engine.Cancel(s.ctx, state.Instance.ID, s.requester, "")
	s.ErrorIs(err, domain.ErrInvalidState)
	_, err = s.engine.SubmitDecision(s.ctx, state.Steps[0].ID, s.manager1, domain.DecisionApprove, "")
	s.ErrorIs(err, domain.ErrStaleState)
	s.Len(s.hook.calls, 1)
}

func (s *EngineSuite) TestGetInstanceStateUnknown() {
	_, err := s.engine.GetInstanceState(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.engine.History(s.ctx, uuid.New())
	s.ErrorIs(err, domain.ErrNotFound)
	_, err = s.engine.Resubmit(s.ctx, uuid.New(), s.requester)
	s.ErrorIs(err, domain.ErrNotFound)
}
