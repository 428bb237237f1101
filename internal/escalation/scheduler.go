// Package escalation runs the periodic sweep over overdue approval steps.
// It is not self-scheduling: cron, the CLI or the HTTP endpoint call
// RunEscalationSweep.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"
	"go-approvals/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Escalator performs the transitions the sweep decides on.
type Escalator interface {
	Remind(ctx context.Context, step *domain.StepExecution, level domain.EscalationLevel, now time.Time) (bool, error)
	Expire(ctx context.Context, step *domain.StepExecution, now time.Time) error
	Orphan(ctx context.Context, step *domain.StepExecution, now time.Time) error
}

type Report struct {
	Scanned   int `json:"scanned"`
	Reminders int `json:"reminders"`
	Urgent    int `json:"urgent"`
	Expired   int `json:"expired"`
	Orphaned  int `json:"orphaned"`
	// Skipped counts rows another actor transitioned while the sweep ran.
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Scheduler struct {
	store     ports.Store
	escalator Escalator
	// roster is queried live; orphan detection must not see a cached roster.
	roster  ports.Roster
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewScheduler(store ports.Store, escalator Escalator, roster ports.Roster, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		escalator: escalator,
		roster:    roster,
		metrics:   m,
		logger:    logger,
	}
}

// RunEscalationSweep inspects every pending execution due at or before now.
// Each row is handled independently; a failing row is counted and logged
// and the sweep moves on. Running it twice with the same now fires nothing
// the second time.
func (s *Scheduler) RunEscalationSweep(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	var report Report
	steps, err := s.store.FindPendingStepExecutions(ctx, now)
	if err != nil {
		return report, fmt.Errorf("find pending step executions: %w", err)
	}

	defs := make(map[uuid.UUID]*domain.WorkflowDefinition)
	for i := range steps {
		step := &steps[i]
		report.Scanned++

		err := s.escalate(ctx, step, now, defs, &report)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrStaleState):
			report.Skipped++
		default:
			report.Failed++
			s.logger.Error("escalation failed",
				zap.Stringer("step_execution_id", step.ID),
				zap.Stringer("instance_id", step.InstanceID),
				zap.Error(err))
		}
	}

	s.logger.Info("escalation sweep finished",
		zap.Time("now", now),
		zap.Int("scanned", report.Scanned),
		zap.Int("reminders", report.Reminders),
		zap.Int("urgent", report.Urgent),
		zap.Int("expired", report.Expired),
		zap.Int("orphaned", report.Orphaned),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)))
	return report, nil
}

func (s *Scheduler) escalate(ctx context.Context, step *domain.StepExecution, now time.Time, defs map[uuid.UUID]*domain.WorkflowDefinition, report *Report) error {
	if step.AssignedUserID == nil && step.AssignedRole != nil {
		members, err := s.roster.UsersWithRole(ctx, step.CompanyID, *step.AssignedRole)
		if err != nil {
			return fmt.Errorf("roster lookup: %w", err)
		}
		if len(members) == 0 {
			if err := s.escalator.Orphan(ctx, step, now); err != nil {
				return err
			}
			report.Orphaned++
			s.metrics.RecordEscalation("orphaned")
			return nil
		}
	}

	def, err := s.definitionOf(ctx, step, defs)
	if err != nil {
		return err
	}
	if step.StepIndex >= len(def.Steps) {
		return fmt.Errorf("%w: step index %d outside definition %s", domain.ErrInvalidState, step.StepIndex, def.ID)
	}

	level := def.Steps[step.StepIndex].Escalation.LevelAt(step.DueAt, now)
	switch level {
	case domain.EscalationExpired:
		if err := s.escalator.Expire(ctx, step, now); err != nil {
			return err
		}
		report.Expired++
	case domain.EscalationReminder, domain.EscalationUrgent:
		if level <= step.LastEscalation {
			return nil
		}
		fired, err := s.escalator.Remind(ctx, step, level, now)
		if err != nil || !fired {
			return err
		}
		if level == domain.EscalationUrgent {
			report.Urgent++
		} else {
			report.Reminders++
		}
	default:
		return nil
	}
	s.metrics.RecordEscalation(level.String())
	return nil
}

func (s *Scheduler) definitionOf(ctx context.Context, step *domain.StepExecution, defs map[uuid.UUID]*domain.WorkflowDefinition) (*domain.WorkflowDefinition, error) {
	inst, err := s.store.GetInstance(ctx, step.InstanceID)
	if err != nil {
		return nil, err
	}
	if def, ok := defs[inst.DefinitionID]; ok {
		return def, nil
	}
	def, err := s.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, err
	}
	defs[inst.DefinitionID] = def
	return def, nil
}
