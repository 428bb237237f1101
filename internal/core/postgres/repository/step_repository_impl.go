package repository

import (
	"context"
	"time"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateStepExecution(ctx context.Context, step *domain.StepExecution) error {
	return s.db.WithContext(ctx).Create(step).Error
}

func (s *Store) GetStepExecution(ctx context.Context, id uuid.UUID) (*domain.StepExecution, error) {
	var step domain.StepExecution
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&step).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &step, nil
}

func (s *Store) ListStepExecutions(ctx context.Context, instanceID uuid.UUID) ([]domain.StepExecution, error) {
	var steps []domain.StepExecution
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("step_index ASC, attempt ASC").
		Find(&steps).Error
	return steps, err
}

func (s *Store) ConditionalUpdateStepExecution(ctx context.Context, id uuid.UUID, expectedVersion int, patch domain.StepPatch) (*domain.StepExecution, error) {
	now := time.Now()
	updates := map[string]interface{}{
		"version":    expectedVersion + 1,
		"updated_at": now,
	}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.Decision != nil {
		updates["decision"] = *patch.Decision
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = *patch.CompletedAt
	}
	if patch.CompletedBy != nil {
		updates["completed_by"] = *patch.CompletedBy
	}

	result := s.db.WithContext(ctx).
		Model(&domain.StepExecution{}).
		Where("id = ? AND version = ? AND status = ?", id, expectedVersion, domain.StepPending).
		Updates(updates)

	if result.Error != nil {
		return nil, result.Error
	}

	if result.RowsAffected == 0 {
		return nil, domain.ErrStaleState // Another actor won the race
	}

	return s.GetStepExecution(ctx, id)
}

func (s *Store) MarkEscalated(ctx context.Context, id uuid.UUID, level domain.EscalationLevel) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&domain.StepExecution{}).
		Where("id = ? AND status = ? AND last_escalation < ?", id, domain.StepPending, level).
		Update("last_escalation", level)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) FindPendingStepExecutions(ctx context.Context, now time.Time) ([]domain.StepExecution, error) {
	var steps []domain.StepExecution
	err := s.db.WithContext(ctx).
		Where("status = ? AND due_at <= ?", domain.StepPending, now).
		Order("due_at ASC").
		Find(&steps).Error
	return steps, err
}

func (s *Store) ListPendingForCompany(ctx context.Context, companyID uuid.UUID) ([]domain.StepExecution, error) {
	var steps []domain.StepExecution
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, domain.StepPending).
		Order("due_at ASC").
		Find(&steps).Error
	return steps, err
}
