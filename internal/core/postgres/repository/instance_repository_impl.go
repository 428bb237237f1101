package repository

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) CreateInstance(ctx context.Context, inst *domain.WorkflowInstance) error {
	return s.db.WithContext(ctx).Create(inst).Error
}

func (s *Store) GetInstance(ctx context.Context, id uuid.UUID) (*domain.WorkflowInstance, error) {
	var inst domain.WorkflowInstance
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

// UpdateInstance uses the same optimistic guard as step claims: the write
// only lands when the stored version still equals expectedVersion.
func (s *Store) UpdateInstance(ctx context.Context, inst *domain.WorkflowInstance, expectedVersion int) error {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&domain.WorkflowInstance{}).
		Where("id = ? AND version = ?", inst.ID, expectedVersion).
		Updates(map[string]interface{}{
			"current_step_index": inst.CurrentStepIndex,
			"status":             inst.Status,
			"completed_at":       inst.CompletedAt,
			"version":            expectedVersion + 1,
			"updated_at":         now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return domain.ErrStaleState
	}

	inst.Version = expectedVersion + 1
	inst.UpdatedAt = now
	return nil
}

func (s *Store) AppendTransition(ctx context.Context, t *domain.Transition) error {
	var last int
	err := s.db.WithContext(ctx).
		Model(&domain.Transition{}).
		Where("instance_id = ?", t.InstanceID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return err
	}
	t.Seq = last + 1

	// A concurrent transaction that read the same MAX(seq) commits first and
	// this insert hits the (instance_id, seq) unique index. That is a lost
	// race on the instance, not a storage failure.
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: transition %d of instance %s already written", domain.ErrStaleState, t.Seq, t.InstanceID)
		}
		return err
	}
	return nil
}

func (s *Store) ListTransitions(ctx context.Context, instanceID uuid.UUID) ([]domain.Transition, error) {
	var transitions []domain.Transition
	err := s.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("seq ASC").
		Find(&transitions).Error
	return transitions, err
}
