package repository

import (
	"context"

	"go-approvals/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateDefinition stores def as the next version of def.Name. The unique
// (name, version) index rejects a concurrent writer that picked the same version.
func (s *Store) CreateDefinition(ctx context.Context, def *domain.WorkflowDefinition) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int
		err := tx.Model(&domain.WorkflowDefinition{}).
			Where("name = ?", def.Name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&latest).Error
		if err != nil {
			return err
		}
		def.Version = latest + 1
		return tx.Create(def).Error
	})
}

func (s *Store) GetDefinition(ctx context.Context, id uuid.UUID) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&def).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &def, nil
}

func (s *Store) LatestDefinition(ctx context.Context, name string) (*domain.WorkflowDefinition, error) {
	var def domain.WorkflowDefinition
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Order("version DESC").
		First(&def).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &def, nil
}
