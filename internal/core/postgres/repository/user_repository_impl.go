package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds the contact details notifications are addressed to.
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primary_key;"`
	Email string    `gorm:"type:varchar(255);not null"`
	Name  string    `gorm:"type:varchar(100)"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type userRepository struct {
	db *gorm.DB
}

// NewUserDirectory creates an address book backed by the users table
func NewUserDirectory(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Addresses(ctx context.Context, userIDs []uuid.UUID) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var emails []string
	err := r.db.WithContext(ctx).
		Model(&User{}).
		Where("id IN ?", userIDs).
		Order("email ASC").
		Pluck("email", &emails).Error
	return emails, err
}
