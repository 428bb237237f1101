package repository

import (
	"context"
	"time"

	"go-approvals/internal/core/ports"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Member is one role grant of a user inside a company.
type Member struct {
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role      string    `gorm:"type:varchar(50);primaryKey"`
	Active    bool      `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Member) TableName() string {
	return "company_members"
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRoster creates a roster backed by the company_members table
func NewRoster(db *gorm.DB) *rosterRepository {
	return &rosterRepository{db: db}
}

var _ ports.Roster = (*rosterRepository)(nil)

func (r *rosterRepository) UsersWithRole(ctx context.Context, companyID uuid.UUID, role string) ([]uuid.UUID, error) {
	var users []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Member{}).
		Where("company_id = ? AND role = ? AND active", companyID, role).
		Order("user_id ASC").
		Pluck("user_id", &users).Error
	return users, err
}

// Grant upserts an active role grant.
func (r *rosterRepository) Grant(ctx context.Context, companyID uuid.UUID, role string, userID uuid.UUID) error {
	m := Member{CompanyID: companyID, UserID: userID, Role: role, Active: true}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "company_id"}, {Name: "user_id"}, {Name: "role"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"active": true, "updated_at": time.Now()}),
		}).
		Create(&m).Error
}

// SetActive toggles every grant of userID inside companyID.
func (r *rosterRepository) SetActive(ctx context.Context, companyID, userID uuid.UUID, active bool) error {
	return r.db.WithContext(ctx).
		Model(&Member{}).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Update("active", active).Error
}
