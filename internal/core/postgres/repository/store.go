package repository

import (
	"context"
	"errors"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// uniqueViolation is the postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// Store implements ports.Store on top of gorm. Every method runs against
// db, which is the transaction handle inside Atomically.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new instance of Store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ ports.Store = (*Store)(nil)

// Migrate creates or updates the tables the engine and roster need.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&domain.WorkflowDefinition{},
		&domain.WorkflowInstance{},
		&domain.StepExecution{},
		&domain.Transition{},
		&Member{},
		&User{},
	)
}

func (s *Store) Atomically(ctx context.Context, fn func(tx ports.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// isUniqueViolation reports a duplicate key whether or not the gorm handle
// was opened with TranslateError.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
