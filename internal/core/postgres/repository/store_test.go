package repository

import (
	"context"
	"testing"
	"time"

	"go-approvals/internal/core/ports"
	"go-approvals/internal/core/storetest"
	"go-approvals/internal/domain"
	"go-approvals/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := testutil.StartPostgres(t)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func truncate(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec("TRUNCATE TABLE workflow_definitions, workflow_instances, step_executions, workflow_transitions, company_members, users").Error
	require.NoError(t, err)
}

func TestPostgresStoreSuite(t *testing.T) {
	db := openTestDB(t)

	suite.Run(t, &storetest.StoreSuite{
		NewStore: func() ports.Store {
			truncate(t, db)
			return NewStore(db)
		},
	})
}

func TestPostgresRosterAndDirectory(t *testing.T) {
	db := openTestDB(t)
	truncate(t, db)
	ctx := context.Background()

	company := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	roster := NewRoster(db)
	require.NoError(t, roster.Grant(ctx, company, "finance", alice))
	require.NoError(t, roster.Grant(ctx, company, "finance", bob))
	require.NoError(t, roster.Grant(ctx, company, "finance", bob), "granting twice is an upsert")

	users, err := roster.UsersWithRole(ctx, company, "finance")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{alice, bob}, users)

	require.NoError(t, roster.SetActive(ctx, company, bob, false))
	users, err = roster.UsersWithRole(ctx, company, "finance")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, users)

	require.NoError(t, roster.Grant(ctx, company, "finance", bob))
	users, err = roster.UsersWithRole(ctx, company, "finance")
	require.NoError(t, err)
	assert.Len(t, users, 2, "re-granting reactivates")

	require.NoError(t, db.Create(&User{ID: alice, Email: "alice@example.com"}).Error)
	directory := NewUserDirectory(db)
	emails, err := directory.Addresses(ctx, []uuid.UUID{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com"}, emails)
}

func TestAppendTransitionLosingSequenceRaceIsStale(t *testing.T) {
	db := openTestDB(t)
	truncate(t, db)
	ctx := context.Background()
	instanceID := uuid.New()

	transition := func() *domain.Transition {
		return &domain.Transition{ID: uuid.New(), InstanceID: instanceID, To: "PENDING", At: time.Now()}
	}

	txA := db.Begin()
	require.NoError(t, txA.Error)
	require.NoError(t, NewStore(txA).AppendTransition(ctx, transition()))

	// txB reads the same MAX(seq) and then waits on txA's index entry.
	errB := make(chan error, 1)
	go func() {
		txB := db.Begin()
		err := NewStore(txB).AppendTransition(ctx, transition())
		txB.Rollback()
		errB <- err
	}()

	require.Eventually(t, func() bool {
		var waiting int64
		db.Raw("SELECT count(*) FROM pg_stat_activity WHERE wait_event_type = 'Lock'").Scan(&waiting)
		return waiting > 0
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, txA.Commit().Error)

	select {
	case err := <-errB:
		assert.ErrorIs(t, err, domain.ErrStaleState)
	case <-time.After(10 * time.Second):
		t.Fatal("second append never returned")
	}

	history, err := NewStore(db).ListTransitions(ctx, instanceID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 1, history[0].Seq)
}
