package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, "admin", cfg.Engine.AdminRole)
	assert.Equal(t, 30*time.Second, cfg.Roster.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Escalation.DefaultGrace)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: Postgres
database:
  dsn: postgres://approvals@db/approvals
redis:
  enabled: true
  addr: redis:6379
escalation:
  default_grace: 2h
`)
	t.Setenv("APPROVALS_WORKER_CONCURRENCY", "9")
	t.Setenv("APPROVALS_ENGINE_ADMIN_ROLE", "ops")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://approvals@db/approvals", cfg.Database.DSN)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Escalation.DefaultGrace)
	assert.Equal(t, 9, cfg.Worker.Concurrency)
	assert.Equal(t, "ops", cfg.Engine.AdminRole)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown driver":   "store:\n  driver: sqlite\n",
		"no dsn":           "store:\n  driver: postgres\ndatabase:\n  dsn: \"\"\n",
		"zero concurrency": "worker:\n  concurrency: 0\n",
		"negative retries": "worker:\n  max_retries: -1\n",
		"redis no addr":    "redis:\n  enabled: true\n  addr: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRosterMembers(t *testing.T) {
	path := writeConfig(t, `
roster:
  members:
    - company_id: 6f1c2a3e-0b7d-4c55-9a51-2d8a6f0e4b11
      role: manager
      user_id: 0d9e8f7a-6b5c-4d3e-8f2a-1b0c9d8e7f6a
      email: manager@example.com
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Roster.Members, 1)

	m := cfg.Roster.Members[0]
	assert.Equal(t, "manager", m.Role)
	assert.Equal(t, "manager@example.com", m.Email)
	company, user, err := m.IDs()
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a3e-0b7d-4c55-9a51-2d8a6f0e4b11", company.String())
	assert.Equal(t, "0d9e8f7a-6b5c-4d3e-8f2a-1b0c9d8e7f6a", user.String())
}

func TestLoadRejectsBadRosterMembers(t *testing.T) {
	cases := map[string]string{
		"bad user id": "roster:\n  members:\n    - company_id: 6f1c2a3e-0b7d-4c55-9a51-2d8a6f0e4b11\n      role: manager\n      user_id: bob\n",
		"no role":     "roster:\n  members:\n    - company_id: 6f1c2a3e-0b7d-4c55-9a51-2d8a6f0e4b11\n      user_id: 0d9e8f7a-6b5c-4d3e-8f2a-1b0c9d8e7f6a\n",
		"postgres": "store:\n  driver: postgres\nroster:\n  members:\n    - company_id: 6f1c2a3e-0b7d-4c55-9a51-2d8a6f0e4b11\n" +
			"      role: manager\n      user_id: 0d9e8f7a-6b5c-4d3e-8f2a-1b0c9d8e7f6a\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
