package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Store struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"store"`
	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		PoolSize int    `mapstructure:"pool_size"`
	} `mapstructure:"redis"`
	Notify struct {
		Queue   string `mapstructure:"queue"`
		Channel string `mapstructure:"channel"`
		From    string `mapstructure:"from"`
	} `mapstructure:"notify"`
	Mail struct {
		SMTPAddr string `mapstructure:"smtp_addr"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"mail"`
	Worker struct {
		Concurrency int `mapstructure:"concurrency"`
		MaxRetries  int `mapstructure:"max_retries"`
	} `mapstructure:"worker"`
	Engine struct {
		AdminRole string `mapstructure:"admin_role"`
	} `mapstructure:"engine"`
	Roster struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
		// Members seeds the memory store's roster and address book. The
		// postgres roster lives in the company_members and users tables.
		Members []Member `mapstructure:"members"`
	} `mapstructure:"roster"`
	Hub struct {
		MaxSubscribers int `mapstructure:"max_subscribers"`
		Buffer         int `mapstructure:"buffer"`
	} `mapstructure:"hub"`
	Escalation struct {
		DefaultGrace        time.Duration `mapstructure:"default_grace"`
		DefaultUrgentBefore time.Duration `mapstructure:"default_urgent_before"`
	} `mapstructure:"escalation"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// Member grants role to a user in a company.
type Member struct {
	CompanyID string `mapstructure:"company_id"`
	Role      string `mapstructure:"role"`
	UserID    string `mapstructure:"user_id"`
	Email     string `mapstructure:"email"`
}

// IDs parses the member's company and user ids.
func (m Member) IDs() (companyID, userID uuid.UUID, err error) {
	if companyID, err = uuid.Parse(m.CompanyID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("company_id %q: %w", m.CompanyID, err)
	}
	if userID, err = uuid.Parse(m.UserID); err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("user_id %q: %w", m.UserID, err)
	}
	return companyID, userID, nil
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=approvals port=5432 sslmode=disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("notify.queue", "approvals:notifications:pending")
	v.SetDefault("notify.channel", "approvals:events")
	v.SetDefault("notify.from", "approvals@localhost")
	v.SetDefault("mail.smtp_addr", "")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("engine.admin_role", "admin")
	v.SetDefault("roster.cache_ttl", 30*time.Second)
	v.SetDefault("hub.max_subscribers", 256)
	v.SetDefault("hub.buffer", 16)
	v.SetDefault("escalation.default_grace", 24*time.Hour)
	v.SetDefault("escalation.default_urgent_before", 4*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration from path (or config.yaml in . and ./config
// when path is empty) and the APPROVALS_ environment. A missing config file
// is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix("APPROVALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config.Store.Driver = strings.ToLower(strings.TrimSpace(config.Store.Driver))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("config: database.dsn is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("config: worker.concurrency must be positive, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: worker.max_retries must not be negative, got %d", c.Worker.MaxRetries)
	}
	if c.Engine.AdminRole == "" {
		return errors.New("config: engine.admin_role is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("config: redis.addr is required when redis is enabled")
	}
	if len(c.Roster.Members) > 0 && c.Store.Driver != DriverMemory {
		return errors.New("config: roster.members only seeds the memory store")
	}
	for i, m := range c.Roster.Members {
		if m.Role == "" {
			return fmt.Errorf("config: roster.members[%d]: role is required", i)
		}
		if _, _, err := m.IDs(); err != nil {
			return fmt.Errorf("config: roster.members[%d]: %w", i, err)
		}
	}
	return nil
}
