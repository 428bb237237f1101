package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go-approvals/internal/api/handler"
	"go-approvals/internal/config"
	"go-approvals/internal/coordinator"
	"go-approvals/internal/core/memory"
	"go-approvals/internal/core/ports"
	"go-approvals/internal/core/postgres/repository"
	"go-approvals/internal/engine"
	"go-approvals/internal/escalation"
	"go-approvals/internal/hooks"
	"go-approvals/internal/infrastructure/redis"
	"go-approvals/internal/metrics"
	"go-approvals/internal/notify"
	approvalrouter "go-approvals/internal/router"
	"go-approvals/internal/service"
	"go-approvals/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// App holds every wired component of one process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Store     ports.Store
	Roster    ports.Roster
	Hooks     *hooks.Registry
	Hub       *notify.Hub
	Engine    *engine.Engine
	Scheduler *escalation.Scheduler
	Service   service.ApprovalService
	Router    *gin.Engine

	// Worker and Coordinator are nil unless redis is enabled.
	Worker      *worker.Worker
	Coordinator *coordinator.Coordinator

	closers []func() error
}

// OpenDatabase connects gorm to postgres.
func OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// New wires the application from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.New(reg)

	// 1. Persistence and roster
	var addresses notify.AddressBook
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := OpenDatabase(cfg)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			app.closers = append(app.closers, sqlDB.Close)
		}
		app.Store = repository.NewStore(db)
		app.Roster = repository.NewRoster(db)
		addresses = repository.NewUserDirectory(db)
	default:
		roster, directory, err := seedMemoryRoster(cfg.Roster.Members)
		if err != nil {
			return nil, err
		}
		app.Store = memory.NewStore()
		app.Roster = roster
		addresses = directory
		logger.Info("using the in-memory store", zap.Int("roster_members", len(cfg.Roster.Members)))
	}

	// 2. Notification sinks
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, err
	}
	var mailer notify.Mailer = notify.LogMailer{Logger: logger.Named("mail")}
	if cfg.Mail.SMTPAddr != "" {
		mailer = notify.SMTPMailer{
			Addr:     cfg.Mail.SMTPAddr,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}
	}
	emailer := notify.NewEmailer(renderer, addresses, mailer, cfg.Notify.From)
	app.Hub = notify.NewHub(cfg.Hub.MaxSubscribers, cfg.Hub.Buffer, logger.Named("hub"))

	// The request path may read a cached roster. The sweep always asks the
	// live one so orphan detection sees revocations immediately.
	requestRoster := app.Roster
	var notifier ports.Notifier
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.PoolSize)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, client.Close)

		queue := redis.NewNotificationQueue(client, cfg.Notify.Queue)
		bus := redis.NewEventBus(client, cfg.Notify.Channel, logger.Named("event_bus"))
		notifier = notify.Fanout{notify.NewEnqueuer(queue), bus}

		app.Worker = worker.NewWorker(queue, worker.InitRegistry(emailer), cfg.Worker.MaxRetries, app.Metrics, logger.Named("worker"))
		app.Coordinator = coordinator.NewCoordinator(bus, app.Hub, logger.Named("coordinator"))

		if cfg.Roster.CacheTTL > 0 {
			requestRoster = redis.NewRosterCache(client, app.Roster, cfg.Roster.CacheTTL, logger.Named("roster_cache"))
		}
	} else {
		notifier = notify.Fanout{emailer, app.Hub}
	}

	// 3. Engine, scheduler and HTTP surface
	app.Hooks = hooks.NewRegistry(logger.Named("hooks"))
	app.Engine = engine.New(app.Store,
		approvalrouter.New(requestRoster, cfg.Engine.AdminRole),
		notifier,
		app.Hooks,
		engine.WithMetrics(app.Metrics),
		engine.WithLogger(logger.Named("engine")))
	app.Scheduler = escalation.NewScheduler(app.Store, app.Engine, app.Roster, app.Metrics, logger.Named("escalation"))
	app.Service = service.NewApprovalService(app.Engine, app.Scheduler, service.Defaults{
		GracePeriod:  cfg.Escalation.DefaultGrace,
		UrgentBefore: cfg.Escalation.DefaultUrgentBefore,
	})
	app.Router = handler.NewRouter(handler.NewApprovalHandler(app.Service, app.Hub, app.Metrics, logger.Named("http")))

	return app, nil
}

// seedMemoryRoster grants the configured memberships. Without members every
// role-routed step of a memory-mode server starts orphaned.
func seedMemoryRoster(members []config.Member) (*memory.Roster, *memory.Directory, error) {
	roster := memory.NewRoster()
	directory := memory.NewDirectory()
	for i, m := range members {
		companyID, userID, err := m.IDs()
		if err != nil {
			return nil, nil, fmt.Errorf("roster.members[%d]: %w", i, err)
		}
		roster.Grant(companyID, m.Role, userID)
		if m.Email != "" {
			directory.Set(userID, m.Email)
		}
	}
	return roster, directory, nil
}

// Close releases connections opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, goredis.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
