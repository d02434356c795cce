package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/employee-management/internal"
	"github.com/frahmantamala/employee-management/internal/access"
	accessPostgres "github.com/frahmantamala/employee-management/internal/access/postgres"
	"github.com/frahmantamala/employee-management/internal/audit"
	"github.com/frahmantamala/employee-management/internal/audit/forward"
	auditPostgres "github.com/frahmantamala/employee-management/internal/audit/postgres"
	"github.com/frahmantamala/employee-management/internal/auth"
	authPostgres "github.com/frahmantamala/employee-management/internal/auth/postgres"
	"github.com/frahmantamala/employee-management/internal/core/datastore"
	"github.com/frahmantamala/employee-management/internal/core/events"
	"github.com/frahmantamala/employee-management/internal/dashboard"
	dashboardPostgres "github.com/frahmantamala/employee-management/internal/dashboard/postgres"
	"github.com/frahmantamala/employee-management/internal/department"
	departmentPostgres "github.com/frahmantamala/employee-management/internal/department/postgres"
	"github.com/frahmantamala/employee-management/internal/role"
	rolePostgres "github.com/frahmantamala/employee-management/internal/role/postgres"
	"github.com/frahmantamala/employee-management/internal/session"
	"github.com/frahmantamala/employee-management/internal/user"
	userPostgres "github.com/frahmantamala/employee-management/internal/user/postgres"
	"github.com/frahmantamala/employee-management/pkg/logger"
	"github.com/frahmantamala/employee-management/pkg/metrics"
)

const driver = "pgx"

// Dependencies is the wired service graph shared by the server, worker and export commands.
type Dependencies struct {
	Config  *internal.Config
	Logger  *slog.Logger
	SQL     *sql.DB
	DB      *gorm.DB
	SQLX    *sqlx.DB
	Redis   *redis.Client
	Bus     *events.EventBus
	Metrics *metrics.Registry

	Recorder    *audit.Recorder
	Audit       *audit.Service
	Sessions    *session.Tracker
	Auth        *auth.Service
	Users       *user.Service
	Roles       *role.Service
	Departments *department.Service
	Dashboard   *dashboard.Service
	Evaluator   access.Evaluator
	Forwarder   *forward.Forwarder
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	sqlDB, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := openGorm(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	deps := &Dependencies{
		Config:    cfg,
		Logger:    lg,
		SQL:       sqlDB,
		DB:        gormDB,
		SQLX:      sqlx.NewDb(sqlDB, driver),
		Bus:       events.NewEventBus(lg),
		Evaluator: access.NewEvaluator(),
	}
	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	store, err := deps.sessionStore(ctx)
	if err != nil {
		deps.Close()
		return nil, err
	}

	tx := datastore.NewTransactor(gormDB)
	auditRepo := auditPostgres.NewAuditRepository(gormDB)

	deps.Recorder = audit.NewRecorder(auditRepo, deps.Bus, deps.Metrics, lg)
	deps.Audit = audit.NewService(auditRepo, deps.Recorder, cfg.Audit.ExportLimit, lg)

	deps.Sessions = session.NewTracker(store, session.Config{
		Timeout:       cfg.Security.SessionTimeout,
		MaxLifetime:   cfg.Security.TokenMaxLifetime,
		CheckInterval: cfg.Security.SessionCheckInterval,
	}, deps.Metrics, lg)
	deps.Sessions.Subscribe(deps.Bus)

	deps.Users = user.NewService(userPostgres.NewUserRepository(gormDB), tx, deps.Recorder, deps.Bus, user.Config{
		BCryptCost:  cfg.Security.BCryptCost,
		SweepOnRead: cfg.Lifecycle.SweepOnRead,
	}, lg).WithMetrics(deps.Metrics)
	deps.Roles = role.NewService(rolePostgres.NewRoleRepository(gormDB), tx, deps.Recorder, lg)
	deps.Departments = department.NewService(departmentPostgres.NewDepartmentRepository(gormDB), tx, deps.Recorder, lg)

	var checker dashboard.LifecycleChecker
	if cfg.Lifecycle.SweepOnRead {
		checker = deps.Users
	}
	deps.Dashboard = dashboard.NewService(dashboardPostgres.NewStatsRepository(deps.SQLX), checker, lg)

	deps.Auth = auth.NewService(
		authPostgres.NewRepository(gormDB),
		auth.NewJWTTokenGenerator(cfg.Security.JWTSecret),
		deps.Sessions,
		access.NewLoader(accessPostgres.NewRepository(gormDB)),
		deps.Recorder,
		lg,
	).WithMetrics(deps.Metrics)

	return deps, nil
}

// sessionStore keeps sessions in redis when enabled so every replica sees them.
func (d *Dependencies) sessionStore(ctx context.Context) (session.Store, error) {
	if !d.Config.Redis.Enabled {
		d.Logger.Warn("redis disabled, sessions are kept in process memory")
		return session.NewMemoryStore(), nil
	}
	d.Redis = redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	if err := d.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return session.NewRedisStore(d.Redis, d.Config.Redis.KeyPrefix), nil
}

// startForwarder ships audit and login events to the configured queue.
func (d *Dependencies) startForwarder() error {
	cfg := d.Config.Audit.Forwarding
	if !cfg.Enabled {
		return nil
	}
	publisher, err := forward.NewAMQPPublisher(cfg.URL, cfg.Queue)
	if err != nil {
		return fmt.Errorf("failed to connect audit forwarder: %w", err)
	}
	d.Forwarder = forward.NewForwarder(forward.Config{
		MaxWorkers:   cfg.MaxWorkers,
		JobQueueSize: cfg.JobQueueSize,
	}, publisher, d.Metrics, d.Logger)
	d.Forwarder.Subscribe(d.Bus)
	return nil
}

func (d *Dependencies) Close() {
	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Bus.Drain(drainCtx); err != nil {
		d.Logger.Warn("event handlers still running at shutdown", "error", err)
	}
	if d.Forwarder != nil {
		d.Forwarder.Shutdown()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.SQL.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

// initDB opens the pgx pool shared by gorm, sqlx and goose.
func initDB(cfg internal.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openGorm(sqlDB *sql.DB) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}
	return db, nil
}
