package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"taskd/app/auth"
	"taskd/app/config"
	"taskd/app/controllers"
	"taskd/app/services"
	"taskd/app/store"
)

// closer releases a backend connection.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// application holds every wired component of a running service.
type application struct {
	repo     *services.TaskRepository
	sessions *services.Sessions
	auth     *auth.Service
	checks   map[string]controllers.HealthCheck
	closers  []closer
}

// Close releases backends in reverse order of opening.
func (a *application) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.closers[i].name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newApplication() *application {
	return &application{checks: map[string]controllers.HealthCheck{}}
}

func (a *application) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// openTaskStore connects the configured document store backend.
func openTaskStore(ctx context.Context, cfg *config.Config, app *application) (store.DocumentStore, error) {
	switch cfg.Store.Backend {
	case config.BackendNeo4j:
		driver, err := config.InitNeo4j(ctx, cfg.Neo4j)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Neo4j connection: %w", err)
		}
		app.onClose("neo4j", driver.Close)
		app.checks["neo4j"] = driver.VerifyConnectivity
		return store.NewNeo4jStore(driver, cfg.Store.DatabaseID), nil
	case config.BackendMongo:
		client, err := config.InitMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		app.onClose("mongo", client.Disconnect)
		app.checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		return store.NewMongoStore(client, cfg.Store.DatabaseID), nil
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildTasks wires the task side: store, repository and events.
func buildTasks(ctx context.Context, cfg *config.Config, logger *slog.Logger, app *application) error {
	docs, err := openTaskStore(ctx, cfg, app)
	if err != nil {
		return err
	}
	app.repo = services.NewTaskRepository(docs, cfg.Store.TaskCollection, logger)

	var events services.EventPublisher = services.NopPublisher{}
	conn, err := config.InitNATS(cfg.NATS)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if conn != nil {
		app.onClose("nats", func(context.Context) error { return conn.Drain() })
		events = services.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix)
	}

	if cfg.Features.Attachments {
		logger.Warn("attachments are not supported; tasks keep an empty attachment list")
	}
	app.sessions = services.NewSessions(app.repo, events, logger)
	return nil
}

// buildAuth wires accounts, sessions and recovery.
func buildAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger, app *application) error {
	db, err := config.InitUserDB(cfg.Auth)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	app.onClose("userdb", func(context.Context) error { return sqlDB.Close() })

	users := auth.NewUserRepository(db)
	if err := users.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate user database: %w", err)
	}
	app.checks["userdb"] = users.Ping

	var tokens auth.TokenStore = auth.NewMemoryTokenStore()
	client, err := config.InitRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if client != nil {
		app.onClose("redis", func(context.Context) error { return client.Close() })
		redisTokens := auth.NewRedisTokenStore(client, "taskd:")
		app.checks["redis"] = redisTokens.Ping
		tokens = redisTokens
	}

	app.auth = auth.NewService(
		users,
		auth.NewPasswordHasher(0),
		auth.NewTokenManager(auth.TokenConfig{Secret: cfg.Auth.JWTSecret, TTL: cfg.Auth.TokenTTL.Duration}),
		tokens,
		auth.NewLogMailer(logger),
		auth.ServiceConfig{RecoveryTTL: cfg.Auth.RecoveryTTL.Duration, ResetURL: cfg.Auth.ResetURL},
		logger,
	)
	return nil
}

// build opens every backend named in cfg. On error, whatever was opened is
// closed again.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := newApplication()
	for _, step := range []func(context.Context, *config.Config, *slog.Logger, *application) error{
		buildTasks,
		buildAuth,
	} {
		if err := step(ctx, cfg, logger, app); err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
	}
	return app, nil
}
