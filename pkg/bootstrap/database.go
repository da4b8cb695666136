package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"triage/internal/config"
	"triage/internal/constants"
	"triage/internal/logger"
	"triage/pkg/retry"
)

// DatabaseConnector opens the optional backing stores. A backend with no
// address configured is skipped and comes back nil.
type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{Config: cfg, Logger: log}
}

// ping retries a reachability check while a container or managed instance is
// still coming up.
func (dc *DatabaseConnector) ping(ctx context.Context, backend string, check func(context.Context) error) error {
	policy := retry.Policy{
		MaxAttempts:     constants.DBConnectAttempts,
		InitialInterval: constants.DBConnectInitialInterval,
		MaxInterval:     constants.DBConnectMaxInterval,
		Multiplier:      2,
	}
	return retry.Do(ctx, policy, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, constants.DBPingTimeout)
		defer cancel()
		return check(pingCtx)
	}, func(attempt int, err error, next time.Duration) {
		dc.Logger.Warnw("Backend not reachable yet",
			"backend", backend,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	if cfg.Host == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := dc.ping(ctx, "redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	dc.Logger.Infow("Redis connected", "addr", rdb.Options().Addr)
	return rdb, nil
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sqlx.DB, error) {
	cfg := dc.Config.Database.Postgres
	if cfg.Host == "" {
		return nil, nil
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(constants.PostgresMaxOpenConns)
	db.SetMaxIdleConns(constants.PostgresMaxIdleConns)
	db.SetConnMaxIdleTime(constants.PostgresConnMaxIdleTime)

	if err := dc.ping(ctx, "postgres", db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	dc.Logger.Infow("PostgreSQL connected", "host", cfg.Host, "database", cfg.DBName)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	uri := dc.Config.Database.MongoDB.URI
	if uri == "" {
		return nil, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := dc.ping(ctx, "mongodb", func(ctx context.Context) error { return client.Ping(ctx, nil) }); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	dc.Logger.Infow("MongoDB connected", "database", dc.Config.Database.MongoDB.Database)
	return client, nil
}

// ShutdownDatabases closes whatever was opened. Nil handles are ignored.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, rdb *redis.Client, db *sqlx.DB, mc *mongo.Client) []error {
	var errs []error
	if rdb != nil {
		errs = append(errs, wrapClose("redis", rdb.Close()))
	}
	if db != nil {
		errs = append(errs, wrapClose("postgres", db.Close()))
	}
	if mc != nil {
		errs = append(errs, wrapClose("mongodb", mc.Disconnect(ctx)))
	}
	return compact(errs)
}

func wrapClose(backend string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("close %s: %w", backend, err)
}

func compact(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
