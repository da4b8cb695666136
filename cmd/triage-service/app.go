package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"triage/internal/api"
	"triage/internal/archive"
	"triage/internal/broker"
	"triage/internal/config"
	"triage/internal/constants"
	"triage/internal/llm"
	"triage/internal/logger"
	"triage/internal/pipeline"
	"triage/internal/store"
	"triage/internal/vip"
	"triage/pkg/bootstrap"
	"triage/pkg/circuitbreaker"
	apperrors "triage/pkg/errors"
	"triage/pkg/health"
	"triage/pkg/logging"
	"triage/pkg/metrics"
	"triage/pkg/migrations"
	"triage/pkg/models"
	"triage/pkg/ratelimit"
	"triage/pkg/retry"
	"triage/pkg/tracing"
)

const serviceName = "triage-service"

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sqlx.DB
	redis          *redis.Client
	mongoClient    *mongo.Client
	tracerProvider *tracing.TracerProvider

	store     store.Store
	archive   archive.Archive
	breakers  *circuitbreaker.Registry
	limits    *ratelimit.Registry
	sweeper   *ratelimit.Sweeper
	errors    *apperrors.RingLog
	processor *pipeline.Processor
	status    *pipeline.StatusService
	health    *health.CheckerRegistry
	server    *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	log = log.ForService(serviceName)
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

// Initialize wires everything the batch processor needs. The HTTP server and
// the broker are only set up for long-running mode.
func (a *App) Initialize(ctx context.Context, serve bool) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterAPIMetrics()

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initResilience(); err != nil {
		return fmt.Errorf("failed to initialize resilience: %w", err)
	}

	if serve {
		metrics.RegisterBrokerMetrics()
		if err := a.InitBroker(serviceName); err != nil {
			return fmt.Errorf("failed to initialize broker: %w", err)
		}
	}

	if err := a.initPipeline(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if serve {
		a.initHTTPServer(ctx)
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	var base store.Store
	if db != nil {
		if a.Config.Database.RunMigrations {
			if err := migrations.MigratePostgres(db.DB); err != nil {
				return err
			}
			a.Logger.InfowCtx(ctx, "Database migrations applied")
		}
		base = store.NewPostgresStore(db)
		a.health.Register(health.NewPostgreSQLChecker(db))
	} else {
		a.Logger.WarnwCtx(ctx, "PostgreSQL not configured, using in-memory message store")
		base = store.NewMemoryStore()
	}
	a.store = base

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "Redis unavailable, using in-process rate windows and stats cache", "error", err)
	} else if rdb != nil {
		a.redis = rdb
		a.health.Register(health.NewRedisChecker(rdb))
	}

	a.archive = archive.Nop{}
	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB unavailable, results will not be archived", "error", err)
		return nil
	}
	if mongoClient == nil {
		return nil
	}
	a.mongoClient = mongoClient
	a.health.Register(health.NewMongoDBChecker(mongoClient))

	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	collection := a.Config.Database.MongoDB.Collection
	if collection == "" {
		collection = constants.DefaultResultsCollection
	}
	mdb := mongoClient.Database(dbName)
	if err := migrations.EnsureResultsCollection(ctx, mdb, collection); err != nil {
		a.Logger.WarnwCtx(ctx, "Failed to ensure archive indexes", "error", err)
	}
	a.archive = archive.NewMongoArchive(mdb, collection)
	return nil
}

func (a *App) initResilience() error {
	cbCfg := a.Config.CircuitBreaker
	overrides := make(map[string]circuitbreaker.Config, len(cbCfg.Resources))
	for name, o := range cbCfg.Resources {
		overrides[name] = circuitbreaker.Config{FailureThreshold: o.FailureThreshold, Cooldown: o.Cooldown}
	}
	a.breakers = circuitbreaker.NewRegistry(
		circuitbreaker.Config{FailureThreshold: cbCfg.FailureThreshold, Cooldown: cbCfg.Cooldown},
		overrides,
		a.Logger,
	)
	a.health.Register(health.NewBreakerChecker(a.breakers))

	var rlStore ratelimit.Store
	if a.Config.RateLimit.Backend == "redis" && a.redis != nil {
		rlStore = ratelimit.NewRedisStore(a.redis, constants.CacheKeyPrefixRateLimit)
	} else {
		mem := ratelimit.NewMemoryStore()
		a.sweeper = ratelimit.NewSweeper(mem, a.Config.RateLimit.SweepInterval, a.Logger)
		rlStore = mem
	}

	policies := ratelimit.DefaultPolicies()
	for name, p := range a.Config.RateLimit.Policies {
		policies[name] = ratelimit.Policy{Name: name, MaxRequests: p.MaxRequests, Window: p.Window}
	}
	limits, err := ratelimit.NewRegistry(rlStore, policies)
	if err != nil {
		return err
	}
	a.limits = limits

	a.errors = apperrors.NewRingLog(apperrors.DefaultRingLogCapacity, a.Logger)
	return nil
}

func (a *App) retrier(name string) *retry.Handler {
	r := a.Config.Retry
	return retry.NewHandler(retry.Config{
		MaxRetries: r.MaxRetries,
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
		Multiplier: r.Multiplier,
	}, retry.WithName(name))
}

func (a *App) initPipeline(ctx context.Context) error {
	provider, err := llm.New(ctx, a.Config.LLM)
	if err != nil {
		return err
	}
	a.Logger.InfowCtx(ctx, "Model provider ready", "provider", provider.Name())

	matcher, err := vip.NewMatcher(a.Config.VIP.Rules, a.Logger)
	if err != nil {
		return err
	}

	resilient := store.NewResilientStore(
		a.store,
		a.breakers.Get(apperrors.ComponentDatabase),
		a.retrier(apperrors.ComponentDatabase),
	)

	var cache store.StatsCache
	if a.redis != nil {
		ttl := time.Duration(a.Config.Database.Redis.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = constants.DefaultStatsTTLSeconds * time.Second
		}
		cache = store.NewRedisStatsCache(a.redis, ttl)
	} else {
		cache = store.NewMemoryStatsCache()
	}

	var publisher pipeline.ResultPublisher
	if a.Producer != nil {
		publisher = broker.NewResultPublisher(a.Producer, a.Config.Broker.Kafka.ResultTopic, a.Logger)
	}

	proc, err := pipeline.NewProcessor(a.Config.Pipeline, pipeline.Deps{
		Store:     resilient,
		Provider:  provider,
		Limiter:   a.limits.MustGet(apperrors.ComponentModel),
		Breaker:   a.breakers.Get(apperrors.ComponentModel),
		Retrier:   a.retrier(apperrors.ComponentModel),
		Errors:    a.errors,
		VIP:       matcher,
		Publisher: publisher,
		Archive:   a.archive,
		Logger:    a.Logger,
	})
	if err != nil {
		return err
	}
	a.processor = proc
	a.status = pipeline.NewStatusService(resilient, cache, a.errors, a.Logger)
	return nil
}

func (a *App) initHTTPServer(ctx context.Context) {
	handler := api.NewHandler(api.HandlerDeps{
		Processor: a.processor,
		Status:    a.status,
		Runs:      a.store,
		Archive:   a.archive,
		Breakers:  a.breakers,
		Limits:    a.limits,
		Errors:    a.errors,
		Logger:    a.Logger,
	})

	routerCfg := api.RouterConfig{
		ServiceName: serviceName,
		Tracing:     a.Config.Tracing.Enabled,
		AuthEnabled: a.Config.Auth.Enabled,
		JWTSecret:   a.Config.Auth.JWTSecret,
		Health:      a.health,
		Logger:      a.Logger,
	}
	if l, ok := a.limits.Get("api"); ok {
		routerCfg.ProcessLimit = l
	}
	if ipCfg := a.Config.RateLimit.API; ipCfg.Enabled {
		routerCfg.IPGuard = &ratelimit.IPConfig{
			RPS:             ipCfg.RPS,
			Burst:           ipCfg.Burst,
			CleanupInterval: ipCfg.CleanupInterval,
			MaxAge:          ipCfg.MaxAge,
		}
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      api.NewRouter(ctx, routerCfg, handler),
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Run serves HTTP and consumes process requests until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.sweeper != nil {
		a.sweeper.Start(gCtx)
		defer a.sweeper.Stop()
	}

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	if a.Consumer != nil {
		topic := a.Config.Broker.Kafka.RequestTopic
		handler := broker.NewProcessRequestHandler(a.processor, a.Logger)
		g.Go(func() error {
			consumeCtx := logging.WithServiceName(gCtx, serviceName)
			a.Logger.InfowCtx(consumeCtx, "Starting process request consumer", "topic", topic)
			return a.Consumer.Consume(gCtx, topic, handler)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ProcessOnce runs a single batch for owner, as a scheduled sweep would.
func (a *App) ProcessOnce(ctx context.Context, ownerID string, batchSize int) error {
	summary, err := a.processor.Run(ctx, models.ProcessRequest{OwnerID: ownerID, BatchSize: batchSize})
	if err != nil {
		return err
	}
	a.Logger.InfowCtx(ctx, "Batch finished",
		"batch_id", summary.BatchID,
		"processed", summary.Processed,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"message", summary.Message,
	)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(logging.WithServiceName(ctx, serviceName), "Shutting down triage service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.db, a.mongoClient)...)
		return errs
	}
	return a.Base.Shutdown(ctx, additionalShutdown)
}
