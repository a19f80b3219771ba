package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/connector/internal/application/integration"
	"github.com/erp/connector/internal/domain/erp"
	"github.com/erp/connector/internal/infrastructure/actor"
	"github.com/erp/connector/internal/infrastructure/auth"
	"github.com/erp/connector/internal/infrastructure/cache"
	"github.com/erp/connector/internal/infrastructure/config"
	"github.com/erp/connector/internal/infrastructure/connectors"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/erp/connector/internal/infrastructure/persistence"
	"github.com/erp/connector/internal/infrastructure/scheduler"
	"github.com/erp/connector/internal/infrastructure/storage"
	"github.com/erp/connector/internal/infrastructure/telemetry"
	"github.com/erp/connector/internal/infrastructure/tenantconfig"
	"github.com/erp/connector/internal/interfaces/http/handler"
	"github.com/erp/connector/internal/interfaces/http/middleware"
	"github.com/erp/connector/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			ERP Connector API
//	@version		1.0
//	@description	Tenant-keyed gateway to ENVENTA, REST and sandbox ERP systems.
//	@description	Every call for a tenant runs on that tenant's actor, one at a time.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first, so the logger can be bridged before anything logs
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	log = logProvider.Bridge(log, zapcore.InfoLevel)

	log.Info("Starting ERP connector",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		Goroutines:      true,
		Mutex:           true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Sync run bookkeeping
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		tracingCfg := telemetry.DefaultDBTracingConfig()
		tracingCfg.Enabled = true
		tracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		tracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		if err := telemetry.NewDBTracingPlugin(tracingCfg, log).Register(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get database handle", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Tenant configuration and connectors
	tenants, watch, err := newTenantProvider(cfg.Tenants, log)
	if err != nil {
		log.Fatal("Failed to load tenant configuration", zap.Error(err))
	}

	registry, err := connectors.NewDefaultRegistry(tenants,
		connectors.WithRegistryLogger(log),
		connectors.WithRetryConfig(connectors.RetryConfig{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
			RetryWrites:     cfg.Retry.RetryWrites,
		}),
	)
	if err != nil {
		log.Fatal("Failed to create connector registry", zap.Error(err))
	}
	if watch != nil {
		watch.onChange = registry.Invalidate
		if err := watch.provider.Watch(ctx); err != nil {
			log.Fatal("Failed to watch tenant configuration", zap.Error(err))
		}
	}

	// Actor pool
	actorMetrics, err := telemetry.NewActorMetrics(meterProvider.Meter("erp-connector/actor"))
	if err != nil {
		log.Fatal("Failed to create actor metrics", zap.Error(err))
	}
	pool, err := actor.NewActorPool(actor.PoolConfig{
		QueueCapacity:           cfg.Actor.QueueCapacity,
		DefaultOperationTimeout: cfg.Actor.DefaultOperationTimeout,
		MaxActors:               cfg.Actor.MaxConcurrentProviders,
		EnableDetailedLogging:   cfg.Actor.EnableDetailedLogging,
		IdleTimeout:             cfg.Actor.IdleTimeout,
		EvictionInterval:        cfg.Actor.EvictionInterval,
	}, actor.WithLogger(log), actor.WithObserver(actorMetrics))
	if err != nil {
		log.Fatal("Failed to create actor pool", zap.Error(err))
	}

	// Application services
	erpOpts := []integration.ErpServiceOption{integration.WithServiceLogger(log)}
	if cfg.Idempotency.Enabled {
		store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
			cache.WithLogger(log),
			cache.WithInMemoryFallback(cfg.App.Env != "production"),
		).CreateStore(cfg.Idempotency.Backend)
		if err != nil {
			log.Fatal("Failed to create idempotency store", zap.Error(err))
		}
		defer func() {
			_ = store.Close()
		}()
		erpOpts = append(erpOpts, integration.WithIdempotencyStore(store, cfg.Idempotency.TTL))
	}
	erpService := integration.NewErpService(pool, registry, erpOpts...)

	snapshots, err := newSnapshotStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create snapshot storage", zap.Error(err))
	}
	syncOpts := integration.DefaultSyncOptions()
	syncOpts.PageSize = cfg.Sync.PageSize
	syncOpts.SnapshotPrefix = cfg.Sync.SnapshotPrefix
	syncService := integration.NewSyncService(
		pool,
		registry,
		persistence.NewGormSyncRunRepository(db.DB),
		integration.LoggingSink{},
		snapshots,
		syncOpts,
		log,
	)

	// Background sync
	var jobs handler.JobScheduler
	if cfg.Sync.Enabled {
		syncScheduler, err := scheduler.NewSyncScheduler(scheduler.DefaultSyncSchedulerConfig(), syncService, log)
		if err != nil {
			log.Fatal("Failed to create sync scheduler", zap.Error(err))
		}
		if err := syncScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start sync scheduler", zap.Error(err))
		}
		defer func() {
			if err := syncScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping sync scheduler", zap.Error(err))
			}
		}()

		trigger, err := scheduler.NewDeltaSyncTrigger(scheduler.DeltaSyncTriggerConfig{
			CheckInterval: cfg.Sync.CheckInterval,
		}, syncScheduler, tenants, log)
		if err != nil {
			log.Fatal("Failed to create delta sync trigger", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start delta sync trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping delta sync trigger", zap.Error(err))
			}
		}()
		jobs = syncScheduler
		log.Info("Background sync started", zap.Duration("check_interval", cfg.Sync.CheckInterval))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(meterProvider.Meter("erp-connector/http"))
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestContext(log))
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(httpMetrics)
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var metricsHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		reg, err := telemetry.NewRegistry(telemetry.NewPoolCollector(pool))
		if err != nil {
			log.Fatal("Failed to create Prometheus registry", zap.Error(err))
		}
		metricsHandler = telemetry.MetricsHandler(reg)
	}
	router.RegisterProbes(engine, handler.NewHealthHandler(version, sqlDB, pool), metricsHandler)

	erpMiddleware := []gin.HandlerFunc{}
	if cfg.JWT.Enabled {
		erpMiddleware = append(erpMiddleware, middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			Validator: auth.NewJWTService(cfg.JWT),
			Logger:    log,
		}))
	} else {
		log.Warn("Authentication disabled, tenants are taken from the X-Tenant-ID header")
	}
	erpMiddleware = append(erpMiddleware,
		middleware.TenantMiddleware(middleware.TenantMiddlewareConfig{
			HeaderEnabled:       !cfg.JWT.Enabled,
			MaxOperationTimeout: middleware.DefaultMaxOperationTimeout,
			Logger:              log,
		}),
		middleware.TracingAttributeInjector(),
		middleware.Profiling(),
	)
	if cfg.HTTP.RateLimitEnabled {
		erpMiddleware = append(erpMiddleware,
			middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.NewErpRoutes(router.ErpHandlers{
		Erp:  handler.NewErpHandler(erpService),
		Sync: handler.NewSyncHandler(syncService, jobs),
		Pool: handler.NewPoolHandler(pool),
	}, erpMiddleware...))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	// Queued operations still run; new ones are refused with ErrPoolShutdown
	if err := pool.Shutdown(shutdownCtx, true); err != nil {
		log.Error("Actor pool did not drain", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down log exporter", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// tenantWatch forwards file changes to onChange, which is set once the
// connector registry exists
type tenantWatch struct {
	provider *tenantconfig.FileProvider
	onChange func(uuid.UUID)
}

func (w *tenantWatch) changed(ids []uuid.UUID) {
	if w.onChange == nil {
		return
	}
	for _, id := range ids {
		w.onChange(id)
	}
}

// newTenantProvider loads the tenant file. Without a file the gateway starts
// with no tenants; every request then fails with ERR_ERP_TENANT_NOT_CONFIGURED.
func newTenantProvider(cfg config.TenantsConfig, log *zap.Logger) (erp.TenantConfigProvider, *tenantWatch, error) {
	if cfg.ConfigFile == "" {
		log.Warn("No tenant configuration file set")
		provider, err := tenantconfig.NewMemoryProvider()
		return provider, nil, err
	}

	watch := &tenantWatch{}
	provider, err := tenantconfig.NewFileProvider(cfg.ConfigFile,
		tenantconfig.WithLogger(log),
		tenantconfig.WithChangeHandler(watch.changed),
	)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Watch {
		return provider, nil, nil
	}
	watch.provider = provider
	return provider, watch, nil
}

// newSnapshotStore returns nil when archiving is off, S3 when a bucket is
// configured and an in-memory store otherwise
func newSnapshotStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (integration.SnapshotStore, error) {
	if !cfg.Sync.SnapshotEnabled {
		return nil, nil
	}
	if cfg.Storage.Bucket == "" {
		log.Warn("Sync snapshots kept in memory, no storage bucket configured")
		return storage.NewMemoryObjectStorage(), nil
	}
	s3, err := storage.NewS3ObjectStorage(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s3.EnsureBucket(ensureCtx); err != nil {
		return nil, err
	}
	log.Info("Sync snapshots archived to object storage", zap.String("bucket", s3.GetBucket()))
	return s3, nil
}
