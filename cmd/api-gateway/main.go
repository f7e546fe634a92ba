package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/coach-change-api/api/swagger"
	"github.com/noah-isme/coach-change-api/internal/handler"
	"github.com/noah-isme/coach-change-api/internal/middleware"
	"github.com/noah-isme/coach-change-api/internal/models"
	"github.com/noah-isme/coach-change-api/internal/repository"
	"github.com/noah-isme/coach-change-api/internal/service"
	"github.com/noah-isme/coach-change-api/pkg/cache"
	"github.com/noah-isme/coach-change-api/pkg/config"
	"github.com/noah-isme/coach-change-api/pkg/database"
	"github.com/noah-isme/coach-change-api/pkg/jobs"
	"github.com/noah-isme/coach-change-api/pkg/logger"
	"github.com/noah-isme/coach-change-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/coach-change-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/coach-change-api/pkg/middleware/requestid"
)

// @title Coach Change API
// @version 1.0.0
// @description Three-party approval workflow for moving a student to a new coach
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.CoachChange.CacheEnabled {
		rdb, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, snapshot cache disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	metrics := service.NewMetricsService()
	users := repository.NewUserRepository(db)
	relations := repository.NewCoachRelationRepository(db)
	audit := repository.NewAuditRepository(db)

	var store interface {
		Create(context.Context, *models.CoachChangeRequest) error
		Load(context.Context, string) (*models.CoachChangeRequest, error)
		CompareAndSwap(context.Context, string, int64, *models.CoachChangeRequest) error
		List(context.Context, models.CoachChangeFilter) ([]models.CoachChangeRequest, int, error)
	}
	if cfg.CoachChange.Store == config.StoreMemory {
		logr.Warn("coach change requests are kept in memory and lost on restart")
		store = repository.NewMemoryCoachChangeRepository()
	} else {
		store = repository.NewCoachChangeRepository(db)
	}

	// Audit rows and reassignment are also delivered inline when the queue refuses an event.
	durable := []service.NotificationSink{service.NewAuditSink(audit), service.NewRelationSink(relations)}
	sinks := append([]service.NotificationSink{}, durable...)
	if cfg.Notifications.EmailEnabled {
		var sender mailer.Sender = mailer.Noop{}
		if cfg.Notifications.ResendAPIKey != "" {
			sender = mailer.NewResendSender(cfg.Notifications.ResendAPIKey, cfg.Notifications.EmailFrom, logr)
		} else {
			logr.Warn("e-mail notifications enabled without RESEND_API_KEY, messages are discarded")
		}
		sinks = append(sinks, service.NewEmailSink(sender, users, service.EmailSinkConfig{}, logr))
	}

	worker := service.NewNotificationWorker(metrics, logr, sinks...)
	queue := jobs.NewQueue("coach-change-events", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
		OnDead:     worker.DeadLetter,
	})
	queue.Start(context.WithoutCancel(ctx))
	defer queue.Stop()

	machine, err := service.NewApprovalMachine()
	if err != nil {
		return err
	}

	opts := []service.CoachChangeOption{
		service.WithCoachChangeConfig(service.CoachChangeServiceConfig{
			MaxAttempts:      cfg.CoachChange.MaxAttempts,
			RetryInitialWait: cfg.CoachChange.RetryInitialWait,
			RetryMaxWait:     cfg.CoachChange.RetryMaxWait,
			StoreTimeout:     cfg.CoachChange.StoreTimeout,
			NotifyTimeout:    cfg.CoachChange.NotifyTimeout,
			CacheTTL:         cfg.CoachChange.CacheTTL,
		}),
		service.WithCoachRelations(relations),
		service.WithAuditTrail(audit),
		service.WithEventPublisher(service.NewNotificationDispatcher(queue, logr, durable...)),
		service.WithCoachChangeMetrics(metrics),
	}
	readiness := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if rdb != nil {
		cacheSvc := service.NewCacheService(repository.NewCacheRepository(rdb, "coach-change"), metrics, cfg.CoachChange.CacheTTL, logr, true)
		opts = append(opts, service.WithCoachChangeCache(cacheSvc))
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	coachChanges := service.NewCoachChangeService(store, users, machine, logr, opts...)
	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readiness)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(tokens))
	handler.NewCoachChangeHandler(coachChanges).Register(api)
	api.GET("/metrics/summary", middleware.RequireRoles(models.RoleCampusAdmin, models.RoleSuperAdmin), metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.CoachChange.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logr.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
