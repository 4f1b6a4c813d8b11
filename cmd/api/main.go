package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/email"
	appointmentHandler "github.com/jwalitptl/scheduling-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/scheduling-api/internal/handler/audit"
	"github.com/jwalitptl/scheduling-api/internal/handler/health"
	promHandler "github.com/jwalitptl/scheduling-api/internal/handler/prometheus"
	waitlistHandler "github.com/jwalitptl/scheduling-api/internal/handler/waitlist"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/router"
	appointmentService "github.com/jwalitptl/scheduling-api/internal/service/appointment"
	auditService "github.com/jwalitptl/scheduling-api/internal/service/audit"
	eventService "github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/internal/service/notification"
	"github.com/jwalitptl/scheduling-api/internal/service/tenant"
	waitlistService "github.com/jwalitptl/scheduling-api/internal/service/waitlist"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Component: "api",
	})
	log.Logger = *appLog.Zerolog()
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, checks, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer closeStore()

	// Services
	guard := tenant.NewGuard(store.Patients, store.Practitioners, cache.New(tenant.DefaultOwnerTTL, 2*tenant.DefaultOwnerTTL))
	claimWindow := waitlistService.NewClaimWindow(waitlistService.DefaultClaimWindow)
	notifier := notification.NewService(store.Outbox, store.Patients, claimWindow.Duration)
	matcher := waitlistService.NewMatcher(store.Waitlist, notifier, appLog.With("component", "matcher"), m)

	dispatcher := eventService.NewDispatcher(matcher, eventService.DispatcherConfig{
		QueueSize:    cfg.Waitlist.DispatchQueueSize,
		Workers:      cfg.Waitlist.DispatchWorkers,
		MatchTimeout: cfg.Waitlist.MatchTimeout,
	}, appLog.With("component", "slot_freed_dispatcher"), m)
	dispatcher.Start()

	appointments := appointmentService.NewService(
		store.Appointments,
		store.WorkingHours,
		store.Practitioners,
		guard,
		dispatcher,
		appointmentService.WithMetrics(m),
	)
	waitlist := waitlistService.NewService(
		store.Waitlist,
		guard,
		waitlistService.WithMetrics(m),
		waitlistService.WithClaimWindow(claimWindow),
	)

	sink, err := auditService.NewSink(cfg.Audit.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open audit sink")
	}
	auditor := auditService.NewService(store.Audit, sink, appLog.With("component", "audit"))

	// A memory store lives only in this process, so the offer pipeline runs here too.
	if cfg.Store == config.StoreMemory {
		if err := runInProcessOutbox(ctx, cfg, store, appLog, m); err != nil {
			log.Fatal().Err(err).Msg("failed to start in-process outbox")
		}
	}

	routerConfig := router.RouterConfig{
		JWT:            auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour),
		Metrics:        m,
		CORSConfig:     middleware.DefaultCORSConfig(),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodySize:    middleware.DefaultMaxBodySize,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:    rate.Limit(cfg.RateLimit.RequestsPerSecond),
			Burst:   cfg.RateLimit.Burst,
			IdleTTL: cfg.RateLimit.IdleTTL,
		})
	}

	r, err := router.NewRouter(routerConfig,
		[]router.RootHandler{
			health.NewHandler(checks),
			promHandler.New(reg),
		},
		[]router.Handler{
			appointmentHandler.NewHandler(appointments, auditor),
			waitlistHandler.NewHandler(waitlist, auditor),
			auditHandler.NewHandler(auditor),
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("store", cfg.Store).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Stop accepting slot-freed events, then drain what is queued.
	dispatcher.Close()
	auditor.Close()

	log.Info().Msg("server exited properly")
}

func openStore(cfg *config.Config) (*repository.Store, map[string]health.Checker, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.NewStore(), nil, func() {}, nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	checks := map[string]health.Checker{
		"database": db.PingContext,
	}
	return postgres.NewStore(db), checks, func() { db.Close() }, nil
}

func runInProcessOutbox(ctx context.Context, cfg *config.Config, store *repository.Store, appLog *logger.Logger, m *metrics.Metrics) error {
	broker := messaging.NewMemoryBroker()
	processor, err := worker.NewOutboxProcessor(store.Outbox, broker, cfg.Outbox.ToWorkerConfig(), appLog.With("component", "outbox"), m)
	if err != nil {
		return err
	}

	offers, err := broker.Subscribe(ctx, model.EventWaitlistOffer)
	if err != nil {
		return err
	}
	relay := email.NewOfferRelay(email.NewLogService(appLog), appLog.With("component", "email_relay"))
	go messaging.Drain(ctx, offers, relay.Handle, func(err error) {
		appLog.Error(err, "Failed to relay waitlist offer")
	})
	go processor.Start(ctx)
	return nil
}
