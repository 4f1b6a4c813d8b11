package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/scheduling-api/internal/config"
	"github.com/jwalitptl/scheduling-api/internal/email"
	"github.com/jwalitptl/scheduling-api/internal/handler/health"
	promHandler "github.com/jwalitptl/scheduling-api/internal/handler/prometheus"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/postgres"
	"github.com/jwalitptl/scheduling-api/internal/service/waitlist"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/messaging/redis"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/worker"
)

const cleanupInterval = time.Hour

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Store != config.StorePostgres {
		log.Fatal().Str("store", cfg.Store).Msg("Worker requires the postgres store")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:     logger.ParseLevel(cfg.Log.Level),
		Format:    cfg.Log.Format,
		Component: "worker",
	})
	log.Logger = *appLog.Zerolog()
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg, cfg.Metrics.Namespace, "worker")

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	store := postgres.NewStore(db)

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLog.Zerolog(), m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis broker")
	}
	defer broker.Close()

	processor, err := worker.NewOutboxProcessor(
		store.Outbox,
		broker,
		cfg.Outbox.ToWorkerConfig(),
		appLog.With("job", "outbox"),
		m,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create outbox processor")
	}

	var mailer email.Service
	if cfg.Email.Enabled {
		mailer = email.NewSMTPService(email.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	} else {
		mailer = email.NewLogService(appLog)
	}
	relay := email.NewOfferRelay(mailer, appLog.With("job", "email_relay"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthSrv := startHealthServer(cfg.Server.HealthPort, reg, map[string]health.Checker{
		"database": db.PingContext,
		"redis":    broker.Ping,
	})

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(processor.Start)
	run(func(ctx context.Context) {
		err := messaging.Consume(ctx, broker, model.EventWaitlistOffer, relay.Handle, func(err error) {
			appLog.Error(err, "Failed to relay waitlist offer")
		})
		if err != nil {
			appLog.Error(err, "Offer relay stopped")
			stop()
		}
	})

	if cfg.Outbox.Retention > 0 {
		run(worker.NewPeriodic("outbox_cleanup", cleanupInterval, processor.Cleanup, appLog).Start)
	}

	if cfg.Waitlist.SweepEnabled {
		sweeper := waitlist.NewSweeper(
			store.Waitlist,
			waitlist.NewClaimWindow(waitlist.DefaultClaimWindow),
			cfg.Waitlist.SweepBatchSize,
			appLog.With("job", "lapsed_sweep"),
			m,
		)
		run(worker.NewPeriodic("lapsed_sweep", cfg.Waitlist.SweepInterval, func(ctx context.Context) error {
			_, err := sweeper.SweepOnce(ctx)
			return err
		}, appLog).Start)
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health server forced to shutdown")
	}
}

func startHealthServer(port int, gatherer prometheus.Gatherer, checks map[string]health.Checker) *http.Server {
	engine := gin.New()
	engine.Use(middleware.Recovery())
	health.NewHandler(checks).RegisterRoutes(engine)
	promHandler.New(gatherer).RegisterRoutes(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Health check server failed")
		}
	}()
	return srv
}
