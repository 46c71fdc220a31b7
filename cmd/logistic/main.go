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

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/riandyrn/otelchi"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/adapter/bus"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/fsm"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/kafka"
	otelad "github.com/anees-mohamed-ar/logistic/internal/adapter/otel"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/redis"
	riveradapter "github.com/anees-mohamed-ar/logistic/internal/adapter/river"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/sqlite"
	"github.com/anees-mohamed-ar/logistic/internal/app"
	"github.com/anees-mohamed-ar/logistic/internal/config"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
	"github.com/anees-mohamed-ar/logistic/internal/logging"

	handler "github.com/anees-mohamed-ar/logistic/internal/adapter/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("logistic: %v", err)
	}
}

// run wires the service, serves until ctx ends, then shuts down.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{Component: "logistic", Level: cfg.LogLevel})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// --- Telemetry ---
	providers, err := otelad.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", zap.Error(err))
		}
	}()

	svc, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	// River stops on cancellation of this context; Stop below drains it instead.
	if err := svc.jobs.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	relayDone := make(chan struct{})
	relayCtx, stopRelay := context.WithCancel(context.Background())
	if svc.relay != nil {
		go func() {
			defer close(relayDone)
			if err := svc.relay.Run(relayCtx); err != nil {
				logger.Error("notification relay stopped", zap.Error(err))
			}
		}()
	} else {
		close(relayDone)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("logistic listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Ending the subscriptions lets open notification streams return.
	svc.hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := svc.jobs.Stop(shutdownCtx); err != nil {
		logger.Error("river shutdown", zap.Error(err))
	}
	stopRelay()
	<-relayDone

	logger.Info("stopped")
	return runErr
}

// service is the wired application.
type service struct {
	router http.Handler
	hub    *bus.Hub
	relay  *redis.Relay
	jobs   *riveradapter.Client

	store *sqlite.Store
	redis *goredis.Client
	sink  *kafka.Sink
}

func (s *service) close() {
	if s.sink != nil {
		_ = s.sink.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.store.Close()
}

// build wires adapters and services from cfg. Nothing is started.
func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *service, err error) {
	svc := &service{}

	// --- Adapters (out) ---
	db, err := otelad.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	store, err := sqlite.NewFromDB(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: %w", err)
	}
	svc.store = store
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	svc.hub = bus.NewHub(logger.Named("bus"))
	var notifier domain.Notifier = svc.hub
	var subscriber domain.Subscriber = svc.hub
	if cfg.RedisURL != "" {
		client, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		svc.redis = client
		svc.relay = redis.NewRelay(client, svc.hub, logger.Named("relay"))
		notifier, subscriber = svc.relay, svc.relay
	}

	tracedNotifier, err := otelad.NewTracingNotifier(notifier)
	if err != nil {
		return nil, err
	}
	drafts := otelad.NewTracingDraftRepository(store)

	// --- Application ---
	opts := []app.Option{
		app.WithLeaseTTL(cfg.LeaseTTL),
		app.WithEditWindow(cfg.EditWindow),
		app.WithLogger(logger),
	}
	gate := app.NewIdentityGate(store)
	allocator := app.NewNumberAllocator(store, store, store, gate, opts...)
	sweeper := app.NewLeaseSweeper(drafts, gate, tracedNotifier, opts...)

	jobsCfg := riveradapter.Config{
		Recorder:      allocator,
		Records:       store,
		Sweeper:       sweeper,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger.Named("jobs"),
	}
	if len(cfg.KafkaBrokers) > 0 {
		svc.sink = kafka.NewSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		jobsCfg.Sink = svc.sink
	}
	svc.jobs, err = riveradapter.Setup(ctx, db, jobsCfg)
	if err != nil {
		return nil, fmt.Errorf("river setup: %w", err)
	}

	draftSvc := app.NewDraftService(app.DraftDeps{
		Drafts:     drafts,
		Records:    store,
		Tx:         store,
		Gate:       gate,
		Validator:  fsm.New(),
		Notifier:   tracedNotifier,
		Subscriber: subscriber,
		Hook:       riveradapter.NewPublisher(svc.jobs),
	}, opts...)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(cfg.Telemetry.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(logging.RequestLogger(logger))

	api := humachi.New(router, huma.DefaultConfig("logistic", cfg.Telemetry.ServiceVersion))
	handler.Register(api, handler.Services{
		Drafts:       draftSvc,
		Ranges:       allocator,
		Records:      app.NewRecordService(store, gate, opts...),
		Sweeper:      sweeper,
		PingInterval: cfg.StreamPingInterval,
	})
	svc.router = router

	return svc, nil
}
