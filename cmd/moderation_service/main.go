package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/app"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/domain"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/ingestion"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/repository/badgerstore"
	"github.com/shawnbeckett/sms-led-display/internal/moderation_service/repository/postgres"
	httptransport "github.com/shawnbeckett/sms-led-display/internal/moderation_service/transport/http"
	"github.com/shawnbeckett/sms-led-display/internal/platform/config"
	"github.com/shawnbeckett/sms-led-display/internal/platform/database"
	"github.com/shawnbeckett/sms-led-display/internal/platform/logger"
	"github.com/shawnbeckett/sms-led-display/internal/platform/messagebroker"
)

const serviceName = "moderation_service"

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"http_port", cfg.HTTPPort,
		"store_driver", cfg.StoreDriver,
		"nats_enabled", cfg.NATSUrl != "",
		"expiry_sweep_interval", cfg.ExpirySweepInterval,
	)

	messages, settings, closeStore, err := openStore(mainCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	svc := app.NewModerationAppService(messages, settings, appLogger)
	processor := ingestion.NewSMSProcessor(svc, appLogger)

	g, groupCtx := errgroup.WithContext(mainCtx)

	var sink ingestion.Sink = ingestion.NewDirectSink(processor)
	if cfg.NATSUrl != "" {
		nc, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger, serviceName)
		if err != nil {
			appLogger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		sink = ingestion.NewNATSSink(nc, appLogger)

		inboundEvents := make(chan ingestion.InboundSMSEvent, cfg.InboundBufferSize)
		consumer := ingestion.NewSMSConsumer(nc, appLogger, inboundEvents)
		g.Go(func() error {
			return consumer.StartConsuming(groupCtx, cfg.InboundSubject, cfg.InboundQueueGroup)
		})
		g.Go(func() error {
			return processor.Run(groupCtx, inboundEvents)
		})
		appLogger.Info("NATS ingestion enabled", "subject", cfg.InboundSubject, "queue_group", cfg.InboundQueueGroup)
	}

	if cfg.ExpirySweepInterval > 0 {
		sweeper := app.NewExpirySweeper(svc, cfg.ExpirySweepInterval, appLogger)
		g.Go(func() error { return sweeper.Run(groupCtx) })
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Service:        svc,
		Sink:           sink,
		Validate:       validator.New(),
		Logger:         appLogger,
		RequestTimeout: cfg.RequestTimeout,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	appLogger.Info("Attempting graceful shutdown...")
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during graceful shutdown of components", "error", err)
	}
	appLogger.Info("Service shutdown complete.")
}

// openStore wires the configured persistence driver.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.MessageRepository, domain.SettingsRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := database.NewDBPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		log.Info("PostgreSQL store ready")
		return postgres.NewPgMessageRepository(pool, log), postgres.NewPgSettingsRepository(pool, log), pool.Close, nil
	case config.StoreDriverBadger:
		db, err := database.OpenBadger(cfg.BadgerPath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("Badger store ready", "in_memory", cfg.BadgerPath == "")
		closeDB := func() {
			if err := db.Close(); err != nil {
				log.Error("Failed to close badger", "error", err)
			}
		}
		return badgerstore.NewMessageRepository(db, log), badgerstore.NewSettingsRepository(db, log), closeDB, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// watchGroup reports the errgroup's result without blocking main.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
