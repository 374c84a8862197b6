package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/opsdesk/internal/api/http"
	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
)

// fleetlink serves the pages behind emailed trip links. It only writes
// trips and their outbox rows; the api process relays the events.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	metrics := observability.NewMetrics("fleetlink")
	gateway := persistence.NewGateway(pg.PoolHandle())
	fleetRepo := repository.NewFleetRepository(gateway)

	fleetService := service.NewFleetService(service.FleetDependencies{
		Fleet:            fleetRepo,
		Notes:            repository.NewNoteRepository(gateway),
		Outbox:           repository.NewOutboxRepository(gateway),
		Tx:               gateway,
		Metrics:          metrics,
		Logger:           logger,
		UnaccountedAfter: time.Duration(cfg.Fleet.UnaccountedHours) * time.Hour,
	})
	if cfg.Approval.HMACSecret == "" {
		logger.Warn("HMAC_SECRET not set; emailed links are signed with a random per-process key and will not verify elsewhere")
	}
	signer := auth.NewLinkSigner(cfg.Approval.HMACSecret, time.Duration(cfg.Approval.MaxAgeHours)*time.Hour)

	if cfg.Fleet.FormSecret == "" {
		logger.Warn("FLASK_SECRET not set; using a random cookie key")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name + "-fleetlink",
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterFleetlinkRoutes(app,
		handlers.NewFleetlinkHandler(fleetService, signer, logger),
		handlers.NewHealthHandler(cfg.App.Name+"-fleetlink", cfg.App.Version, gateway, nil),
		cfg.Fleet.FormSecret)

	go func() {
		if err := app.Listen(cfg.App.FleetlinkAddr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	_ = app.ShutdownWithTimeout(10 * time.Second)
}
