package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/opsdesk/internal/api/http"
	"github.com/spec-kit/opsdesk/internal/api/http/handlers"
	"github.com/spec-kit/opsdesk/internal/auth"
	"github.com/spec-kit/opsdesk/internal/config"
	"github.com/spec-kit/opsdesk/internal/events"
	"github.com/spec-kit/opsdesk/internal/mail"
	messaging "github.com/spec-kit/opsdesk/internal/messaging/kafka"
	"github.com/spec-kit/opsdesk/internal/observability"
	"github.com/spec-kit/opsdesk/internal/persistence"
	"github.com/spec-kit/opsdesk/internal/repository"
	"github.com/spec-kit/opsdesk/internal/service"
	"github.com/spec-kit/opsdesk/internal/worker"
)

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

	if cfg.Database.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics("opsdesk")
	gateway := persistence.NewGateway(pg.PoolHandle())

	userRepo := repository.NewUserRepository(gateway)
	ticketRepo := repository.NewTicketRepository(gateway)
	noteRepo := repository.NewNoteRepository(gateway)
	procurementRepo := repository.NewProcurementRepository(gateway)
	approverRepo := repository.NewApproverRepository(gateway)
	fleetRepo := repository.NewFleetRepository(gateway)
	assetRepo := repository.NewAssetRepository(gateway)
	outboxRepo := repository.NewOutboxRepository(gateway)

	authService := service.NewAuthService(cfg.Auth, userRepo)
	ticketService := service.NewTicketService(service.TicketDependencies{
		Tickets: ticketRepo,
		Notes:   noteRepo,
		Outbox:  outboxRepo,
		Tx:      gateway,
		Metrics: metrics,
	})
	procurementService := service.NewProcurementService(service.ProcurementDependencies{
		Requests:  procurementRepo,
		Approvers: approverRepo,
		Notes:     noteRepo,
		Outbox:    outboxRepo,
		Tx:        gateway,
		Metrics:   metrics,
	})
	fleetService := service.NewFleetService(service.FleetDependencies{
		Fleet:            fleetRepo,
		Notes:            noteRepo,
		Outbox:           outboxRepo,
		Tx:               gateway,
		Metrics:          metrics,
		Logger:           logger,
		UnaccountedAfter: time.Duration(cfg.Fleet.UnaccountedHours) * time.Hour,
	})
	assetService := service.NewAssetService(assetRepo)
	reportService := service.NewReportService(gateway, nil)

	dispatcher := events.NewInMemoryDispatcher()
	if cfg.Approval.HMACSecret == "" {
		logger.Warn("HMAC_SECRET not set; emailed links are signed with a random per-process key and will not verify elsewhere")
	}
	signer := auth.NewLinkSigner(cfg.Approval.HMACSecret, time.Duration(cfg.Approval.MaxAgeHours)*time.Hour)
	notificationService := service.NewNotificationService(dispatcher, mail.NewSender(cfg.SMTP, logger), signer, logger, metrics,
		service.NotificationConfig{
			BaseURL:      cfg.App.BaseURL,
			ManagerEmail: cfg.Fleet.ManagerEmail,
			AdminEmail:   cfg.Notification.AdminEmail,
		})

	sinks := []worker.Sink{worker.StartNotificationWorker(dispatcher, notificationService)}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(messaging.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer producer.Close() //nolint:errcheck
		sinks = append(sinks, worker.NewKafkaSink(producer))
		logger.Info("publishing lifecycle events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	relay := worker.NewOutboxRelay(outboxRepo, worker.RelayConfig{
		Interval:    time.Duration(cfg.Outbox.PollIntervalSeconds) * time.Second,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	}, logger, metrics, sinks...)
	sweep := worker.NewUnaccountedSweep(fleetService, redis,
		time.Duration(cfg.Fleet.SweepIntervalMinutes)*time.Minute, logger, metrics)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = sweep.Run(ctx)
	}()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, gateway, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Procurement:    handlers.NewProcurementHandler(procurementService),
		Fleet:          handlers.NewFleetHandler(fleetService),
		Assets:         handlers.NewAssetsHandler(assetService),
		Reports:        handlers.NewReportsHandler(reportService),
		Metrics:        metrics,
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
	wg.Wait()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
