package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/change-service/internal/api/http"
	"github.com/spec-kit/change-service/internal/api/http/handlers"
	"github.com/spec-kit/change-service/internal/auth"
	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/observability"
	"github.com/spec-kit/change-service/internal/persistence"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/service"
	"github.com/spec-kit/change-service/internal/worker"
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	resetRepo := repository.NewPasswordResetRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	ruleRepo := repository.NewRoutingRuleRepository(pool)
	changeRepo := repository.NewChangeRepository(pool)
	approvalRepo := repository.NewApprovalRepository(pool)
	historyRepo := repository.NewChangeHistoryRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:          userRepo,
		StaffRepo:         staffRepo,
		PasswordResetRepo: resetRepo,
	})
	routingService := service.NewRoutingService(cfg.Approval, service.RoutingDependencies{
		RuleRepo:    ruleRepo,
		ProductRepo: productRepo,
		StaffRepo:   staffRepo,
		Cache:       redis,
	}, logger)
	changeService := service.NewChangeService(cfg.Approval, service.ChangeDependencies{
		ChangeRepo:   changeRepo,
		ApprovalRepo: approvalRepo,
		ProductRepo:  productRepo,
		HistoryRepo:  historyRepo,
		Routing:      routingService,
		Dispatcher:   dispatcher,
	}, logger)
	approvalService := service.NewApprovalService(approvalRepo, changeRepo, historyRepo, dispatcher, logger)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	worker.StartNotificationWorker(notificationService)
	overdueWorker := worker.NewOverdueWorker(changeRepo, dispatcher, logger, cfg.Worker)
	overdueWorker.Start(ctx)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo, staffRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Staff:          handlers.NewStaffHandler(authService, staffRepo),
		Changes:        handlers.NewChangesHandler(changeService),
		Approvals:      handlers.NewApprovalsHandler(approvalService),
		Routing:        handlers.NewRoutingHandler(routingService),
		Products:       handlers.NewProductsHandler(productRepo),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
