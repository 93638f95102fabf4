package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/exchange-chat-service/internal/api/http"
	"github.com/spec-kit/exchange-chat-service/internal/api/http/handlers"
	"github.com/spec-kit/exchange-chat-service/internal/assets"
	"github.com/spec-kit/exchange-chat-service/internal/auth"
	"github.com/spec-kit/exchange-chat-service/internal/cache"
	"github.com/spec-kit/exchange-chat-service/internal/config"
	"github.com/spec-kit/exchange-chat-service/internal/events"
	"github.com/spec-kit/exchange-chat-service/internal/hub"
	"github.com/spec-kit/exchange-chat-service/internal/observability"
	"github.com/spec-kit/exchange-chat-service/internal/persistence"
	"github.com/spec-kit/exchange-chat-service/internal/repository"
	"github.com/spec-kit/exchange-chat-service/internal/service"
	"github.com/spec-kit/exchange-chat-service/internal/worker"
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

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	cacheStore := cache.NewService(redis.Client, logger)

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	roomRepo := repository.NewRoomRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)

	assetStore := assets.NewMemoryStorage(cfg.Assets, logger)

	messageService := service.NewMessageService(*cfg, service.MessageDependencies{
		MessageRepo: messageRepo,
		UserRepo:    userRepo,
		Cache:       cacheStore,
		Assets:      assetStore,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	roomService := service.NewRoomService(*cfg, service.RoomDependencies{
		RoomRepo:   roomRepo,
		OrderRepo:  orderRepo,
		UserRepo:   userRepo,
		Cache:      cacheStore,
		Messenger:  messageService,
		Cleaner:    messageService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	notificationService := service.NewNotificationService(dispatcher, metrics, logger)
	worker.StartNotificationWorker(notificationService)

	gateway := hub.NewGateway(*cfg, hub.GatewayDependencies{
		Registry: hub.NewRegistry(),
		Rooms:    roomService,
		Messages: messageService,
		Metrics:  metrics,
		Logger:   logger,
	})
	// Services push through the hub, the hub calls back into services; the
	// notifier side is wired after both exist.
	roomService.SetNotifier(gateway.Registry())
	messageService.SetNotifier(gateway.Registry())

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokenManager, userRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Orders:         handlers.NewOrdersHandler(orderRepo, roomService),
		Rooms:          handlers.NewRoomsHandler(roomService),
		WS:             handlers.NewWSHandler(gateway, authMiddleware),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
