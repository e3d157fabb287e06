package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"payment-service/config"
	"payment-service/internal/cache"
	"payment-service/internal/gateway/stripe"
	"payment-service/internal/handler"
	"payment-service/internal/middleware"
	"payment-service/internal/pub"
	"payment-service/internal/repository"
	"payment-service/internal/router"
	"payment-service/internal/usecase"
	"payment-service/pkg/client"
	"payment-service/pkg/utils"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting payment service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if err := repository.RunMigrations(cfg.Database.DSN()); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	dbPool, err := repository.NewPool(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("connected to database", zap.String("database", cfg.Database.DBName))

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// Dedup and events degrade gracefully without Redis.
		logger.Warn("redis unavailable", zap.Error(err))
	}
	defer rdb.Close()

	var kafkaWriter *kafka.Writer
	if cfg.Kafka.Enabled {
		kafkaWriter = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Kafka.Brokers...),
			Topic:    cfg.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
		logger.Info("kafka event stream enabled", zap.String("topic", cfg.Kafka.Topic))
	}

	// Repositories
	ids := utils.NewIDGenerator()
	walletRepo := repository.NewWalletRepo(dbPool, ids)
	txRepo := repository.NewTransactionRepo(dbPool, ids)
	escrowRepo := repository.NewEscrowRepo(dbPool, ids)
	withdrawalRepo := repository.NewWithdrawalRepo(dbPool, ids)
	methodRepo := repository.NewPaymentMethodRepo(dbPool, ids)

	// Collaborators
	stripeClient := stripe.NewClient(cfg.Stripe, cfg.Server.IsProduction(), logger)
	projectClient := client.NewProjectClient(cfg.Collaborators.ProjectServiceURL, logger)
	notificationClient := client.NewNotificationClient(cfg.Collaborators.NotificationServiceURL, logger)
	publisher := pub.NewTransactionEventPublisher(rdb, kafkaWriter, logger)
	eventCache := cache.NewEventCache(rdb, logger)

	// Usecases
	walletUC := usecase.NewWalletUsecase(walletRepo, logger)
	txUC := usecase.NewTransactionUsecase(txRepo, publisher, notificationClient, logger)
	escrowUC := usecase.NewEscrowUsecase(escrowRepo, walletRepo, txUC, projectClient, notificationClient, cfg.Fees, logger)
	withdrawalUC := usecase.NewWithdrawalUsecase(
		withdrawalRepo, walletRepo, methodRepo, txUC, stripeClient, notificationClient, cfg.Fees, cfg.Stripe.Currency, logger)
	paymentUC := usecase.NewPaymentUsecase(walletRepo, txUC, stripeClient, cfg.Stripe.Currency, logger)
	methodUC := usecase.NewPaymentMethodUsecase(methodRepo, stripeClient, logger)
	webhookUC := usecase.NewWebhookUsecase(stripeClient, txUC, withdrawalUC, methodRepo, eventCache, logger)

	// HTTP layer
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret, logger)
	r := router.SetupRoutes(router.Handlers{
		Wallet:        handler.NewWalletHandler(walletUC, logger),
		Transaction:   handler.NewTransactionHandler(txUC, logger),
		Escrow:        handler.NewEscrowHandler(escrowUC, logger),
		Withdrawal:    handler.NewWithdrawalHandler(withdrawalUC, logger),
		PaymentMethod: handler.NewPaymentMethodHandler(methodUC, logger),
		Payment:       handler.NewPaymentHandler(paymentUC, logger),
		Webhook:       handler.NewWebhookHandler(webhookUC, logger),
	}, auth, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("payment service started",
		zap.String("port", cfg.Server.Port),
		zap.String("environment", cfg.Server.Env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
