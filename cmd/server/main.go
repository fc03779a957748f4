package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/config"
	checkoutEvents "github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/handler"
	"github.com/wanderly-travel/service-checkout/internal/platform/auth"
	"github.com/wanderly-travel/service-checkout/internal/platform/cache"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
	"github.com/wanderly-travel/service-checkout/internal/platform/health"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
	"github.com/wanderly-travel/service-checkout/internal/platform/logger"
	"github.com/wanderly-travel/service-checkout/internal/platform/middleware"
	"github.com/wanderly-travel/service-checkout/internal/repository"
	"github.com/wanderly-travel/service-checkout/internal/saga"
)

const serviceName = "service-checkout"

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("gateway", cfg.PaymentGateway),
		zap.String("currency", cfg.Currency),
	)

	// Connect to database
	db, err := database.Connect(cfg.DBConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.IsDevelopment() {
		if err := db.AutoMigrate(
			&repository.BookingModel{},
			&repository.BookingItemModel{},
			&repository.CouponModel{},
			&repository.CouponUsageModel{},
			&repository.PaymentAttemptModel{},
		); err != nil {
			zapLogger.Fatal("failed to auto-migrate", zap.Error(err))
		}
		zapLogger.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(cfg.DBConfig.DatabaseURL(), cfg.MigrationsDir, zapLogger); err != nil {
			zapLogger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	// Connect to Redis
	rdb, err := cache.Connect(context.Background(), cfg.RedisConfig, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.AccessTTL, cfg.JWTConfig.RefreshTTL)

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, zapLogger)
	defer kafkaProducer.Close()

	// Initialize payment gateway
	var (
		gateway  adapter.PaymentGateway
		verifier handler.WebhookVerifier
	)
	switch cfg.PaymentGateway {
	case config.GatewayStripe:
		stripeGateway := adapter.NewStripeGateway(cfg.StripeConfig, zapLogger)
		gateway, verifier = stripeGateway, stripeGateway
	default:
		gateway = adapter.NewMockGateway(cfg.MockGatewayURL, cfg.MockGatewayAutoPay, zapLogger)
	}

	// Initialize repositories
	bookingRepo := repository.NewBookingRepository(db)
	couponRepo := repository.NewGormCouponRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	cartRepo := repository.NewRedisCartRepository(rdb)
	submissionGuard := repository.NewRedisSubmissionGuard(rdb)
	bookingCache := repository.NewRedisBookingCache(rdb, zapLogger)
	txManager := database.NewTxManager(db)

	// Initialize application services
	couponService := application.NewCouponService(couponRepo, zapLogger)
	cartService := application.NewCartService(cartRepo, couponService, zapLogger)
	bookingService := application.NewBookingService(
		bookingRepo, cartRepo, couponService, submissionGuard, bookingCache,
		txManager, kafkaProducer, cfg.Currency, zapLogger,
	)
	sagaService := saga.NewCheckoutSagaService(
		attemptRepo, bookingRepo, gateway, txManager, kafkaProducer,
		cfg.Currency, cfg.GatewayTimeout, zapLogger,
	)
	paymentService := application.NewPaymentService(bookingRepo, attemptRepo, sagaService, bookingCache, zapLogger)
	reconciler := application.NewReconcilerService(
		bookingRepo, attemptRepo, couponService, gateway, txManager,
		kafkaProducer, bookingCache, cfg.GatewayTimeout, zapLogger,
	)

	// Initialize Kafka consumer for payment signals
	consumerGroupID := cfg.KafkaConfig.GroupPrefix + "checkout-service"
	signalConsumer := checkoutEvents.NewPaymentSignalConsumer(
		cfg.KafkaConfig.Brokers,
		consumerGroupID,
		reconciler,
		repository.NewRedisDeduplicator(rdb, consumerGroupID),
		zapLogger,
	)
	defer signalConsumer.Close()

	// Start Kafka consumer in a goroutine
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()

	go func() {
		zapLogger.Info("starting payment signal consumer")
		if err := signalConsumer.Start(consumerCtx); err != nil {
			if consumerCtx.Err() == nil {
				zapLogger.Error("payment signal consumer failed", zap.Error(err))
			}
		}
	}()

	// Setup Gin router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(zapLogger))
	router.Use(middleware.LoggerMiddleware(zapLogger))
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowOrigins...))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, rdb, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register checkout routes
	apiV1 := router.Group("/api/v1")
	handler.NewCartHandler(cartService).RegisterRoutes(apiV1, jwtManager)
	handler.NewCouponHandler(
		couponService,
		middleware.NewIPRateLimiter(cfg.RateLimitPerMin, 5),
		zapLogger,
	).RegisterRoutes(apiV1)
	handler.NewBookingHandler(bookingService).RegisterRoutes(apiV1, jwtManager)
	handler.NewPaymentHandler(paymentService, reconciler, verifier, zapLogger).RegisterRoutes(apiV1)

	// Register admin handler routes
	handler.NewAdminHandler(couponService, bookingService, paymentService, reconciler).RegisterRoutes(apiV1, jwtManager)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.GatewayTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		zapLogger.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down " + serviceName + "...")

	// Cancel Kafka consumer
	consumerCancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info(serviceName + " stopped")
}
