//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wanderly-travel/service-checkout/internal/adapter"
	"github.com/wanderly-travel/service-checkout/internal/application"
	checkoutEvents "github.com/wanderly-travel/service-checkout/internal/events"
	"github.com/wanderly-travel/service-checkout/internal/platform/cache"
	"github.com/wanderly-travel/service-checkout/internal/platform/database"
	"github.com/wanderly-travel/service-checkout/internal/platform/kafka"
	"github.com/wanderly-travel/service-checkout/internal/repository"
	"github.com/wanderly-travel/service-checkout/internal/saga"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	Redis        *redis.Client
	KafkaBrokers []string
	Cleanup      func()
}

// checkoutStack holds wired-up checkout components.
type checkoutStack struct {
	Coupons         *application.CouponService
	Carts           *application.CartService
	Bookings        *application.BookingService
	Payments        *application.PaymentService
	Reconciler      *application.ReconcilerService
	Gateway         *adapter.MockGateway
	Consumer        *checkoutEvents.PaymentSignalConsumer
	CleanupProducer func()
}

// setupContainers starts PostgreSQL, Redis and Kafka testcontainers and
// applies the SQL migrations.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_checkout",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pgCfg := database.PostgresConfig{
		Host:     pgHost,
		Port:     pgPort.Port(),
		User:     "test",
		Password: "test",
		DBName:   "test_checkout",
		SSLMode:  "disable",
	}

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = database.Connect(pgCfg, logger)
		return err == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, database.RunMigrations(pgCfg.DatabaseURL(), "migrations", logger))

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")

	redisEndpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb, err := cache.Connect(ctx, cache.Config{Addr: redisEndpoint}, logger)
	require.NoError(t, err, "failed to connect to Redis")

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, checkoutEvents.TopicCheckoutEvents, checkoutEvents.TopicPaymentSignals)

	cleanup := func() {
		_ = rdb.Close()
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		Redis:        rdb,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupCheckoutStack wires up the full checkout stack on a mock gateway.
func setupCheckoutStack(t *testing.T, infra *testInfra) *checkoutStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	const currency = "USD"
	gatewayTimeout := 5 * time.Second

	bookingRepo := repository.NewBookingRepository(infra.DB)
	couponRepo := repository.NewGormCouponRepository(infra.DB)
	attemptRepo := repository.NewAttemptRepository(infra.DB)
	cartRepo := repository.NewRedisCartRepository(infra.Redis)
	bookingCache := repository.NewRedisBookingCache(infra.Redis, logger)
	txManager := database.NewTxManager(infra.DB)
	producer := kafka.NewProducer(infra.KafkaBrokers, logger)
	gateway := adapter.NewMockGateway("http://localhost/mock-pay", false, logger)

	coupons := application.NewCouponService(couponRepo, logger)
	carts := application.NewCartService(cartRepo, coupons, logger)
	bookings := application.NewBookingService(bookingRepo, cartRepo, coupons,
		repository.NewRedisSubmissionGuard(infra.Redis), bookingCache, txManager, producer, currency, logger)
	sagaSvc := saga.NewCheckoutSagaService(attemptRepo, bookingRepo, gateway, txManager, producer,
		currency, gatewayTimeout, logger)
	payments := application.NewPaymentService(bookingRepo, attemptRepo, sagaSvc, bookingCache, logger)
	reconciler := application.NewReconcilerService(bookingRepo, attemptRepo, coupons, gateway, txManager,
		producer, bookingCache, gatewayTimeout, logger)

	groupID := fmt.Sprintf("test-checkout-%s", uuid.New().String()[:8])
	consumer := checkoutEvents.NewPaymentSignalConsumer(infra.KafkaBrokers, groupID, reconciler,
		repository.NewRedisDeduplicator(infra.Redis, groupID), logger)

	return &checkoutStack{
		Coupons:         coupons,
		Carts:           carts,
		Bookings:        bookings,
		Payments:        payments,
		Reconciler:      reconciler,
		Gateway:         gateway,
		Consumer:        consumer,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// publishSignal publishes a payment signal CloudEvent with a fixed id.
func publishSignal(t *testing.T, brokers []string, id, eventType string, signal checkoutEvents.PaymentSignal) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent("payment-relay", eventType, signal)
	require.NoError(t, err, "failed to create cloud event")
	ce.ID = id

	err = producer.PublishEvent(context.Background(), checkoutEvents.TopicPaymentSignals, ce)
	require.NoError(t, err, "failed to publish signal")
}

// waitForBookingStatus polls the bookings table until status matches.
func waitForBookingStatus(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expectedStatus string, timeout time.Duration) repository.BookingModel {
	t.Helper()
	var result repository.BookingModel
	require.Eventually(t, func() bool {
		var model repository.BookingModel
		if err := db.Where("id = ?", bookingID).First(&model).Error; err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "booking did not transition to %s", expectedStatus)
	return result
}

// waitForAttemptStatus polls payment_attempts until the newest attempt of a
// booking has the expected status.
func waitForAttemptStatus(t *testing.T, db *gorm.DB, bookingID uuid.UUID, expectedStatus string, timeout time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		var model repository.PaymentAttemptModel
		err := db.Where("booking_id = ?", bookingID).Order("created_at DESC").First(&model).Error
		return err == nil && model.Status == expectedStatus
	}, timeout, 200*time.Millisecond, "attempt did not transition to %s", expectedStatus)
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the
// expected type about subject.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType, subject string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType && (subject == "" || ce.Subject == subject) {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
