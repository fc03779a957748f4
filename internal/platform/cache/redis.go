package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key templates.
const (
	// cart:{owner} -> JSON cart entries
	KeyCart = "cart:%s"

	// inflight:booking:{submission key} -> "1" while a create is running
	KeyBookingInFlight = "inflight:booking:%s"

	// idem:booking:create:{submission key} -> booking id
	KeyIdemBookingCreate = "idem:booking:create:%s"

	// booking:{id} -> booking DTO JSON for the confirmation page
	KeyBookingView = "booking:%s"

	// dedup:{consumer}:{event id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCart        = 30 * 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLIdempotency = 24 * time.Hour
	TTLBookingView = 2 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return rdb, nil
}

// Key formats a key template.
func Key(template string, parts ...any) string {
	return fmt.Sprintf(template, parts...)
}
