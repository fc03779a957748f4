package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wanderly-travel/service-checkout/internal/application"
	"github.com/wanderly-travel/service-checkout/internal/platform/cache"
	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// RedisSubmissionGuard implements application.SubmissionGuard with a SET NX
// in-flight lock next to an idempotency map of finished submissions.
type RedisSubmissionGuard struct {
	rdb *redis.Client
}

// NewRedisSubmissionGuard creates a RedisSubmissionGuard.
func NewRedisSubmissionGuard(rdb *redis.Client) *RedisSubmissionGuard {
	return &RedisSubmissionGuard{rdb: rdb}
}

// Begin returns the booking id of a finished submission, or claims key.
func (g *RedisSubmissionGuard) Begin(ctx context.Context, key string) (uuid.UUID, error) {
	idemKey := cache.Key(cache.KeyIdemBookingCreate, key)
	existing, err := g.rdb.Get(ctx, idemKey).Result()
	switch {
	case err == nil:
		id, perr := uuid.Parse(existing)
		if perr == nil {
			return id, nil
		}
		// unreadable entry; treat the key as fresh
		_ = g.rdb.Del(ctx, idemKey).Err()
	case !errors.Is(err, redis.Nil):
		return uuid.Nil, guardUnavailable(err)
	}

	ok, err := g.rdb.SetNX(ctx, cache.Key(cache.KeyBookingInFlight, key), "1", cache.TTLInFlight).Result()
	if err != nil {
		return uuid.Nil, guardUnavailable(err)
	}
	if !ok {
		return uuid.Nil, application.ErrSubmissionInFlight
	}
	return uuid.Nil, nil
}

// Complete remembers bookingID under key and drops the in-flight lock.
func (g *RedisSubmissionGuard) Complete(ctx context.Context, key string, bookingID uuid.UUID) error {
	_, err := g.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, cache.Key(cache.KeyIdemBookingCreate, key), bookingID.String(), cache.TTLIdempotency)
		pipe.Del(ctx, cache.Key(cache.KeyBookingInFlight, key))
		return nil
	})
	return err
}

// Release drops the in-flight lock.
func (g *RedisSubmissionGuard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, cache.Key(cache.KeyBookingInFlight, key)).Err()
}

func guardUnavailable(err error) error {
	return domainerr.NewUnavailableError("submission_guard_unavailable", "bookings cannot be accepted right now", err)
}

// RedisBookingCache implements application.BookingCache. Cache failures are
// logged and treated as misses.
type RedisBookingCache struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedisBookingCache creates a RedisBookingCache.
func NewRedisBookingCache(rdb *redis.Client, logger *zap.Logger) *RedisBookingCache {
	return &RedisBookingCache{rdb: rdb, logger: logger}
}

func (c *RedisBookingCache) Get(ctx context.Context, id uuid.UUID) (*application.BookingDTO, bool) {
	raw, err := c.rdb.Get(ctx, cache.Key(cache.KeyBookingView, id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("booking cache read failed", zap.String("booking_id", id.String()), zap.Error(err))
		}
		return nil, false
	}

	var dto application.BookingDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		c.logger.Warn("booking cache entry unreadable", zap.String("booking_id", id.String()), zap.Error(err))
		return nil, false
	}
	return &dto, true
}

func (c *RedisBookingCache) Set(ctx context.Context, dto *application.BookingDTO) {
	raw, err := json.Marshal(dto)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cache.Key(cache.KeyBookingView, dto.ID), raw, cache.TTLBookingView).Err(); err != nil {
		c.logger.Warn("booking cache write failed", zap.String("booking_id", dto.ID.String()), zap.Error(err))
	}
}

func (c *RedisBookingCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if err := c.rdb.Del(ctx, cache.Key(cache.KeyBookingView, id)).Err(); err != nil {
		c.logger.Warn("booking cache invalidate failed", zap.String("booking_id", id.String()), zap.Error(err))
	}
}

// RedisDeduplicator marks processed message ids so replays are skipped.
type RedisDeduplicator struct {
	rdb      *redis.Client
	consumer string
}

// NewRedisDeduplicator creates a deduplicator scoped to consumer.
func NewRedisDeduplicator(rdb *redis.Client, consumer string) *RedisDeduplicator {
	return &RedisDeduplicator{rdb: rdb, consumer: consumer}
}

// Claim reports whether id is seen for the first time.
func (d *RedisDeduplicator) Claim(ctx context.Context, id string) (bool, error) {
	return d.rdb.SetNX(ctx, cache.Key(cache.KeyDedup, d.consumer, id), "1", cache.TTLDedup).Result()
}

// Forget removes the mark for id so a failed message can be retried.
func (d *RedisDeduplicator) Forget(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, cache.Key(cache.KeyDedup, d.consumer, id)).Err()
}
