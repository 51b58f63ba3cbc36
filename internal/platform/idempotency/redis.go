package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "idempotency:"
	redisMaxAttempts = 5
)

// RedisStore implements Store on Redis. Keys expire with the record, so CleanupExpired has nothing to do.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore constructs a Redis-backed idempotency store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Reserve implements Store using WATCH/MULTI so concurrent reservations of one key cannot both win.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	redisKey := redisKeyPrefix + documentID(key)

	var result Reservation
	txf := func(tx *redis.Tx) error {
		existing, found, err := loadRecord(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if found {
			reservation, decided, err := reserveRecord(existing, fingerprint, now)
			if err != nil {
				return err
			}
			if decided {
				result = reservation
				return nil
			}
		}
		record := newPendingRecord(key, fingerprint, now, normaliseTTL(ttl))
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, record.ExpiresAt.Sub(now))
			return nil
		})
		if err == nil {
			result = Reservation{State: ReservationStateNew, Record: record}
		}
		return err
	}

	if err := s.watch(ctx, redisKey, txf); err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// SaveResponse implements Store.
func (s *RedisStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	redisKey := redisKeyPrefix + documentID(key)
	return s.watch(ctx, redisKey, func(tx *redis.Tx) error {
		record, found, err := loadRecord(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = Record{Key: key, Fingerprint: fingerprint}
		}
		record = completeRecord(record, resp, now, normaliseTTL(ttl))
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, record.ExpiresAt.Sub(now))
			return nil
		})
		return err
	})
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+documentID(key)).Err()
}

// CleanupExpired implements Store. Redis expires keys on its own.
func (s *RedisStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func (s *RedisStore) watch(ctx context.Context, key string, fn func(*redis.Tx) error) error {
	for attempt := 0; attempt < redisMaxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("idempotency: key %s contended after %d attempts", key, redisMaxAttempts)
}

func loadRecord(ctx context.Context, tx *redis.Tx, key string) (Record, bool, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("idempotency: decode record: %w", err)
	}
	return record, true, nil
}
