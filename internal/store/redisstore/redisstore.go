package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "deckd:idem:"

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

func IdempotencyKey(op, key string) string {
	return keyPrefix + op + ":" + key
}

// pendingMarker holds a reserved key until the first request finishes.
const pendingMarker = "\x00pending"

// Reserve claims (op, key) for ttl. When the key is already taken it returns
// the finished body, or a nil body while the first request is still running.
func (s *Store) Reserve(ctx context.Context, op, key string, ttl time.Duration) (reserved bool, body []byte, err error) {
	k := IdempotencyKey(op, key)
	ok, err := s.rdb.SetNX(ctx, k, pendingMarker, ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	b, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// released between SetNX and Get; the caller retries later
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if string(b) == pendingMarker {
		return false, nil, nil
	}
	return false, b, nil
}

// Release drops a reservation so the key can be retried after a failure.
func (s *Store) Release(ctx context.Context, op, key string) error {
	return s.rdb.Del(ctx, IdempotencyKey(op, key)).Err()
}

// SaveResult replaces the reservation for (op, key) with the finished body.
func (s *Store) SaveResult(ctx context.Context, op, key string, body []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, IdempotencyKey(op, key), body, ttl).Err()
}
