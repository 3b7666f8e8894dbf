package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisOptions configures NewRedisManager.
type RedisOptions struct {
	// Prefix namespaces keys, e.g. "esimbot:session:".
	Prefix string
	// TTL expires idle sessions; zero keeps them forever.
	TTL time.Duration
}

type redisManager[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	locks  keyedMutex
	now    func() time.Time
}

// NewRedisManager stores sessions as JSON documents in Redis. Writes use
// WATCH/MULTI so concurrent replicas never interleave a read-modify-write.
func NewRedisManager[T any](client redis.UniversalClient, opts RedisOptions) Manager[T] {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "session:"
	}
	return &redisManager[T]{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		now:    time.Now,
	}
}

func (r *redisManager[T]) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *redisManager[T]) Get(ctx context.Context, userID int64) (Session[T], error) {
	return r.load(ctx, r.client, r.key(userID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *redisManager[T]) load(ctx context.Context, c getter, key string) (Session[T], error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session[T]{State: StateIdle}, nil
	}
	if err != nil {
		return Session[T]{}, fmt.Errorf("session get: %w", err)
	}
	var s Session[T]
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session[T]{}, fmt.Errorf("session decode: %w", err)
	}
	if s.State == "" {
		s.State = StateIdle
	}
	return s, nil
}

func (r *redisManager[T]) Update(ctx context.Context, userID int64, fn func(*Session[T])) error {
	key := r.key(userID)
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		fn(&s)
		s.UpdatedAt = r.now()
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("session encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, raw, r.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session update: %w", redis.TxFailedErr)
}

func (r *redisManager[T]) SetState(ctx context.Context, userID int64, st State) error {
	return r.Update(ctx, userID, func(s *Session[T]) { s.State = st })
}

func (r *redisManager[T]) CurrentState(ctx context.Context, userID int64) (State, error) {
	s, err := r.Get(ctx, userID)
	return s.State, err
}

func (r *redisManager[T]) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

func (r *redisManager[T]) Lock(userID int64) func() {
	return r.locks.Lock(userID)
}

func (r *redisManager[T]) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
