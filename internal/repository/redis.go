package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messbook/internal/config"
	"messbook/internal/models"

	"github.com/redis/go-redis/v9"
)

const ledgerKeyPrefix = "messbook:ledger:"

// maxWatchRetries ограничивает повторы оптимистичной транзакции
const maxWatchRetries = 5

// RedisLedger shares the last notified status between coordinator instances.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	client := redis.NewClient(options)
	return client
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	return &RedisLedger{
		client: client,
		ttl:    ttl,
	}
}

func ledgerKey(recordID string) string {
	return ledgerKeyPrefix + recordID
}

// Advance runs check-and-set under WATCH so two instances cannot both accept
// the same (record, status).
func (r *RedisLedger) Advance(ctx context.Context, recordID string, status models.Status, terminal bool) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := ledgerKey(recordID)

	for i := 0; i < maxWatchRetries; i++ {
		accepted := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			had := true
			if errors.Is(err, redis.Nil) {
				had = false
			} else if err != nil {
				return err
			}

			prev, ok := decode(raw)
			if had && !ok {
				// повреждённое значение перезаписываем
				had = false
			}
			if !accept(prev, had, status) {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encode(entry{status: status, terminal: terminal}), r.ttl)
				return nil
			})
			if err == nil {
				accepted = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("failed to advance ledger in redis: %w", err)
		}
		return accepted, nil
	}
	return false, fmt.Errorf("failed to advance ledger in redis: %w", redis.TxFailedErr)
}

func (r *RedisLedger) LastSeen(ctx context.Context, recordID string) (models.Status, bool, error) {
	if r.client == nil {
		return "", false, fmt.Errorf("redis client is nil")
	}
	raw, err := r.client.Get(ctx, ledgerKey(recordID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get ledger entry from redis: %w", err)
	}
	e, ok := decode(raw)
	if !ok {
		return "", false, nil
	}
	return e.status, true, nil
}

func (r *RedisLedger) Forget(ctx context.Context, recordID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, ledgerKey(recordID)).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger entry from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
