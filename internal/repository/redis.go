package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/models"

	"github.com/redis/go-redis/v9"
)

const freeSlotsKeyPrefix = "free_schedules:court:"

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
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

// RedisScheduleCache stores the free slot list of each court as a JSON value.
type RedisScheduleCache struct {
	client *redis.Client
}

func NewRedisScheduleCache(client *redis.Client) *RedisScheduleCache {
	return &RedisScheduleCache{client: client}
}

func freeSlotsKey(courtID int64) string {
	return fmt.Sprintf("%s%d", freeSlotsKeyPrefix, courtID)
}

func (c *RedisScheduleCache) GetFreeSchedules(ctx context.Context, courtID int64) ([]*models.Schedule, bool, error) {
	if c.client == nil {
		return nil, false, errors.New("redis client is nil")
	}
	val, err := c.client.Get(ctx, freeSlotsKey(courtID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get free schedules from redis: %w", err)
	}

	var schedules []*models.Schedule
	if err := json.Unmarshal(val, &schedules); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal free schedules: %w", err)
	}
	return schedules, true, nil
}

func (c *RedisScheduleCache) SetFreeSchedules(ctx context.Context, courtID int64, schedules []*models.Schedule, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	if schedules == nil {
		schedules = []*models.Schedule{}
	}
	data, err := json.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("failed to marshal free schedules: %w", err)
	}
	if err := c.client.Set(ctx, freeSlotsKey(courtID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set free schedules in redis: %w", err)
	}
	return nil
}

func (c *RedisScheduleCache) Invalidate(ctx context.Context, courtID int64) error {
	if c.client == nil {
		return errors.New("redis client is nil")
	}
	if err := c.client.Del(ctx, freeSlotsKey(courtID)).Err(); err != nil {
		return fmt.Errorf("failed to delete free schedules from redis: %w", err)
	}
	return nil
}
