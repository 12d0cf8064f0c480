package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"tenniscourts/internal/domain"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverScheduleCache uses primary until it errors, then serves from fallback
// and retries primary once per recoveryInterval.
type FailoverScheduleCache struct {
	primary  domain.ScheduleCache
	fallback domain.ScheduleCache
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
	// courts whose primary entry could not be invalidated
	stale map[int64]struct{}
}

func NewFailoverScheduleCache(primary, fallback domain.ScheduleCache, logger *zerolog.Logger) *FailoverScheduleCache {
	return &FailoverScheduleCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		stale:    make(map[int64]struct{}),
	}
}

func (c *FailoverScheduleCache) markDown(err error) {
	if !c.isDown.Swap(true) {
		c.logger.Error().Err(err).Msg("primary schedule cache failed, falling back to memory")
	}
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()
}

// usePrimary reports whether the next call should go to primary.
func (c *FailoverScheduleCache) usePrimary() bool {
	if !c.isDown.Load() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastCheck) > recoveryInterval
}

// primaryReady reports whether primary may serve the call. Invalidations it
// missed while down are replayed first.
func (c *FailoverScheduleCache) primaryReady(ctx context.Context) bool {
	if !c.usePrimary() {
		return false
	}
	if err := c.clearStale(ctx); err != nil {
		c.markDown(err)
		return false
	}
	return true
}

func (c *FailoverScheduleCache) clearStale(ctx context.Context) error {
	c.mu.Lock()
	courts := make([]int64, 0, len(c.stale))
	for courtID := range c.stale {
		courts = append(courts, courtID)
	}
	c.mu.Unlock()

	for _, courtID := range courts {
		if err := c.primary.Invalidate(ctx, courtID); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.stale, courtID)
		c.mu.Unlock()
	}
	return nil
}

func (c *FailoverScheduleCache) recovered() {
	if c.isDown.Swap(false) {
		c.logger.Info().Msg("primary schedule cache recovered")
	}
}

func (c *FailoverScheduleCache) GetFreeSchedules(ctx context.Context, courtID int64) ([]*models.Schedule, bool, error) {
	if c.primaryReady(ctx) {
		schedules, ok, err := c.primary.GetFreeSchedules(ctx, courtID)
		if err == nil {
			c.recovered()
			return schedules, ok, nil
		}
		c.markDown(err)
	}
	return c.fallback.GetFreeSchedules(ctx, courtID)
}

func (c *FailoverScheduleCache) SetFreeSchedules(ctx context.Context, courtID int64, schedules []*models.Schedule, ttl time.Duration) error {
	if c.primaryReady(ctx) {
		err := c.primary.SetFreeSchedules(ctx, courtID, schedules, ttl)
		if err == nil {
			c.recovered()
			return nil
		}
		c.markDown(err)
	}
	return c.fallback.SetFreeSchedules(ctx, courtID, schedules, ttl)
}

// Invalidate clears both layers, trying primary even while it is marked down.
// A court primary could not clear is cleared again before primary serves it.
func (c *FailoverScheduleCache) Invalidate(ctx context.Context, courtID int64) error {
	fallbackErr := c.fallback.Invalidate(ctx, courtID)
	if err := c.primary.Invalidate(ctx, courtID); err != nil {
		c.mu.Lock()
		c.stale[courtID] = struct{}{}
		c.mu.Unlock()
		c.markDown(err)
	} else {
		c.recovered()
	}
	return fallbackErr
}
