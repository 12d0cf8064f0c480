package repository

import (
	"context"
	"sync"
	"time"

	"tenniscourts/internal/models"
)

type memoryEntry struct {
	schedules []*models.Schedule
	expiresAt time.Time
}

// MemoryScheduleCache is the in-process free slot cache used when Redis is absent or down.
type MemoryScheduleCache struct {
	entries sync.Map
	now     func() time.Time
}

func NewMemoryScheduleCache() *MemoryScheduleCache {
	return &MemoryScheduleCache{now: time.Now}
}

func (c *MemoryScheduleCache) GetFreeSchedules(_ context.Context, courtID int64) ([]*models.Schedule, bool, error) {
	val, ok := c.entries.Load(courtID)
	if !ok {
		return nil, false, nil
	}
	entry := val.(*memoryEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.entries.Delete(courtID)
		return nil, false, nil
	}
	return cloneSchedules(entry.schedules), true, nil
}

func (c *MemoryScheduleCache) SetFreeSchedules(_ context.Context, courtID int64, schedules []*models.Schedule, ttl time.Duration) error {
	entry := &memoryEntry{schedules: cloneSchedules(schedules)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Store(courtID, entry)
	return nil
}

func (c *MemoryScheduleCache) Invalidate(_ context.Context, courtID int64) error {
	c.entries.Delete(courtID)
	return nil
}

// callers mutate schedules, so the cache never hands out its own copies
func cloneSchedules(in []*models.Schedule) []*models.Schedule {
	out := make([]*models.Schedule, 0, len(in))
	for _, s := range in {
		cp := *s
		cp.ReservationIDs = append([]int64(nil), s.ReservationIDs...)
		out = append(out, &cp)
	}
	return out
}
