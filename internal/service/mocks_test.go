package service

import (
	"context"
	"time"

	"tenniscourts/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetTennisCourt(ctx context.Context, id int64) (*models.TennisCourt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TennisCourt), args.Error(1)
}
func (m *mockRepo) CreateTennisCourt(ctx context.Context, c *models.TennisCourt) error {
	return m.Called(ctx, c).Error(0)
}
func (m *mockRepo) ListTennisCourts(ctx context.Context) ([]*models.TennisCourt, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TennisCourt), args.Error(1)
}
func (m *mockRepo) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guest), args.Error(1)
}
func (m *mockRepo) CreateGuest(ctx context.Context, g *models.Guest) error {
	return m.Called(ctx, g).Error(0)
}
func (m *mockRepo) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}
func (m *mockRepo) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockRepo) SaveSchedule(ctx context.Context, s *models.Schedule) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockRepo) GetFreeSchedulesByCourt(ctx context.Context, courtID int64, from time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, courtID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Schedule), args.Error(1)
}
func (m *mockRepo) GetSchedulesByDateRange(ctx context.Context, start, end time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Schedule), args.Error(1)
}
func (m *mockRepo) GetCourtSchedulesByDateRange(ctx context.Context, courtID int64, start, end time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, courtID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Schedule), args.Error(1)
}
func (m *mockRepo) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) SaveReservation(ctx context.Context, r *models.Reservation) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) GetReservationsByIDs(ctx context.Context, ids []int64) ([]*models.Reservation, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) EnqueueTask(ctx context.Context, taskType string, reservationID int64, payload interface{}) error {
	return m.Called(ctx, taskType, reservationID, payload).Error(0)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetFreeSchedules(ctx context.Context, courtID int64) ([]*models.Schedule, bool, error) {
	args := m.Called(ctx, courtID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]*models.Schedule), args.Bool(1), args.Error(2)
}
func (m *mockCache) SetFreeSchedules(ctx context.Context, courtID int64, schedules []*models.Schedule, ttl time.Duration) error {
	return m.Called(ctx, courtID, schedules, ttl).Error(0)
}
func (m *mockCache) Invalidate(ctx context.Context, courtID int64) error {
	return m.Called(ctx, courtID).Error(0)
}
