package api

import (
	"context"
	"io"
	"time"

	"tenniscourts/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockReservations struct {
	mock.Mock
}

func (m *mockReservations) reservation(args mock.Arguments) (*models.Reservation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}

func (m *mockReservations) BookReservation(ctx context.Context, guestID, scheduleID int64) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, guestID, scheduleID))
}

func (m *mockReservations) FindReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id))
}

func (m *mockReservations) CancelReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id))
}

func (m *mockReservations) RescheduleReservation(ctx context.Context, id, scheduleID int64) (*models.Reservation, error) {
	return m.reservation(m.Called(ctx, id, scheduleID))
}

type mockSchedules struct {
	mock.Mock
}

func (m *mockSchedules) AddSchedule(ctx context.Context, courtID int64, start time.Time) (*models.Schedule, error) {
	args := m.Called(ctx, courtID, start)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *mockSchedules) FindSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *mockSchedules) FindSchedulesByDates(ctx context.Context, start, end time.Time) ([]*models.Schedule, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *mockSchedules) FindFreeSchedulesByCourtID(ctx context.Context, courtID int64) ([]*models.Schedule, error) {
	args := m.Called(ctx, courtID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *mockSchedules) FindCourtWithFreeSchedules(ctx context.Context, courtID int64) (*models.TennisCourt, []*models.Schedule, error) {
	args := m.Called(ctx, courtID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.TennisCourt), args.Get(1).([]*models.Schedule), args.Error(2)
}

type fakeExporter struct {
	err  error
	from time.Time
	to   time.Time
}

func (f *fakeExporter) Write(_ context.Context, w io.Writer, _ int64, from, to time.Time) error {
	f.from, f.to = from, to
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return err
}
