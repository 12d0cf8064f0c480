package domain

import (
	"context"
	"time"

	"tenniscourts/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Lookups return (nil, nil) when the row does not exist.

type CourtRepository interface {
	GetTennisCourt(ctx context.Context, id int64) (*models.TennisCourt, error)
	CreateTennisCourt(ctx context.Context, court *models.TennisCourt) error
	ListTennisCourts(ctx context.Context) ([]*models.TennisCourt, error)
}

type GuestRepository interface {
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	CreateGuest(ctx context.Context, guest *models.Guest) error
}

type ScheduleRepository interface {
	GetSchedule(ctx context.Context, id int64) (*models.Schedule, error)
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	// SaveSchedule persists the reservation id list of an existing schedule.
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	GetFreeSchedulesByCourt(ctx context.Context, courtID int64, from time.Time) ([]*models.Schedule, error)
	GetSchedulesByDateRange(ctx context.Context, start, end time.Time) ([]*models.Schedule, error)
	GetCourtSchedulesByDateRange(ctx context.Context, courtID int64, start, end time.Time) ([]*models.Schedule, error)
}

type ReservationRepository interface {
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	// SaveReservation inserts when ID is zero and assigns the new id, otherwise updates.
	SaveReservation(ctx context.Context, reservation *models.Reservation) error
	GetReservationsByIDs(ctx context.Context, ids []int64) ([]*models.Reservation, error)
}

type Repository interface {
	CourtRepository
	GuestRepository
	ScheduleRepository
	ReservationRepository
}

// ScheduleCache caches free slots per court.
type ScheduleCache interface {
	GetFreeSchedules(ctx context.Context, courtID int64) ([]*models.Schedule, bool, error)
	SetFreeSchedules(ctx context.Context, courtID int64, schedules []*models.Schedule, ttl time.Duration) error
	Invalidate(ctx context.Context, courtID int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type OutboxEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, payload interface{}) error
}

// TaskHandler delivers one outbox task payload to an external system.
type TaskHandler interface {
	Handle(ctx context.Context, payload []byte) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ReservationService interface {
	BookReservation(ctx context.Context, guestID, scheduleID int64) (*models.Reservation, error)
	FindReservation(ctx context.Context, reservationID int64) (*models.Reservation, error)
	CancelReservation(ctx context.Context, reservationID int64) (*models.Reservation, error)
	RescheduleReservation(ctx context.Context, previousReservationID, scheduleID int64) (*models.Reservation, error)
}

type ScheduleService interface {
	AddSchedule(ctx context.Context, courtID int64, start time.Time) (*models.Schedule, error)
	FindSchedule(ctx context.Context, scheduleID int64) (*models.Schedule, error)
	FindSchedulesByDates(ctx context.Context, start, end time.Time) ([]*models.Schedule, error)
	FindFreeSchedulesByCourtID(ctx context.Context, courtID int64) ([]*models.Schedule, error)
}
