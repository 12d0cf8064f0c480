package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tenniscourts/internal/domain"
	"tenniscourts/internal/events"
	"tenniscourts/internal/metrics"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
)

const (
	msgReservationNotFound = "Reservation not found."
	msgScheduleNotFound    = "Schedule not found."
	msgGuestNotFound       = "Guest not found."
	msgNotReadyToPlay      = "Cannot cancel/reschedule because it's not in ready to play status."
	msgOnlyFutureDates     = "Can cancel/reschedule only future dates."
	msgSameSlot            = "Cannot reschedule to the same slot."
)

// RefundValue returns the refund for cancelling a reservation worth value whose slot
// starts at start. The whole hours left until start, truncated, must reach
// cutoffHours for a full refund; otherwise nothing is refunded.
func RefundValue(value models.Money, start, now time.Time, cutoffHours int) models.Money {
	hours := int64(start.Sub(now) / time.Hour)
	if hours >= int64(cutoffHours) {
		return value
	}
	return 0
}

type ReservationService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	outbox       domain.OutboxEnqueuer
	outboxTasks  []string
	cache        domain.ScheduleCache
	defaultValue models.Money
	cutoffHours  int
	now          func() time.Time
	logger       *zerolog.Logger
}

type ReservationOption func(*ReservationService)

// WithDefaultValue sets the price of every new booking.
func WithDefaultValue(v models.Money) ReservationOption {
	return func(s *ReservationService) { s.defaultValue = v }
}

func WithRefundCutoffHours(hours int) ReservationOption {
	return func(s *ReservationService) { s.cutoffHours = hours }
}

func WithClock(now func() time.Time) ReservationOption {
	return func(s *ReservationService) { s.now = now }
}

func WithEventPublisher(p domain.EventPublisher) ReservationOption {
	return func(s *ReservationService) { s.eventBus = p }
}

// WithOutbox enqueues the given task types after every lifecycle change.
func WithOutbox(outbox domain.OutboxEnqueuer, taskTypes ...string) ReservationOption {
	return func(s *ReservationService) {
		s.outbox = outbox
		s.outboxTasks = taskTypes
	}
}

// WithScheduleCache makes the service drop cached free slots of touched courts.
func WithScheduleCache(cache domain.ScheduleCache) ReservationOption {
	return func(s *ReservationService) { s.cache = cache }
}

func NewReservationService(repo domain.Repository, logger *zerolog.Logger, opts ...ReservationOption) *ReservationService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &ReservationService{
		repo:         repo,
		defaultValue: models.DefaultReservationValue,
		cutoffHours:  int(models.DefaultRefundCutoff / time.Hour),
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReservationService) BookReservation(ctx context.Context, guestID, scheduleID int64) (*models.Reservation, error) {
	schedule, err := s.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, s.observe("book", err)
	}

	guest, err := s.loadGuest(ctx, guestID)
	if err != nil {
		return nil, s.observe("book", err)
	}

	reservation, err := s.book(ctx, guest, schedule)
	if err != nil {
		return nil, s.observe("book", err)
	}

	s.afterChange(ctx, events.EventReservationBooked, schedule, reservation)
	s.observe("book", nil)
	return reservation, nil
}

func (s *ReservationService) FindReservation(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	return s.loadReservation(ctx, reservationID)
}

func (s *ReservationService) CancelReservation(ctx context.Context, reservationID int64) (*models.Reservation, error) {
	reservation, err := s.loadReservation(ctx, reservationID)
	if err != nil {
		return nil, s.observe("cancel", err)
	}

	schedule, err := s.cancel(ctx, reservation)
	if err != nil {
		return nil, s.observe("cancel", err)
	}

	s.afterChange(ctx, events.EventReservationCancelled, schedule, reservation)
	s.observe("cancel", nil)
	return reservation, nil
}

// RescheduleReservation cancels the previous reservation, marks it RESCHEDULED and books
// the same guest on scheduleID. The steps commit separately: if booking fails the previous
// reservation stays RESCHEDULED without a replacement.
func (s *ReservationService) RescheduleReservation(ctx context.Context, previousReservationID, scheduleID int64) (*models.Reservation, error) {
	previous, err := s.loadReservation(ctx, previousReservationID)
	if err != nil {
		return nil, s.observe("reschedule", err)
	}

	schedule, err := s.loadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, s.observe("reschedule", err)
	}

	if previous.ScheduleID == scheduleID {
		return nil, s.observe("reschedule", domain.InvalidArgument(msgSameSlot))
	}

	oldSchedule, err := s.cancel(ctx, previous)
	if err != nil {
		return nil, s.observe("reschedule", err)
	}
	s.invalidate(ctx, oldSchedule.TennisCourtID)

	previous.Status = models.StatusRescheduled
	if err := s.repo.SaveReservation(ctx, previous); err != nil {
		s.logPartial(previous.ID, scheduleID, "mark rescheduled", err)
		return nil, s.observe("reschedule", fmt.Errorf("failed to mark reservation %d rescheduled: %w", previous.ID, err))
	}

	guest, err := s.loadGuest(ctx, previous.GuestID)
	if err != nil {
		s.logPartial(previous.ID, scheduleID, "load guest", err)
		return nil, s.observe("reschedule", err)
	}

	reservation, err := s.book(ctx, guest, schedule)
	if err != nil {
		s.logPartial(previous.ID, scheduleID, "book new slot", err)
		return nil, s.observe("reschedule", err)
	}
	reservation.PreviousReservation = previous

	s.afterChange(ctx, events.EventReservationRescheduled, schedule, reservation)
	s.enqueueLedger(ctx, s.payload(events.EventReservationRescheduled, oldSchedule, previous))
	s.observe("reschedule", nil)
	return reservation, nil
}

func (s *ReservationService) book(ctx context.Context, guest *models.Guest, schedule *models.Schedule) (*models.Reservation, error) {
	reservation := &models.Reservation{
		GuestID:    guest.ID,
		ScheduleID: schedule.ID,
		Value:      s.defaultValue,
		Status:     models.StatusReadyToPlay,
	}
	if err := s.repo.SaveReservation(ctx, reservation); err != nil {
		return nil, fmt.Errorf("failed to save reservation: %w", err)
	}

	schedule.AddReservation(reservation.ID)
	if err := s.repo.SaveSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to attach reservation %d to schedule %d: %w", reservation.ID, schedule.ID, err)
	}

	s.invalidate(ctx, schedule.TennisCourtID)
	return reservation, nil
}

// cancel validates and applies the cancellation to reservation in place.
func (s *ReservationService) cancel(ctx context.Context, reservation *models.Reservation) (*models.Schedule, error) {
	if reservation.Status != models.StatusReadyToPlay {
		return nil, domain.InvalidState(msgNotReadyToPlay)
	}

	schedule, err := s.loadSchedule(ctx, reservation.ScheduleID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if schedule.HasStartedBy(now) {
		return nil, domain.InvalidState(msgOnlyFutureDates)
	}

	refund := RefundValue(reservation.Value, schedule.StartDateTime, now, s.cutoffHours)
	reservation.Status = models.StatusCancelled
	reservation.ApplyRefund(refund)

	if err := s.repo.SaveReservation(ctx, reservation); err != nil {
		return nil, fmt.Errorf("failed to save cancelled reservation: %w", err)
	}

	metrics.ObserveRefund(int64(refund))
	s.invalidate(ctx, schedule.TennisCourtID)
	return schedule, nil
}

func (s *ReservationService) loadReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	reservation, err := s.repo.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", id, err)
	}
	if reservation == nil {
		return nil, domain.NotFound(msgReservationNotFound)
	}
	return reservation, nil
}

func (s *ReservationService) loadSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	schedule, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", id, err)
	}
	if schedule == nil {
		return nil, domain.NotFound(msgScheduleNotFound)
	}
	return schedule, nil
}

func (s *ReservationService) loadGuest(ctx context.Context, id int64) (*models.Guest, error) {
	guest, err := s.repo.GetGuest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get guest %d: %w", id, err)
	}
	if guest == nil {
		return nil, domain.NotFound(msgGuestNotFound)
	}
	return guest, nil
}

func (s *ReservationService) payload(eventType string, schedule *models.Schedule, r *models.Reservation) events.ReservationEventPayload {
	p := events.ReservationEventPayload{
		EventType:     eventType,
		ReservationID: r.ID,
		GuestID:       r.GuestID,
		ScheduleID:    r.ScheduleID,
		Status:        string(r.Status),
		Value:         r.Value.String(),
		RefundValue:   r.RefundValue.String(),
		OccurredAt:    s.now().UTC(),
	}
	if schedule != nil {
		p.TennisCourtID = schedule.TennisCourtID
		p.StartDateTime = schedule.StartDateTime
	}
	if r.PreviousReservation != nil {
		p.PreviousReservationID = r.PreviousReservation.ID
	}
	return p
}

func (s *ReservationService) afterChange(ctx context.Context, eventType string, schedule *models.Schedule, r *models.Reservation) {
	payload := s.payload(eventType, schedule, r)

	if s.eventBus != nil {
		if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
		}
	}

	for _, taskType := range s.outboxTasks {
		s.enqueue(ctx, taskType, payload)
	}
}

// enqueueLedger records an extra row update, used for the reservation replaced by a reschedule.
func (s *ReservationService) enqueueLedger(ctx context.Context, payload events.ReservationEventPayload) {
	for _, taskType := range s.outboxTasks {
		if taskType == models.TaskSheetsUpsert {
			s.enqueue(ctx, taskType, payload)
		}
	}
}

func (s *ReservationService) enqueue(ctx context.Context, taskType string, payload events.ReservationEventPayload) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.EnqueueTask(ctx, taskType, payload.ReservationID, payload); err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", payload.ReservationID).Str("task", taskType).Msg("outbox enqueue error")
	}
}

func (s *ReservationService) invalidate(ctx context.Context, courtID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, courtID); err != nil {
		s.logger.Warn().Err(err).Int64("court_id", courtID).Msg("free slots cache invalidation failed")
	}
}

func (s *ReservationService) logPartial(previousID, scheduleID int64, step string, err error) {
	s.logger.Warn().
		Err(err).
		Int64("previous_reservation_id", previousID).
		Int64("schedule_id", scheduleID).
		Str("step", step).
		Msg("reschedule stopped after previous reservation was released")
}

func (s *ReservationService) observe(operation string, err error) error {
	metrics.ObserveReservation(operation, outcome(err))
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}
