package service

import (
	"context"
	"fmt"
	"time"

	"tenniscourts/internal/domain"
	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
)

const msgCourtNotFound = "Tennis Court not found."

type scheduleRepository interface {
	domain.CourtRepository
	domain.ScheduleRepository
}

type ScheduleService struct {
	repo         scheduleRepository
	cache        domain.ScheduleCache
	cacheTTL     time.Duration
	slotDuration time.Duration
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewScheduleService(repo scheduleRepository, cache domain.ScheduleCache, cacheTTL, slotDuration time.Duration, logger *zerolog.Logger) *ScheduleService {
	if slotDuration <= 0 {
		slotDuration = models.DefaultSlotDuration
	}
	if cacheTTL <= 0 {
		cacheTTL = models.FreeSlotsCacheTTL
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ScheduleService{
		repo:         repo,
		cache:        cache,
		cacheTTL:     cacheTTL,
		slotDuration: slotDuration,
		now:          time.Now,
		logger:       logger,
	}
}

// AddSchedule creates a slot on the court starting at start. The slot always lasts slotDuration.
func (s *ScheduleService) AddSchedule(ctx context.Context, courtID int64, start time.Time) (*models.Schedule, error) {
	if start.IsZero() {
		return nil, domain.InvalidArgument("Start date time is required.")
	}

	if _, err := s.FindTennisCourt(ctx, courtID); err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		TennisCourtID:  courtID,
		StartDateTime:  start.UTC(),
		EndDateTime:    start.UTC().Add(s.slotDuration),
		ReservationIDs: []int64{},
	}
	if err := s.repo.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to add schedule: %w", err)
	}

	s.invalidate(ctx, courtID)
	s.logger.Info().Int64("schedule_id", schedule.ID).Int64("court_id", courtID).Time("start", schedule.StartDateTime).Msg("schedule added")
	return schedule, nil
}

func (s *ScheduleService) FindTennisCourt(ctx context.Context, courtID int64) (*models.TennisCourt, error) {
	court, err := s.repo.GetTennisCourt(ctx, courtID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tennis court %d: %w", courtID, err)
	}
	if court == nil {
		return nil, domain.NotFound(msgCourtNotFound)
	}
	return court, nil
}

func (s *ScheduleService) FindSchedule(ctx context.Context, scheduleID int64) (*models.Schedule, error) {
	schedule, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule %d: %w", scheduleID, err)
	}
	if schedule == nil {
		return nil, domain.NotFound(msgScheduleNotFound)
	}
	return schedule, nil
}

// FindSchedulesByDates returns slots starting in [start, end).
func (s *ScheduleService) FindSchedulesByDates(ctx context.Context, start, end time.Time) ([]*models.Schedule, error) {
	if !end.After(start) {
		return nil, domain.InvalidArgument("End date must be after start date.")
	}
	schedules, err := s.repo.GetSchedulesByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to find schedules by dates: %w", err)
	}
	return schedules, nil
}

// FindFreeSchedulesByCourtID returns the court's upcoming slots with no active reservation,
// earliest first. An unknown court yields an empty list.
func (s *ScheduleService) FindFreeSchedulesByCourtID(ctx context.Context, courtID int64) ([]*models.Schedule, error) {
	now := s.now()

	if s.cache != nil {
		cached, ok, err := s.cache.GetFreeSchedules(ctx, courtID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("court_id", courtID).Msg("free slots cache read failed")
		} else if ok {
			return upcoming(cached, now), nil
		}
	}

	schedules, err := s.repo.GetFreeSchedulesByCourt(ctx, courtID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find free schedules: %w", err)
	}
	if schedules == nil {
		schedules = []*models.Schedule{}
	}

	if s.cache != nil {
		if err := s.cache.SetFreeSchedules(ctx, courtID, schedules, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Int64("court_id", courtID).Msg("free slots cache write failed")
		}
	}
	return schedules, nil
}

// FindCourtWithFreeSchedules resolves the court first, so an unknown court is NotFound.
func (s *ScheduleService) FindCourtWithFreeSchedules(ctx context.Context, courtID int64) (*models.TennisCourt, []*models.Schedule, error) {
	court, err := s.FindTennisCourt(ctx, courtID)
	if err != nil {
		return nil, nil, err
	}
	schedules, err := s.FindFreeSchedulesByCourtID(ctx, courtID)
	if err != nil {
		return nil, nil, err
	}
	return court, schedules, nil
}

// CourtSchedules returns all slots of the court in [start, end), used by exports.
func (s *ScheduleService) CourtSchedules(ctx context.Context, courtID int64, start, end time.Time) (*models.TennisCourt, []*models.Schedule, error) {
	if !end.After(start) {
		return nil, nil, domain.InvalidArgument("End date must be after start date.")
	}
	court, err := s.FindTennisCourt(ctx, courtID)
	if err != nil {
		return nil, nil, err
	}
	schedules, err := s.repo.GetCourtSchedulesByDateRange(ctx, courtID, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get court schedules: %w", err)
	}
	return court, schedules, nil
}

func (s *ScheduleService) invalidate(ctx context.Context, courtID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, courtID); err != nil {
		s.logger.Warn().Err(err).Int64("court_id", courtID).Msg("free slots cache invalidation failed")
	}
}

// cached lists can outlive the start of their first slots
func upcoming(schedules []*models.Schedule, now time.Time) []*models.Schedule {
	out := make([]*models.Schedule, 0, len(schedules))
	for _, sc := range schedules {
		if !sc.StartDateTime.Before(now) {
			out = append(out, sc)
		}
	}
	return out
}
