package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tenniscourts/internal/models"
)

const scheduleColumns = `s.id, s.tennis_court_id, s.start_date_time, s.end_date_time, s.created_at`

func (db *DB) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO schedules (tennis_court_id, start_date_time, end_date_time, created_at) VALUES (?, ?, ?, ?)`,
		schedule.TennisCourtID,
		schedule.StartDateTime.UTC(),
		schedule.EndDateTime.UTC(),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	schedule.ID = id
	schedule.CreatedAt = now

	if len(schedule.ReservationIDs) > 0 {
		return db.SaveSchedule(ctx, schedule)
	}
	return nil
}

// SaveSchedule replaces the stored reservation list of the schedule, keeping order.
func (db *DB) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedules WHERE id = ?`, schedule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check schedule: %w", err)
	}
	if exists == 0 {
		return ErrScheduleNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_reservations WHERE schedule_id = ?`, schedule.ID); err != nil {
		return fmt.Errorf("failed to clear schedule reservations: %w", err)
	}

	for pos, reservationID := range schedule.ReservationIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schedule_reservations (schedule_id, reservation_id, position) VALUES (?, ?, ?)`,
			schedule.ID, reservationID, pos,
		)
		if err != nil {
			return fmt.Errorf("failed to link reservation %d: %w", reservationID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

func (db *DB) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	var s models.Schedule
	err := db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = ?`, id).
		Scan(&s.ID, &s.TennisCourtID, &s.StartDateTime, &s.EndDateTime, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	schedules := []*models.Schedule{&s}
	if err := db.loadReservationIDs(ctx, schedules); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetFreeSchedulesByCourt returns slots of the court starting at or after from
// that hold no READY_TO_PLAY reservation, earliest first.
func (db *DB) GetFreeSchedulesByCourt(ctx context.Context, courtID int64, from time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules s
              WHERE s.tennis_court_id = ? AND s.start_date_time >= ?
              AND NOT EXISTS (
                  SELECT 1 FROM schedule_reservations sr
                  JOIN reservations r ON r.id = sr.reservation_id
                  WHERE sr.schedule_id = s.id AND r.status = ?
              )
              ORDER BY s.start_date_time ASC, s.id ASC`
	return db.querySchedules(ctx, query, courtID, from.UTC(), models.StatusReadyToPlay)
}

// GetSchedulesByDateRange returns slots with start in [start, end), earliest first.
func (db *DB) GetSchedulesByDateRange(ctx context.Context, start, end time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules s
              WHERE s.start_date_time >= ? AND s.start_date_time < ?
              ORDER BY s.start_date_time ASC, s.id ASC`
	return db.querySchedules(ctx, query, start.UTC(), end.UTC())
}

func (db *DB) GetCourtSchedulesByDateRange(ctx context.Context, courtID int64, start, end time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules s
              WHERE s.tennis_court_id = ? AND s.start_date_time >= ? AND s.start_date_time < ?
              ORDER BY s.start_date_time ASC, s.id ASC`
	return db.querySchedules(ctx, query, courtID, start.UTC(), end.UTC())
}

func (db *DB) querySchedules(ctx context.Context, query string, args ...interface{}) ([]*models.Schedule, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(&s.ID, &s.TennisCourtID, &s.StartDateTime, &s.EndDateTime, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	rows.Close()

	if err := db.loadReservationIDs(ctx, schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (db *DB) loadReservationIDs(ctx context.Context, schedules []*models.Schedule) error {
	if len(schedules) == 0 {
		return nil
	}

	byID := make(map[int64]*models.Schedule, len(schedules))
	placeholders := make([]string, 0, len(schedules))
	args := make([]interface{}, 0, len(schedules))
	for _, s := range schedules {
		byID[s.ID] = s
		s.ReservationIDs = []int64{}
		placeholders = append(placeholders, "?")
		args = append(args, s.ID)
	}

	query := `SELECT schedule_id, reservation_id FROM schedule_reservations
              WHERE schedule_id IN (` + strings.Join(placeholders, ",") + `)
              ORDER BY schedule_id, position`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load schedule reservations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scheduleID, reservationID int64
		if err := rows.Scan(&scheduleID, &reservationID); err != nil {
			return fmt.Errorf("failed to scan schedule reservation: %w", err)
		}
		if s, ok := byID[scheduleID]; ok {
			s.ReservationIDs = append(s.ReservationIDs, reservationID)
		}
	}
	return rows.Err()
}
