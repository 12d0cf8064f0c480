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

const reservationColumns = `id, guest_id, schedule_id, value, refund_value, status, created_at, updated_at, version`

// SaveReservation inserts a new reservation or updates an existing one.
// Updates are guarded by the version column.
func (db *DB) SaveReservation(ctx context.Context, r *models.Reservation) error {
	if r.ID == 0 {
		return db.createReservation(ctx, r)
	}
	return db.updateReservation(ctx, r)
}

func (db *DB) createReservation(ctx context.Context, r *models.Reservation) error {
	query := `INSERT INTO reservations (
				guest_id, schedule_id, value, refund_value, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		r.GuestID,
		r.ScheduleID,
		int64(r.Value),
		int64(r.RefundValue),
		string(r.Status),
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) updateReservation(ctx context.Context, r *models.Reservation) error {
	query := `UPDATE reservations
              SET guest_id = ?, schedule_id = ?, value = ?, refund_value = ?, status = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		r.GuestID,
		r.ScheduleID,
		int64(r.Value),
		int64(r.RefundValue),
		string(r.Status),
		now,
		r.ID,
		r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}

	r.UpdatedAt = now
	r.Version++
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// GetReservationsByIDs returns the reservations in the order of ids, skipping missing ones.
func (db *DB) GetReservationsByIDs(ctx context.Context, ids []int64) ([]*models.Reservation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*models.Reservation, len(ids))
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]*models.Reservation, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			result = append(result, r)
		}
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r           models.Reservation
		value       int64
		refundValue int64
		status      string
	)
	err := row.Scan(&r.ID, &r.GuestID, &r.ScheduleID, &value, &refundValue, &status, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	r.Value = models.Money(value)
	r.RefundValue = models.Money(refundValue)
	r.Status = models.ReservationStatus(status)
	if !r.Status.Valid() {
		return nil, fmt.Errorf("reservation %d: unknown status %q", r.ID, status)
	}
	return &r, nil
}
