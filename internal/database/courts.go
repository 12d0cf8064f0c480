package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tenniscourts/internal/models"
)

// CreateTennisCourt keeps a preset ID, which the seed loader relies on.
func (db *DB) CreateTennisCourt(ctx context.Context, court *models.TennisCourt) error {
	now := time.Now().UTC()
	if court.ID != 0 {
		_, err := db.ExecContext(ctx, `INSERT INTO tennis_courts (id, name, created_at) VALUES (?, ?, ?)`, court.ID, court.Name, now)
		if err != nil {
			return fmt.Errorf("failed to create tennis court: %w", err)
		}
		court.CreatedAt = now
		return nil
	}

	result, err := db.ExecContext(ctx, `INSERT INTO tennis_courts (name, created_at) VALUES (?, ?)`, court.Name, now)
	if err != nil {
		return fmt.Errorf("failed to create tennis court: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	court.ID = id
	court.CreatedAt = now
	return nil
}

func (db *DB) GetTennisCourt(ctx context.Context, id int64) (*models.TennisCourt, error) {
	var court models.TennisCourt
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM tennis_courts WHERE id = ?`, id).
		Scan(&court.ID, &court.Name, &court.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tennis court: %w", err)
	}
	return &court, nil
}

func (db *DB) ListTennisCourts(ctx context.Context) ([]*models.TennisCourt, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM tennis_courts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tennis courts: %w", err)
	}
	defer rows.Close()

	var courts []*models.TennisCourt
	for rows.Next() {
		var c models.TennisCourt
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tennis court: %w", err)
		}
		courts = append(courts, &c)
	}
	return courts, rows.Err()
}

func (db *DB) CreateGuest(ctx context.Context, guest *models.Guest) error {
	now := time.Now().UTC()
	if guest.ID != 0 {
		_, err := db.ExecContext(ctx, `INSERT INTO guests (id, name, created_at) VALUES (?, ?, ?)`, guest.ID, guest.Name, now)
		if err != nil {
			return fmt.Errorf("failed to create guest: %w", err)
		}
		guest.CreatedAt = now
		return nil
	}

	result, err := db.ExecContext(ctx, `INSERT INTO guests (name, created_at) VALUES (?, ?)`, guest.Name, now)
	if err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	guest.ID = id
	guest.CreatedAt = now
	return nil
}

func (db *DB) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	var guest models.Guest
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM guests WHERE id = ?`, id).
		Scan(&guest.ID, &guest.Name, &guest.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guest: %w", err)
	}
	return &guest, nil
}
