package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tenniscourts/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// seedCourtAndGuest creates one court and one guest and returns their ids.
func seedCourtAndGuest(t *testing.T, db *DB) (courtID, guestID int64) {
	t.Helper()
	ctx := context.Background()

	court := &models.TennisCourt{Name: "Roland Garros - Court Philippe-Chatrier"}
	require.NoError(t, db.CreateTennisCourt(ctx, court))

	guest := &models.Guest{Name: "Rafael Nadal"}
	require.NoError(t, db.CreateGuest(ctx, guest))

	return court.ID, guest.ID
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()

	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestNewDB_TablesAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(dbPath, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestDB_Ready(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ready(context.Background()))
}

func TestCourtsAndGuests(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	courtID, guestID := seedCourtAndGuest(t, db)

	court, err := db.GetTennisCourt(ctx, courtID)
	require.NoError(t, err)
	require.NotNil(t, court)
	assert.Equal(t, "Roland Garros - Court Philippe-Chatrier", court.Name)

	guest, err := db.GetGuest(ctx, guestID)
	require.NoError(t, err)
	require.NotNil(t, guest)
	assert.Equal(t, "Rafael Nadal", guest.Name)

	missingCourt, err := db.GetTennisCourt(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missingCourt)

	missingGuest, err := db.GetGuest(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missingGuest)

	preset := &models.TennisCourt{ID: 42, Name: "Centre"}
	require.NoError(t, db.CreateTennisCourt(ctx, preset))
	courts, err := db.ListTennisCourts(ctx)
	require.NoError(t, err)
	require.Len(t, courts, 2)
	assert.Equal(t, int64(42), courts[1].ID)

	assert.Error(t, db.CreateTennisCourt(ctx, &models.TennisCourt{ID: 42, Name: "dup"}))
}

func TestReservations_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	courtID, guestID := seedCourtAndGuest(t, db)

	start := time.Date(2030, 1, 10, 20, 0, 0, 0, time.UTC)
	schedule := &models.Schedule{TennisCourtID: courtID, StartDateTime: start, EndDateTime: start.Add(time.Hour)}
	require.NoError(t, db.CreateSchedule(ctx, schedule))

	r := &models.Reservation{
		GuestID:    guestID,
		ScheduleID: schedule.ID,
		Value:      models.DefaultReservationValue,
		Status:     models.StatusReadyToPlay,
	}
	require.NoError(t, db.SaveReservation(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, int64(1), r.Version)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.Money(1000), got.Value)
	assert.Equal(t, models.StatusReadyToPlay, got.Status)

	got.Status = models.StatusCancelled
	got.ApplyRefund(got.Value)
	require.NoError(t, db.SaveReservation(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	reloaded, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, reloaded.Status)
	assert.Equal(t, models.Money(0), reloaded.Value)
	assert.Equal(t, models.Money(1000), reloaded.RefundValue)

	t.Run("StaleVersion", func(t *testing.T) {
		r.Status = models.StatusRescheduled // r still carries version 1
		err := db.SaveReservation(ctx, r)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("Missing", func(t *testing.T) {
		missing, err := db.GetReservation(ctx, 12345)
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		bad := &models.Reservation{GuestID: guestID, ScheduleID: schedule.ID, Value: 500, Status: models.StatusReadyToPlay}
		require.NoError(t, db.SaveReservation(ctx, bad))
		_, err := db.ExecContext(ctx, `UPDATE reservations SET status = 'BOOKED' WHERE id = ?`, bad.ID)
		require.NoError(t, err)

		_, err = db.GetReservation(ctx, bad.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown status "BOOKED"`)

		_, err = db.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, models.StatusCancelled, bad.ID)
		require.NoError(t, err)
	})

	t.Run("ByIDsKeepsOrder", func(t *testing.T) {
		second := &models.Reservation{GuestID: guestID, ScheduleID: schedule.ID, Value: 500, Status: models.StatusReadyToPlay}
		require.NoError(t, db.SaveReservation(ctx, second))

		list, err := db.GetReservationsByIDs(ctx, []int64{second.ID, 777, r.ID})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, r.ID, list[1].ID)

		empty, err := db.GetReservationsByIDs(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, empty)
	})
}
