package database

import (
	"context"
	"testing"
	"time"

	"tenniscourts/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createSchedule(t *testing.T, db *DB, courtID int64, start time.Time) *models.Schedule {
	t.Helper()
	s := &models.Schedule{TennisCourtID: courtID, StartDateTime: start, EndDateTime: start.Add(time.Hour)}
	require.NoError(t, db.CreateSchedule(context.Background(), s))
	return s
}

func TestSchedules_SaveKeepsReservationOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	courtID, guestID := seedCourtAndGuest(t, db)

	s := createSchedule(t, db, courtID, time.Date(2030, 3, 1, 10, 0, 0, 0, time.UTC))

	var ids []int64
	for i := 0; i < 3; i++ {
		r := &models.Reservation{GuestID: guestID, ScheduleID: s.ID, Value: 1000, Status: models.StatusCancelled}
		require.NoError(t, db.SaveReservation(ctx, r))
		ids = append(ids, r.ID)
	}

	s.AddReservation(ids[2])
	s.AddReservation(ids[0])
	s.AddReservation(ids[1])
	require.NoError(t, db.SaveSchedule(ctx, s))

	got, err := db.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []int64{ids[2], ids[0], ids[1]}, got.ReservationIDs)
	assert.True(t, got.StartDateTime.Equal(s.StartDateTime))
	assert.True(t, got.EndDateTime.Equal(s.StartDateTime.Add(time.Hour)))

	missing, err := db.GetSchedule(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	err = db.SaveSchedule(ctx, &models.Schedule{ID: 999})
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestSchedules_FreeByCourt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	courtID, guestID := seedCourtAndGuest(t, db)

	other := &models.TennisCourt{Name: "Court 2"}
	require.NoError(t, db.CreateTennisCourt(ctx, other))

	now := time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)
	past := createSchedule(t, db, courtID, now.Add(-2*time.Hour))
	later := createSchedule(t, db, courtID, now.Add(48*time.Hour))
	booked := createSchedule(t, db, courtID, now.Add(24*time.Hour))
	cancelled := createSchedule(t, db, courtID, now.Add(26*time.Hour))
	soon := createSchedule(t, db, courtID, now.Add(2*time.Hour))
	createSchedule(t, db, other.ID, now.Add(3*time.Hour))

	active := &models.Reservation{GuestID: guestID, ScheduleID: booked.ID, Value: 1000, Status: models.StatusReadyToPlay}
	require.NoError(t, db.SaveReservation(ctx, active))
	booked.AddReservation(active.ID)
	require.NoError(t, db.SaveSchedule(ctx, booked))

	gone := &models.Reservation{GuestID: guestID, ScheduleID: cancelled.ID, Value: 0, RefundValue: 1000, Status: models.StatusCancelled}
	require.NoError(t, db.SaveReservation(ctx, gone))
	cancelled.AddReservation(gone.ID)
	require.NoError(t, db.SaveSchedule(ctx, cancelled))

	free, err := db.GetFreeSchedulesByCourt(ctx, courtID, now)
	require.NoError(t, err)

	var got []int64
	for _, s := range free {
		got = append(got, s.ID)
	}
	assert.Equal(t, []int64{soon.ID, cancelled.ID, later.ID}, got)
	assert.NotContains(t, got, past.ID)
	assert.Equal(t, []int64{gone.ID}, free[1].ReservationIDs)

	none, err := db.GetFreeSchedulesByCourt(ctx, 999, now)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchedules_ByDateRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	courtID, _ := seedCourtAndGuest(t, db)

	other := &models.TennisCourt{Name: "Court 2"}
	require.NoError(t, db.CreateTennisCourt(ctx, other))

	day := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	a := createSchedule(t, db, courtID, day.Add(9*time.Hour))
	b := createSchedule(t, db, other.ID, day.Add(8*time.Hour))
	createSchedule(t, db, courtID, day.Add(24*time.Hour)) // end is exclusive

	all, err := db.GetSchedulesByDateRange(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID)
	assert.Equal(t, a.ID, all[1].ID)

	court, err := db.GetCourtSchedulesByDateRange(ctx, courtID, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, court, 1)
	assert.Equal(t, a.ID, court[0].ID)
	assert.Empty(t, court[0].ReservationIDs)
}
