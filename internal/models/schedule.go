package models

import "time"

// Schedule is a one-hour slot on a tennis court.
// ReservationIDs keeps booking order and is the only link from a slot to its reservations.
type Schedule struct {
	ID             int64     `json:"id"`
	TennisCourtID  int64     `json:"tennis_court_id"`
	StartDateTime  time.Time `json:"start_date_time"`
	EndDateTime    time.Time `json:"end_date_time"`
	ReservationIDs []int64   `json:"reservation_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// AddReservation appends a reservation id, keeping insertion order.
func (s *Schedule) AddReservation(id int64) {
	s.ReservationIDs = append(s.ReservationIDs, id)
}

// HasStartedBy reports whether the slot starts at or before now.
func (s *Schedule) HasStartedBy(now time.Time) bool {
	return !s.StartDateTime.After(now)
}
