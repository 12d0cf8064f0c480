package models

import "time"

type Reservation struct {
	ID          int64             `json:"id"`
	GuestID     int64             `json:"guest_id"`
	ScheduleID  int64             `json:"schedule_id"`
	Value       Money             `json:"value"`
	RefundValue Money             `json:"refund_value"`
	Status      ReservationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int64             `json:"version"`

	// PreviousReservation is set only on the result of a reschedule. Never persisted.
	PreviousReservation *Reservation `json:"previous_reservation,omitempty"`
}

// ApplyRefund moves refund out of the current value.
func (r *Reservation) ApplyRefund(refund Money) {
	r.Value -= refund
	r.RefundValue = refund
}
