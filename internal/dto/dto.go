// Package dto holds the transport shapes of the HTTP and gRPC APIs and their conversions.
package dto

import (
	"time"

	"tenniscourts/internal/models"
)

type TennisCourtDTO struct {
	ID                   int64          `json:"id"`
	Name                 string         `json:"name"`
	TennisCourtSchedules []*ScheduleDTO `json:"tennis_court_schedules"`
}

type GuestDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ScheduleDTO struct {
	ID             int64     `json:"id"`
	TennisCourtID  int64     `json:"tennis_court_id"`
	StartDateTime  time.Time `json:"start_date_time"`
	EndDateTime    time.Time `json:"end_date_time"`
	ReservationIDs []int64   `json:"reservation_ids"`
}

type ReservationDTO struct {
	ID                  int64                    `json:"id"`
	GuestID             int64                    `json:"guest_id"`
	ScheduleID          int64                    `json:"schedule_id"`
	Schedule            *ScheduleDTO             `json:"schedule,omitempty"`
	Value               models.Money             `json:"value"`
	RefundValue         models.Money             `json:"refund_value"`
	ReservationStatus   models.ReservationStatus `json:"reservation_status"`
	PreviousReservation *ReservationDTO          `json:"previous_reservation,omitempty"`
}

type CreateReservationRequestDTO struct {
	GuestID    int64 `json:"guest_id"`
	ScheduleID int64 `json:"schedule_id"`
}

type CreateScheduleRequestDTO struct {
	TennisCourtID int64     `json:"tennis_court_id"`
	StartDateTime time.Time `json:"start_date_time"`
}

func FromTennisCourt(c *models.TennisCourt) *TennisCourtDTO {
	if c == nil {
		return nil
	}
	return &TennisCourtDTO{ID: c.ID, Name: c.Name}
}

func ToTennisCourt(d *TennisCourtDTO) *models.TennisCourt {
	if d == nil {
		return nil
	}
	return &models.TennisCourt{ID: d.ID, Name: d.Name}
}

// WithSchedules attaches the court's slots; nil becomes an empty list.
func WithSchedules(c *models.TennisCourt, schedules []*models.Schedule) *TennisCourtDTO {
	d := FromTennisCourt(c)
	if d == nil {
		return nil
	}
	d.TennisCourtSchedules = FromSchedules(schedules)
	return d
}

func FromGuest(g *models.Guest) *GuestDTO {
	if g == nil {
		return nil
	}
	return &GuestDTO{ID: g.ID, Name: g.Name}
}

func ToGuest(d *GuestDTO) *models.Guest {
	if d == nil {
		return nil
	}
	return &models.Guest{ID: d.ID, Name: d.Name}
}

func FromSchedule(s *models.Schedule) *ScheduleDTO {
	if s == nil {
		return nil
	}
	ids := append([]int64{}, s.ReservationIDs...)
	return &ScheduleDTO{
		ID:             s.ID,
		TennisCourtID:  s.TennisCourtID,
		StartDateTime:  s.StartDateTime,
		EndDateTime:    s.EndDateTime,
		ReservationIDs: ids,
	}
}

func ToSchedule(d *ScheduleDTO) *models.Schedule {
	if d == nil {
		return nil
	}
	return &models.Schedule{
		ID:             d.ID,
		TennisCourtID:  d.TennisCourtID,
		StartDateTime:  d.StartDateTime,
		EndDateTime:    d.EndDateTime,
		ReservationIDs: append([]int64{}, d.ReservationIDs...),
	}
}

func FromSchedules(in []*models.Schedule) []*ScheduleDTO {
	out := make([]*ScheduleDTO, 0, len(in))
	for _, s := range in {
		out = append(out, FromSchedule(s))
	}
	return out
}

// FromReservation converts the reservation and its previous-reservation chain.
// Each reservation in the chain embeds the schedule from schedules with its ScheduleID;
// nil entries and unmatched reservations are left without an embedded schedule.
func FromReservation(r *models.Reservation, schedules ...*models.Schedule) *ReservationDTO {
	if r == nil {
		return nil
	}
	d := &ReservationDTO{
		ID:                r.ID,
		GuestID:           r.GuestID,
		ScheduleID:        r.ScheduleID,
		Value:             r.Value,
		RefundValue:       r.RefundValue,
		ReservationStatus: r.Status,
	}
	for _, schedule := range schedules {
		if schedule != nil && schedule.ID == r.ScheduleID {
			d.Schedule = FromSchedule(schedule)
			break
		}
	}
	if r.PreviousReservation != nil {
		d.PreviousReservation = FromReservation(r.PreviousReservation, schedules...)
	}
	return d
}

func ToReservation(d *ReservationDTO) *models.Reservation {
	if d == nil {
		return nil
	}
	r := &models.Reservation{
		ID:          d.ID,
		GuestID:     d.GuestID,
		ScheduleID:  d.ScheduleID,
		Value:       d.Value,
		RefundValue: d.RefundValue,
		Status:      d.ReservationStatus,
	}
	if r.ScheduleID == 0 && d.Schedule != nil {
		r.ScheduleID = d.Schedule.ID
	}
	if d.PreviousReservation != nil {
		r.PreviousReservation = ToReservation(d.PreviousReservation)
	}
	return r
}
