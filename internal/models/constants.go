package models

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusReadyToPlay ReservationStatus = "READY_TO_PLAY"
	StatusCancelled   ReservationStatus = "CANCELLED"
	StatusRescheduled ReservationStatus = "RESCHEDULED"
	// StatusPaid is accepted on read but nothing in the service produces it.
	StatusPaid ReservationStatus = "PAID"
)

// Valid reports whether s is one of the known statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case StatusReadyToPlay, StatusCancelled, StatusRescheduled, StatusPaid:
		return true
	}
	return false
}

const (
	// DefaultReservationValue цена бронирования по умолчанию, 10 единиц
	DefaultReservationValue Money = 10 * MinorUnitsPerUnit

	// DefaultSlotDuration длительность одного слота на корте
	DefaultSlotDuration = time.Hour

	// DefaultRefundCutoff минимальный запас времени до начала для полного возврата
	DefaultRefundCutoff = 24 * time.Hour

	// FreeSlotsCacheTTL время жизни кэша свободных слотов
	FreeSlotsCacheTTL = 5 * time.Minute

	// WorkerQueueSize размер локальной очереди воркера
	WorkerQueueSize = 1000
)
