package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventReservationBooked      = "reservation_booked"
	EventReservationCancelled   = "reservation_cancelled"
	EventReservationRescheduled = "reservation_rescheduled"
)

// AllTypes lists the reservation event types in lifecycle order.
var AllTypes = []string{
	EventReservationBooked,
	EventReservationCancelled,
	EventReservationRescheduled,
}

// ReservationEventPayload is the reservation snapshot carried by every reservation event.
type ReservationEventPayload struct {
	EventType             string    `json:"event_type"`
	ReservationID         int64     `json:"reservation_id"`
	PreviousReservationID int64     `json:"previous_reservation_id,omitempty"`
	GuestID               int64     `json:"guest_id"`
	GuestName             string    `json:"guest_name,omitempty"`
	ScheduleID            int64     `json:"schedule_id"`
	TennisCourtID         int64     `json:"tennis_court_id"`
	StartDateTime         time.Time `json:"start_date_time"`
	Status                string    `json:"status"`
	Value                 string    `json:"value"`
	RefundValue           string    `json:"refund_value"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// Event is a published domain event with a JSON payload.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously in the publisher's goroutine.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// DecodeReservation unmarshals the reservation payload of the event.
func (e *Event) DecodeReservation() (*ReservationEventPayload, error) {
	var p ReservationEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
