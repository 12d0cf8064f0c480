package kafka

import (
	"context"
	"errors"
	"testing"

	"tenniscourts/internal/config"
	"tenniscourts/internal/events"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_Handler(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "reservations", nil)

	bus := events.NewEventBus(nil)
	bus.SubscribeAll(p.Handler())

	require.NoError(t, bus.PublishJSON(events.EventReservationBooked, events.ReservationEventPayload{
		EventType:     events.EventReservationBooked,
		ReservationID: 42,
	}))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, events.EventReservationBooked, string(msg.Headers[0].Value))
	assert.Contains(t, string(msg.Value), `"reservation_id":42`)
}

func TestPublisher_NonReservationPayloadHasNoKey(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, "reservations", nil)

	require.NoError(t, p.Publish(context.Background(), &events.Event{Type: "ping", Payload: []byte(`"pong"`)}))
	require.Len(t, w.messages, 1)
	assert.Nil(t, w.messages[0].Key)
}

func TestPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newPublisher(w, "reservations", nil)

	err := p.Publish(context.Background(), &events.Event{Type: "x", Payload: []byte(`{}`)})
	assert.ErrorContains(t, err, "leader not available")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewPublisher_Validation(t *testing.T) {
	_, err := NewPublisher(config.KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)

	p, err := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}
