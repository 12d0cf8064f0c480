package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tenniscourts/internal/config"
	"tenniscourts/internal/events"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards reservation events to a Kafka topic, keyed by reservation id
// so that all events of one reservation land in the same partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zerolog.Logger
}

func NewPublisher(cfg config.KafkaConfig, logger *zerolog.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka brokers and topic are required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(writer, cfg.Topic, logger), nil
}

func newPublisher(writer messageWriter, topic string, logger *zerolog.Logger) *Publisher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Publisher{writer: writer, topic: topic, logger: logger}
}

// Publish writes one event. Reservation payloads are keyed by reservation id.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	msg := kafka.Message{
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if reservation, err := event.DecodeReservation(); err == nil && reservation.ReservationID != 0 {
		msg.Key = []byte(strconv.FormatInt(reservation.ReservationID, 10))
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}
	p.logger.Debug().Str("topic", p.topic).Str("event_type", event.Type).Bytes("key", msg.Key).Msg("event published to kafka")
	return nil
}

// Handler adapts Publish to an event bus subscriber.
func (p *Publisher) Handler() events.EventHandler {
	return func(event *events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		return p.Publish(ctx, event)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
