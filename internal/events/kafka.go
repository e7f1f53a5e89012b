package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spigell/hr-intake/internal/profile"
)

const (
	DefaultTopic        = "profile.events"
	TypeProfileExported = "profile.exported"
)

// ProfileExported is published after a profile row reached the spreadsheet.
type ProfileExported struct {
	Type       string                    `json:"type"`
	SessionID  string                    `json:"session_id"`
	ProfileID  string                    `json:"profile_id"`
	ExportedAt time.Time                 `json:"exported_at"`
	Profile    *profile.CandidateProfile `json:"profile"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes intake events to one Kafka topic.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return newPublisher(writer, topic, logger), nil
}

func newPublisher(writer messageWriter, topic string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: writer, topic: topic, logger: logger}
}

// PublishProfileExported keys the message by session so events of one session stay ordered.
func (p *Publisher) PublishProfileExported(ctx context.Context, event ProfileExported) error {
	event.Type = TypeProfileExported
	if event.ExportedAt.IsZero() {
		event.ExportedAt = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.Type, p.topic, err)
	}

	p.logger.Debug("event published",
		zap.String("topic", p.topic),
		zap.String("type", event.Type),
		zap.String("profile_id", event.ProfileID),
	)
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
