// Package kafka carries pipeline events over Kafka topics.
//
// Events are keyed by conversation id so every event of one conversation
// lands on the same partition and is consumed in publish order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/tjfontaine/canvass-pipeline/internal/adapters/events"
	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

const (
	headerEventType = "event-type"
	writeTimeout    = 5 * time.Second
	handleTimeout   = 60 * time.Second
	readRetryDelay  = time.Second
)

// Config selects brokers, topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher implements ports.EventPublisher with a kafka-go Writer.
type Publisher struct {
	writer messageWriter
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a Kafka publisher. Call Close when shutting down.
func NewPublisher(cfg Config) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: writer}, nil
}

// Publish writes the event envelope, keyed by conversation id.
// The write is bounded so a slow broker does not block callers indefinitely.
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", event.ID, err)
	}
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func toMessage(event domain.Event) (kafkago.Message, error) {
	value, err := events.Encode(event)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(conversationKey(event)),
		Value: value,
		Headers: []kafkago.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
		Time: event.Time,
	}, nil
}

func conversationKey(event domain.Event) string {
	const prefix = "chatbot/"
	if len(event.Subject) > len(prefix) && event.Subject[:len(prefix)] == prefix {
		return event.Subject[len(prefix):]
	}
	return event.Subject
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Subscriber consumes the topic as a member of a consumer group.
type Subscriber struct {
	reader messageReader
	logger *slog.Logger
}

var _ ports.EventSubscriber = (*Subscriber)(nil)

// NewSubscriber creates a consumer group reader for the topic.
func NewSubscriber(cfg Config, logger *slog.Logger) (*Subscriber, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka: group id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	return &Subscriber{reader: reader, logger: logger}, nil
}

// Run fetches, handles and commits messages until ctx is cancelled.
// Handler failures are logged and the message is committed anyway, so one
// poison event cannot stall its partition.
func (s *Subscriber) Run(ctx context.Context, handler ports.EventHandler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("kafka read error", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readRetryDelay):
			}
			continue
		}

		s.handle(ctx, handler, msg)

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("kafka commit failed",
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, handler ports.EventHandler, msg kafkago.Message) {
	event, err := events.Decode(msg.Value)
	if err != nil {
		s.logger.Error("dropping undecodable kafka message",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	res, err := handler.Handle(handleCtx, event)
	if err != nil {
		s.logger.Error("event handling failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("event consumed",
		slog.String("event_id", event.ID),
		slog.String("result", res.Message),
	)
}

// Close closes the reader and leaves the consumer group.
func (s *Subscriber) Close() error {
	return s.reader.Close()
}
