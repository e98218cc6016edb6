// Package nats carries pipeline events over NATS JetStream.
//
// Every event is published to "<prefix>.<eventType>" on a stream that captures
// "<prefix>.>", and consumed through a durable pull consumer with explicit acks.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tjfontaine/canvass-pipeline/internal/adapters/events"
	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
	"github.com/tjfontaine/canvass-pipeline/internal/core/ports"
)

const (
	fetchWait     = 5 * time.Second
	ackWait       = 60 * time.Second
	maxDeliver    = 3
	handleTimeout = 60 * time.Second
)

// Config selects the server, stream and durable consumer.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Durable       string
}

type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Bus publishes and consumes events on one JetStream stream.
type Bus struct {
	cfg    Config
	conn   *natsgo.Conn
	js     publisher
	stream jetstream.Stream
	logger *slog.Logger
}

var (
	_ ports.EventPublisher  = (*Bus)(nil)
	_ ports.EventSubscriber = (*Bus)(nil)
)

// Connect dials NATS and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Bus, error) {
	if cfg.Stream == "" || cfg.SubjectPrefix == "" {
		return nil, errors.New("nats: stream and subject prefix are required")
	}
	if cfg.URL == "" {
		cfg.URL = natsgo.DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := natsgo.Connect(cfg.URL, natsgo.Name("canvass-pipeline"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.SubjectPrefix + ".>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
	}

	return &Bus{cfg: cfg, conn: nc, js: js, stream: stream, logger: logger}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix string, t domain.EventType) string {
	return prefix + "." + strings.ReplaceAll(string(t), ".", "_")
}

// Publish writes the envelope. The message id de-duplicates redelivered publishes.
func (b *Bus) Publish(ctx context.Context, event domain.Event) error {
	data, err := events.Encode(event)
	if err != nil {
		return err
	}
	subject := Subject(b.cfg.SubjectPrefix, event.Type)
	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID+"/"+string(event.Type))); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Run pulls messages one at a time until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, handler ports.EventHandler) error {
	if b.cfg.Durable == "" {
		return errors.New("nats: durable consumer name is required")
	}

	consumer, err := b.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       b.cfg.Durable,
		FilterSubject: b.cfg.SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", b.cfg.Durable, err)
	}

	b.logger.Info("nats consumer started",
		slog.String("stream", b.cfg.Stream),
		slog.String("durable", b.cfg.Durable),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(fetchWait))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("nats fetch failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for msg := range msgs.Messages() {
			b.settle(msg, b.handle(ctx, handler, msg.Data()))
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, natsgo.ErrTimeout) {
			b.logger.Warn("message fetch error", slog.String("error", err.Error()))
		}
	}
}

type outcome int

const (
	ack outcome = iota
	nak
	term
)

func (b *Bus) handle(ctx context.Context, handler ports.EventHandler, data []byte) outcome {
	event, err := events.Decode(data)
	if err != nil {
		b.logger.Error("terminating undecodable message", slog.String("error", err.Error()))
		return term
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if _, err := handler.Handle(handleCtx, event); err != nil {
		b.logger.Error("event handling failed, requesting redelivery",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		return nak
	}
	return ack
}

func (b *Bus) settle(msg jetstream.Msg, o outcome) {
	var err error
	switch o {
	case ack:
		err = msg.Ack()
	case nak:
		err = msg.Nak()
	case term:
		err = msg.Term()
	}
	if err != nil {
		b.logger.Warn("failed to settle message", slog.String("error", err.Error()))
	}
}

// Close drains the connection.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
