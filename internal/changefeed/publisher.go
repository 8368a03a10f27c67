package changefeed

import (
	"context"
	"log/slog"

	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/segmentio/kafka-go"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/syncer"
)

// Writer is the part of kafka.Writer the Publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublisherOption configures optional behaviour for the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger overrides the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// Publisher turns successful remote writes into change messages. It implements syncer.Notifier.
type Publisher struct {
	writer   Writer
	deviceID string
	user     auth.UserFunc
	logger   *slog.Logger
}

var _ syncer.Notifier = (*Publisher)(nil)

// NewKafkaPublisher creates a Publisher writing synchronously to topic. Messages are keyed by
// user so one user's changes stay ordered within a partition.
func NewKafkaPublisher(brokers []string, topic, deviceID string, user auth.UserFunc, opts ...PublisherOption) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	return NewPublisher(writer, deviceID, user, opts...)
}

// NewPublisher creates a Publisher on top of an existing writer.
func NewPublisher(writer Writer, deviceID string, user auth.UserFunc, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		writer:   writer,
		deviceID: deviceID,
		user:     user,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = slogx.ChildForComponent(p.logger, "changefeed-publisher")
	return p
}

// Notify publishes change.
func (p *Publisher) Notify(ctx context.Context, change syncer.Change) error {
	userID, err := auth.RequireUser(ctx, p.user)
	if err != nil {
		return err
	}

	msg, err := encodeMessage(Event{
		Op:           change.Op,
		RecordID:     change.RecordID,
		ActivityType: change.ActivityType,
		Collection:   change.Collection,
		UserID:       userID,
		DeviceID:     p.deviceID,
		OccurredAt:   change.OccurredAt,
	})
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		recordPublishError()
		return err
	}
	recordPublished(eventType(change.Op))
	p.logger.Debug("change published", slog.String("record_id", change.RecordID), slog.String("op", string(change.Op)))
	return nil
}

// Close releases the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
