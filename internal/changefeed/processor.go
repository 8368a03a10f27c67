package changefeed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-softwarelab/common/pkg/slogx"
	"github.com/segmentio/kafka-go"

	"example.com/trainingsync/internal/auth"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives change messages written by other devices of the current user.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls change messages from Kafka and dispatches the relevant ones to a Handler.
type Processor struct {
	reader   Reader
	handler  Handler
	deviceID string
	user     auth.UserFunc
	logger   *slog.Logger
}

// NewKafkaReader creates a consumer-group reader for the change topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:         brokers,
		GroupID:         groupID,
		Topic:           topic,
		MinBytes:        1,
		MaxBytes:        10e6,
		MaxWait:         time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
}

// NewProcessor constructs a Processor. Messages from deviceID itself and messages
// for other users are committed without being handled.
func NewProcessor(reader Reader, handler Handler, deviceID string, user auth.UserFunc, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		deviceID: deviceID,
		user:     user,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = slogx.ChildForComponent(p.logger, "changefeed-consumer")
	return p
}

// Run starts a blocking loop that processes messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.Warn("fetch failed", slogx.Error(err))
			continue
		}

		decoded, decodeErr := decodeMessage(msg)
		if decodeErr != nil {
			p.logger.Warn("decode failed",
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slogx.Error(decodeErr),
			)
			recordDecodeError(msg.Topic)
			// Malformed messages are committed so they cannot block the partition.
			p.commit(ctx, msg)
			continue
		}

		if !p.relevant(ctx, decoded) {
			recordIgnored(decoded)
			p.commit(ctx, msg)
			continue
		}

		if handleErr := p.handler.Handle(ctx, decoded); handleErr != nil {
			p.logger.Warn("handler failed",
				slog.String("event_type", decoded.EventType),
				slog.String("record_id", decoded.Event.RecordID),
				slogx.Error(handleErr),
			)
			recordHandlerError(decoded)
			continue
		}

		if p.commit(ctx, msg) {
			recordProcessed(decoded)
		}
	}
}

func (p *Processor) relevant(ctx context.Context, msg Message) bool {
	if msg.Event.DeviceID != "" && msg.Event.DeviceID == p.deviceID {
		return false
	}
	userID, err := auth.RequireUser(ctx, p.user)
	if err != nil {
		return false
	}
	return msg.Event.UserID == userID
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Warn("commit failed", slog.Int64("offset", msg.Offset), slogx.Error(err))
		return false
	}
	return true
}
