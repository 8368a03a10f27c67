// Package changefeed announces remote writes to a Kafka topic so other devices of the
// same user can pull promptly instead of waiting for their next scheduled pass.
package changefeed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/syncer"
)

// Header keys set on every change message.
const (
	HeaderEventType = "event_type"
	HeaderDeviceID  = "device_id"
	HeaderUserID    = "user_id"
)

// Event types.
const (
	EventRecordUpserted = "training.record.upserted"
	EventRecordDeleted  = "training.record.deleted"
)

// Event is the JSON payload of a change message.
type Event struct {
	Op           syncer.ChangeOp     `json:"op"`
	RecordID     string              `json:"recordId"`
	ActivityType domain.ActivityType `json:"activityType,omitempty"`
	Collection   string              `json:"collection,omitempty"`
	UserID       string              `json:"userId"`
	DeviceID     string              `json:"deviceId"`
	OccurredAt   time.Time           `json:"occurredAt"`
}

// Message is a decoded change message together with its position on the topic.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	EventType string
	Event     Event
}

func eventType(op syncer.ChangeOp) string {
	if op == syncer.ChangeDeleted {
		return EventRecordDeleted
	}
	return EventRecordUpserted
}

func encodeMessage(event Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode change event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(eventType(event.Op))},
			{Key: HeaderDeviceID, Value: []byte(event.DeviceID)},
			{Key: HeaderUserID, Value: []byte(event.UserID)},
		},
	}, nil
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.New("empty payload")
	}
	eventType, ok := headerValue(msg, HeaderEventType)
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}

	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return Message{}, fmt.Errorf("decode change event: %w", err)
	}
	if event.UserID == "" {
		return Message{}, errors.New("change event without user")
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		EventType: string(eventType),
		Event:     event,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
