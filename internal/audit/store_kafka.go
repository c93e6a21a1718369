package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"legitify/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaStore publishes each event as JSON to the topic named by its type,
// keyed by credential id so a credential's events stay ordered.
type KafkaStore struct {
	producer    Producer
	topicPrefix string
}

func NewKafkaStore(p Producer, topicPrefix string) *KafkaStore {
	return &KafkaStore{producer: p, topicPrefix: topicPrefix}
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	msg := &producer.Message{
		Topic: s.topicPrefix + string(event.Type),
		Key:   []byte(event.CredentialID),
		Value: payload,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"event_id":   event.ID.String(),
		},
	}
	if event.RequestID != "" {
		msg.Headers["request_id"] = event.RequestID
	}
	return s.producer.Produce(ctx, msg)
}
