package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legitify/internal/platform/config"
)

func TestNewRequiresBrokers(t *testing.T) {
	for _, brokers := range []string{"", " , "} {
		_, err := New(config.KafkaConfig{Brokers: brokers}, nil)
		assert.ErrorIs(t, err, errNoBrokers, "brokers %q", brokers)
	}
}

func TestNewRejectsUnknownAcks(t *testing.T) {
	_, err := New(config.KafkaConfig{Brokers: "localhost:9092", Acks: "leader"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported kafka acks "leader"`)
}

func TestSplitBrokersTrimsEntries(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, splitBrokers(" kafka-1:9092, ,kafka-2:9092 "))
}

func TestToRecordOrdersHeaders(t *testing.T) {
	rec := toRecord(&Message{
		Topic: "credential.accepted",
		Key:   []byte("cred-1"),
		Value: []byte(`{}`),
		Headers: map[string]string{
			"request_id": "req-1",
			"event_id":   "evt-1",
			"event_type": "credential.accepted",
		},
	})

	require.Len(t, rec.Headers, 3)
	assert.Equal(t, "event_id", rec.Headers[0].Key)
	assert.Equal(t, "event_type", rec.Headers[1].Key)
	assert.Equal(t, "request_id", rec.Headers[2].Key)
	assert.Equal(t, "req-1", string(rec.Headers[2].Value))
	assert.Equal(t, "cred-1", string(rec.Key))
}

func TestClosedProducer(t *testing.T) {
	p, err := New(config.KafkaConfig{Brokers: "127.0.0.1:1", Acks: "1"}, nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Produce(context.Background(), &Message{Topic: "t"}), ErrClosed)
	assert.ErrorIs(t, p.Health(context.Background()), ErrClosed)
}
