//go:build integration

package producer_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"legitify/internal/platform/config"
	"legitify/internal/platform/kafka/producer"
	"legitify/pkg/testutil/containers"
)

type ProducerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestProducerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ProducerIntegrationSuite))
}

func (s *ProducerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	prod, err := producer.New(config.KafkaConfig{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ProducerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		_ = s.producer.Close()
	}
}

func (s *ProducerIntegrationSuite) topic(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

func (s *ProducerIntegrationSuite) read(topic, key string) *kgo.Record {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	rec, err := s.kafka.NewReader(s.T(), topic).Next(ctx, func(r *kgo.Record) bool {
		return string(r.Key) == key
	})
	s.Require().NoError(err)
	return rec
}

// Produce returns only after the broker acknowledged the record, so it is
// readable straight away.
func (s *ProducerIntegrationSuite) TestProduceIsAcknowledged() {
	topic := s.topic("credential.issued")
	s.Require().NoError(s.kafka.EnsureTopics(context.Background(), topic))

	s.Require().NoError(s.producer.Produce(context.Background(), &producer.Message{
		Topic: topic,
		Key:   []byte("cred-1"),
		Value: []byte(`{"outcome":"issued"}`),
	}))

	s.Equal(`{"outcome":"issued"}`, string(s.read(topic, "cred-1").Value))
}

func (s *ProducerIntegrationSuite) TestProducePreservesHeaders() {
	topic := s.topic("credential.revoked")
	s.Require().NoError(s.kafka.EnsureTopics(context.Background(), topic))

	s.Require().NoError(s.producer.Produce(context.Background(), &producer.Message{
		Topic: topic,
		Key:   []byte("cred-2"),
		Value: []byte("{}"),
		Headers: map[string]string{
			"event_type": "credential.revoked",
			"request_id": "req-9",
		},
	}))

	headers := containers.Headers(s.read(topic, "cred-2"))
	s.Equal("credential.revoked", headers["event_type"])
	s.Equal("req-9", headers["request_id"])
}

func (s *ProducerIntegrationSuite) TestProduceCreatesMissingTopic() {
	topic := s.topic("credential.verified")

	s.Require().NoError(s.producer.Produce(context.Background(), &producer.Message{
		Topic: topic,
		Key:   []byte("cred-3"),
		Value: []byte("{}"),
	}))

	s.NotNil(s.read(topic, "cred-3"))
}

func (s *ProducerIntegrationSuite) TestProducerHealth() {
	s.NoError(s.producer.Health(context.Background()))
}

func (s *ProducerIntegrationSuite) TestProduceAfterClose() {
	prod, err := producer.New(config.KafkaConfig{Brokers: s.kafka.Brokers, Acks: "all"}, nil)
	s.Require().NoError(err)
	s.Require().NoError(prod.Close())
	s.Require().NoError(prod.Close())

	err = prod.Produce(context.Background(), &producer.Message{Topic: "closed", Value: []byte("x")})
	s.ErrorIs(err, producer.ErrClosed)

	s.ErrorIs(prod.Health(context.Background()), producer.ErrClosed)
}
