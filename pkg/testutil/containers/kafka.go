//go:build integration

package containers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer is a single-node KRaft broker.
type KafkaContainer struct {
	container *kafka.KafkaContainer
	// Brokers is the comma separated seed list, as the producer config expects.
	Brokers string
}

func startKafka(ctx context.Context) (*KafkaContainer, error) {
	container, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("legitify-it"),
	)
	if err != nil {
		return nil, fmt.Errorf("run kafka: %w", err)
	}
	brokers, err := container.Brokers(ctx)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("kafka brokers: %w", err)
	}
	return &KafkaContainer{container: container, Brokers: strings.Join(brokers, ",")}, nil
}

// EnsureTopics creates single-partition topics, ignoring ones that exist.
// One partition keeps every record of a topic in produce order.
func (k *KafkaContainer) EnsureTopics(ctx context.Context, topics ...string) error {
	client, err := kgo.NewClient(kgo.SeedBrokers(strings.Split(k.Brokers, ",")...))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := kadm.NewClient(client).CreateTopics(ctx, 1, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Reader consumes topics from their first offset without a consumer group.
type Reader struct {
	client *kgo.Client
}

// NewReader opens a reader that is closed when t finishes.
func (k *KafkaContainer) NewReader(t *testing.T, topics ...string) *Reader {
	t.Helper()
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(k.Brokers, ",")...),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		t.Fatalf("kafka reader: %v", err)
	}
	t.Cleanup(client.Close)
	return &Reader{client: client}
}

// Next polls until a record satisfies match or ctx ends.
func (r *Reader) Next(ctx context.Context, match func(*kgo.Record) bool) (*kgo.Record, error) {
	for {
		fetches := r.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("no matching record: %w", err)
		}
		if fetches.IsClientClosed() {
			return nil, kgo.ErrClientClosed
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			if rec := iter.Next(); match(rec) {
				return rec, nil
			}
		}
	}
}

// Headers flattens a record's headers; later duplicates win.
func Headers(rec *kgo.Record) map[string]string {
	out := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
