package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink produces audit events as JSON records keyed by game id, so one
// game's events stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// KafkaConfig configures the producer.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// NewKafkaSink connects to the brokers and makes sure the topic exists.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := ensureTopic(ctx, kadm.NewClient(client), cfg); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaSink{client: client, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, adm *kadm.Client, cfg KafkaConfig) error {
	partitions := cfg.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := cfg.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, cfg.Topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.wire())
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.GameID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
