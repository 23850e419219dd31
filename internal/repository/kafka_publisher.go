package repository

import (
	"context"

	"FieldPulse/internal/domain/models"
	"FieldPulse/internal/domain/repository"
	pkgkafka "FieldPulse/pkg/kafka"
)

// snapshotEnvelope wraps a snapshot with its kind so downstream consumers can
// route on a single topic.
type snapshotEnvelope struct {
	Kind    string      `json:"kind"`
	Symbol  string      `json:"symbol"`
	Payload interface{} `json:"payload"`
}

// KafkaPublisher implements Publisher on a Kafka topic. Messages are keyed by
// symbol so per-symbol ordering is preserved across the partitioned topic.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates a snapshot publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishState(ctx context.Context, v models.StateVector) error {
	return p.producer.Publish(ctx, p.topic, []byte(v.Symbol), snapshotEnvelope{
		Kind:    "state",
		Symbol:  v.Symbol,
		Payload: v,
	})
}

func (p *KafkaPublisher) PublishGeometry(ctx context.Context, g models.GeometrySnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(g.Symbol), snapshotEnvelope{
		Kind:    "geometry",
		Symbol:  g.Symbol,
		Payload: g,
	})
}

func (p *KafkaPublisher) PublishSwarm(ctx context.Context, s models.SwarmSnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(s.Symbol), snapshotEnvelope{
		Kind:    "swarm",
		Symbol:  s.Symbol,
		Payload: s,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher discards snapshots; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishState(context.Context, models.StateVector) error        { return nil }
func (NopPublisher) PublishGeometry(context.Context, models.GeometrySnapshot) error { return nil }
func (NopPublisher) PublishSwarm(context.Context, models.SwarmSnapshot) error       { return nil }
func (NopPublisher) Close() error                                                   { return nil }
