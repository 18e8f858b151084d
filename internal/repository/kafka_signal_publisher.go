package repository

import (
	"context"
	"time"

	"SigPulse/internal/domain/models"
	"SigPulse/internal/domain/repository"
	pkgkafka "SigPulse/pkg/kafka"
)

// KafkaSignalPublisher emits signal lifecycle events to the signals topic,
// keyed by symbol so one symbol's events stay ordered on a partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaSignalPublisher(producer *pkgkafka.Producer, topic string) repository.SignalPublisher {
	return &KafkaSignalPublisher{producer: producer, topic: topic}
}

func (p *KafkaSignalPublisher) PublishSignal(ctx context.Context, event string, sig *models.Signal) error {
	if sig == nil {
		return nil
	}
	return p.producer.Publish(ctx, p.topic, []byte(sig.Symbol), map[string]interface{}{
		"event":        event,
		"ts":           time.Now().Unix(),
		"symbol":       sig.Symbol,
		"level":        sig.Level.String(),
		"direction":    string(sig.Direction),
		"pattern":      sig.Pattern,
		"price":        sig.Price,
		"change_pct":   sig.ChangePct,
		"volume_ratio": sig.VolumeRatio,
		"freshness":    sig.Freshness,
	})
}

func (p *KafkaSignalPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
