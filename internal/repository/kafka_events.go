package repository

import (
	"context"
	"time"

	"PerpScope/internal/domain/models"
	pkgkafka "PerpScope/pkg/kafka"
	applogger "PerpScope/pkg/logger"
)

// KafkaEvents publishes refresh results to Kafka for downstream alerting and
// journaling. Publishing is best-effort: errors are logged and returned but a
// caller never fails a refresh because of them.
type KafkaEvents struct {
	producer      *pkgkafka.Producer
	snapshotTopic string
	signalTopic   string
	l             *applogger.Logger
}

func NewKafkaEvents(producer *pkgkafka.Producer, snapshotTopic, signalTopic string, l *applogger.Logger) *KafkaEvents {
	return &KafkaEvents{
		producer:      producer,
		snapshotTopic: snapshotTopic,
		signalTopic:   signalTopic,
		l:             l,
	}
}

// snapshotEvent is the compact wire form of a published snapshot: counts and
// the actionable set, not the full per-market payload.
type snapshotEvent struct {
	TakenAt    time.Time      `json:"taken_at"`
	Markets    int            `json:"markets"`
	BandCounts map[string]int `json:"band_counts"`
	TradeReady []string       `json:"trade_ready,omitempty"`
	Watch      []string       `json:"watch,omitempty"`
	Signals    int            `json:"signals"`
}

// PublishSnapshot emits one summary event per refresh cycle.
func (k *KafkaEvents) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	ev := snapshotEvent{
		TakenAt:    snap.TakenAt(),
		Markets:    snap.Len(),
		BandCounts: make(map[string]int, 3),
		Signals:    len(snap.Signals()),
	}
	for band, n := range snap.BandCounts() {
		ev.BandCounts[string(band)] = n
	}
	for _, e := range snap.Entries() {
		switch e.Band {
		case models.BandTradeReady:
			ev.TradeReady = append(ev.TradeReady, e.Symbol)
		case models.BandWatch:
			ev.Watch = append(ev.Watch, e.Symbol)
		}
	}

	key := []byte(snap.TakenAt().UTC().Format(time.RFC3339))
	if err := k.producer.Publish(ctx, k.snapshotTopic, key, ev); err != nil {
		k.l.Error("publish snapshot event failed",
			applogger.String("topic", k.snapshotTopic),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

// PublishSignals emits one message per signal, keyed by symbol so a consumer
// partitions by market.
func (k *KafkaEvents) PublishSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(signals))
	for _, sig := range signals {
		msgs = append(msgs, pkgkafka.Message{Key: []byte(sig.Symbol), Value: sig})
	}
	if err := k.producer.PublishBatch(ctx, k.signalTopic, msgs); err != nil {
		k.l.Error("publish signal events failed",
			applogger.String("topic", k.signalTopic),
			applogger.Int("count", len(signals)),
			applogger.Error(err),
		)
		return err
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaEvents) Close() error {
	if k.producer == nil {
		return nil
	}
	return k.producer.Close()
}

// NopEvents is used when Kafka is disabled in config.
type NopEvents struct{}

func (NopEvents) PublishSnapshot(context.Context, *models.Snapshot) error { return nil }
func (NopEvents) PublishSignals(context.Context, []models.Signal) error   { return nil }
func (NopEvents) Close() error                                            { return nil }
