package repository

import (
	"context"

	"PerpScope/internal/domain/models"
)

// StructuralSource returns per-market structural rows as of the latest
// available period. Fetched once per refresh cycle, never per signal check.
type StructuralSource interface {
	WeeklyContexts(ctx context.Context) ([]models.StructuralContext, error)
	Health(ctx context.Context) error
}

// MarketDataSource returns live exchange data. Prices is a single batch call
// for the whole universe; Klines is per symbol and may fail per symbol
// without failing the batch.
type MarketDataSource interface {
	Prices(ctx context.Context) (map[string]float64, error)
	Klines(ctx context.Context, symbol string, limit int) ([]models.Bar, error)
}

// EventPublisher pushes refresh results to downstream consumers (alerting,
// journaling). Best-effort: a publish failure never fails a refresh.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, snap *models.Snapshot) error
	PublishSignals(ctx context.Context, signals []models.Signal) error
	Close() error
}

// Metrics records workflow observability counters.
type Metrics interface {
	RecordRefresh(result string, seconds float64)
	RecordBandCount(band string, n int)
	RecordSignal(kind string)
	RecordError(kind string)
	RecordFetchLatency(op string, seconds float64)
}
