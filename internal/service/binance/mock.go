package binance

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"PerpScope/internal/domain/models"
)

// Mock is a deterministic in-process market-data source for development
// without exchange access. Prices and bars are derived from the symbol name,
// so repeated refreshes see the same data.
type Mock struct {
	symbols  []string
	interval time.Duration
}

func NewMock(symbols []string, interval time.Duration) *Mock {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Mock{symbols: symbols, interval: interval}
}

func (m *Mock) Prices(_ context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(m.symbols))
	for _, s := range m.symbols {
		out[s] = m.basePrice(s)
	}
	return out, nil
}

func (m *Mock) Klines(_ context.Context, symbol string, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		limit = 50
	}
	base := m.basePrice(symbol)
	seed := float64(symbolSeed(symbol)%997) / 997

	now := time.Now().UTC().Truncate(m.interval)
	bars := make([]models.Bar, limit)
	for i := range bars {
		// smooth pseudo-random walk, fixed per symbol
		phase := seed*math.Pi*2 + float64(i)*0.37
		drift := math.Sin(phase) * 0.004 * base
		o := base + drift
		c := base + math.Sin(phase+0.5)*0.004*base
		vol := 1000 + 400*math.Abs(math.Sin(phase*1.7))
		buyShare := 0.5 + 0.12*math.Sin(phase*0.9)

		bars[i] = models.Bar{
			OpenTime:       now.Add(-time.Duration(limit-i) * m.interval),
			Open:           o,
			High:           math.Max(o, c) * 1.001,
			Low:            math.Min(o, c) * 0.999,
			Close:          c,
			Volume:         vol,
			TakerBuyVolume: vol * buyShare,
		}
	}
	return bars, nil
}

func (m *Mock) basePrice(symbol string) float64 {
	return 10 + float64(symbolSeed(symbol)%100000)/10
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}
