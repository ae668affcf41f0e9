package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"PerpScope/internal/domain/models"
	"PerpScope/internal/relevance"
	"PerpScope/internal/signals"
	applogger "PerpScope/pkg/logger"
)

// --- test doubles ---

type fakeLevels struct {
	mu       sync.Mutex
	contexts []models.StructuralContext
	err      error
	calls    int
	block    chan struct{} // when set, WeeklyContexts waits until closed
}

func (f *fakeLevels) WeeklyContexts(ctx context.Context) ([]models.StructuralContext, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.contexts, nil
}

func (f *fakeLevels) Health(context.Context) error { return nil }

type fakeMarket struct {
	prices    map[string]float64
	pricesErr error
	bars      map[string][]models.Bar
	klineErrs map[string]error
}

func (f *fakeMarket) Prices(context.Context) (map[string]float64, error) {
	if f.pricesErr != nil {
		return nil, f.pricesErr
	}
	return f.prices, nil
}

func (f *fakeMarket) Klines(_ context.Context, symbol string, _ int) ([]models.Bar, error) {
	if err := f.klineErrs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

type fakeEvents struct {
	mu        sync.Mutex
	snapshots int
	signals   int
}

func (f *fakeEvents) PublishSnapshot(context.Context, *models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return nil
}

func (f *fakeEvents) PublishSignals(_ context.Context, sigs []models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals += len(sigs)
	return nil
}

func (f *fakeEvents) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordRefresh(string, float64)      {}
func (nopMetrics) RecordBandCount(string, int)        {}
func (nopMetrics) RecordSignal(string)                {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordFetchLatency(string, float64) {}

// --- fixtures ---

func testWorkflowConfig() Config {
	return Config{
		Classifier: relevance.Config{
			TolerancePct:         0.2,
			CompressionThreshold: 1.5,
			ExtendedThreshold:    3.0,
		},
		Signals: signals.Config{
			ZScoreWindow:    21,
			ZScoreThreshold: 2.0,
			CVDShortWindow:  11,
			CVDLongWindow:   21,
		},
		MaxInflight: 3,
		KlineLimit:  50,
	}
}

func structuralFixture(symbols ...string) []models.StructuralContext {
	out := make([]models.StructuralContext, 0, len(symbols))
	for i, sym := range symbols {
		base := 100.0 * float64(i+1)
		out = append(out, models.StructuralContext{
			Symbol:     sym,
			W1:         models.LevelSet{High: base * 1.03, Low: base * 0.98, POC: base * 1.005, VAH: base * 1.01, VAL: base},
			VAWidthPct: 1.0,
			HTF:        models.HTFNeutral,
		})
	}
	return out
}

// spikeBars puts an extreme volume on the newest bar so the zscore trigger
// fires.
func spikeBars(n int) []models.Bar {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		v := 100.0 + float64(i%5)
		if i == n-1 {
			v = 500
		}
		bars[i] = models.Bar{
			OpenTime: base.Add(time.Duration(i) * 30 * time.Minute),
			Open:     100, High: 100, Low: 100, Close: 100,
			Volume:         v,
			TakerBuyVolume: v / 2,
		}
	}
	return bars
}

func newTestWorkflow(levels *fakeLevels, market *fakeMarket, events *fakeEvents) *Workflow {
	return NewWorkflow(NewSession(), levels, market, events, nopMetrics{}, testWorkflowConfig(), applogger.Nop())
}

// --- tests ---

func TestRefreshPublishesSnapshot(t *testing.T) {
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT", "ETHUSDT")}
	market := &fakeMarket{
		prices: map[string]float64{
			"BTCUSDT": 100.05, // testing VAL within tolerance
			"ETHUSDT": 250,    // far outside structure
		},
		bars: map[string][]models.Bar{"BTCUSDT": spikeBars(30)},
	}
	events := &fakeEvents{}
	wf := newTestWorkflow(levels, market, events)

	snap, err := wf.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	btc, ok := snap.Get("BTCUSDT")
	require.True(t, ok)
	require.Equal(t, models.BandTradeReady, btc.Band)
	require.NotEmpty(t, btc.Signals, "actionable market with a volume spike should carry a signal")

	eth, ok := snap.Get("ETHUSDT")
	require.True(t, ok)
	require.Equal(t, models.BandIgnore, eth.Band)
	require.Empty(t, eth.Signals, "ignored markets are never scanned")

	require.Equal(t, SessionCurrent, wf.Session().State())
	require.Equal(t, 1, events.snapshots)
}

func TestRefreshRejectsConcurrent(t *testing.T) {
	block := make(chan struct{})
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT"), block: block}
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 100.05}}
	wf := newTestWorkflow(levels, market, &fakeEvents{})

	done := make(chan error, 1)
	go func() {
		_, err := wf.Refresh(context.Background())
		done <- err
	}()

	// wait until the first refresh is inside the structural fetch
	require.Eventually(t, func() bool {
		levels.mu.Lock()
		defer levels.mu.Unlock()
		return levels.calls == 1
	}, time.Second, time.Millisecond)

	_, err := wf.Refresh(context.Background())
	require.ErrorIs(t, err, ErrRefreshInProgress)
	require.Nil(t, wf.Session().current.Load(), "rejected refresh must not touch the snapshot")

	close(block)
	require.NoError(t, <-done)

	// guard released: a later refresh succeeds
	_, err = wf.Refresh(context.Background())
	require.NoError(t, err)
}

func TestRefreshUpstreamFailureKeepsPriorSnapshot(t *testing.T) {
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT")}
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 100.05}}
	wf := newTestWorkflow(levels, market, &fakeEvents{})

	first, err := wf.Refresh(context.Background())
	require.NoError(t, err)

	market.pricesErr = errors.New("exchange 5xx")
	_, err = wf.Refresh(context.Background())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "prices", ue.Op)

	got, err := wf.Session().Snapshot()
	require.NoError(t, err)
	require.Same(t, first, got, "failed refresh must leave the prior snapshot published")
	require.Equal(t, SessionCurrent, wf.Session().State())
}

func TestRefreshStructuralFailureIsFatal(t *testing.T) {
	levels := &fakeLevels{err: errors.New("clickhouse down")}
	wf := newTestWorkflow(levels, &fakeMarket{}, &fakeEvents{})

	_, err := wf.Refresh(context.Background())
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "weekly_levels", ue.Op)
	require.Equal(t, SessionStale, wf.Session().State())
}

func TestRefreshPerSymbolKlineFailureIsolated(t *testing.T) {
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT", "ETHUSDT")}
	market := &fakeMarket{
		prices: map[string]float64{
			"BTCUSDT": 100.05,
			"ETHUSDT": 200.1,
		},
		bars:      map[string][]models.Bar{"ETHUSDT": spikeBars(30)},
		klineErrs: map[string]error{"BTCUSDT": fmt.Errorf("timeout")},
	}
	wf := newTestWorkflow(levels, market, &fakeEvents{})

	snap, err := wf.Refresh(context.Background())
	require.NoError(t, err, "a per-symbol kline failure must not fail the cycle")

	btc, _ := snap.Get("BTCUSDT")
	require.Equal(t, models.BandTradeReady, btc.Band, "the band verdict stands without klines")
	require.Empty(t, btc.Signals, "signals suppressed for the failed symbol")

	eth, _ := snap.Get("ETHUSDT")
	require.NotEmpty(t, eth.Signals, "other symbols scan normally")
}

func TestRefreshMissingPriceBandsIgnore(t *testing.T) {
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT", "ETHUSDT")}
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 100.05}} // no ETH price
	wf := newTestWorkflow(levels, market, &fakeEvents{})

	snap, err := wf.Refresh(context.Background())
	require.NoError(t, err)

	eth, ok := snap.Get("ETHUSDT")
	require.True(t, ok, "markets without live price still appear in the snapshot")
	require.Equal(t, models.BandIgnore, eth.Band)
	require.Equal(t, models.RuleNoLivePrice, eth.Decisive)
}

func TestSnapshotImmutableAcrossRefreshes(t *testing.T) {
	levels := &fakeLevels{contexts: structuralFixture("BTCUSDT")}
	market := &fakeMarket{prices: map[string]float64{"BTCUSDT": 100.05}}
	wf := newTestWorkflow(levels, market, &fakeEvents{})

	s1, err := wf.Refresh(context.Background())
	require.NoError(t, err)
	e1, _ := s1.Get("BTCUSDT")

	// next cycle sees a very different price
	market.prices = map[string]float64{"BTCUSDT": 250}
	s2, err := wf.Refresh(context.Background())
	require.NoError(t, err)

	require.NotSame(t, s1, s2)
	after, _ := s1.Get("BTCUSDT")
	require.Equal(t, e1, after, "retained snapshot must be unaffected by later refreshes")

	current, err := wf.Session().Snapshot()
	require.NoError(t, err)
	require.Same(t, s2, current)
}

func TestSessionStaleBeforeFirstRefresh(t *testing.T) {
	s := NewSession()
	require.Equal(t, SessionStale, s.State())
	_, err := s.Snapshot()
	require.ErrorIs(t, err, ErrNoSnapshot)
	require.True(t, s.LastRefreshed().IsZero())
}
