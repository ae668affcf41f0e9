package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PerpScope/internal/domain/models"
	drepo "PerpScope/internal/domain/repository"
	"PerpScope/internal/relevance"
	"PerpScope/internal/signals"
	applogger "PerpScope/pkg/logger"
)

// ErrUpstream wraps batch-level upstream failures: the structural query or
// the price universe fetch. Per-symbol kline failures are NOT upstream
// failures; they degrade that symbol's signal scan only.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("upstream %s: %v", e.Op, e.Err) }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Config bundles the workflow tuning knobs.
type Config struct {
	Classifier relevance.Config
	Signals    signals.Config

	// MaxInflight bounds concurrent per-symbol kline fetches.
	MaxInflight int
	// FetchTimeout applies per symbol; BatchTimeout covers the batch fetches
	// at the head of the cycle.
	FetchTimeout time.Duration
	BatchTimeout time.Duration
	// KlineLimit is the bar count requested per symbol.
	KlineLimit int
}

// Workflow runs the full evaluation cycle: structural fetch, price fetch,
// banding, bounded live fetch for actionable markets, signal scan, snapshot
// publish, event fan-out.
type Workflow struct {
	session *Session
	levels  drepo.StructuralSource
	market  drepo.MarketDataSource
	events  drepo.EventPublisher
	metrics drepo.Metrics
	cfg     Config
	l       *applogger.Logger
}

func NewWorkflow(
	session *Session,
	levels drepo.StructuralSource,
	market drepo.MarketDataSource,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	cfg Config,
	l *applogger.Logger,
) *Workflow {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 6
	}
	if cfg.KlineLimit <= 0 {
		cfg.KlineLimit = 50
	}
	return &Workflow{
		session: session,
		levels:  levels,
		market:  market,
		events:  events,
		metrics: metrics,
		cfg:     cfg,
		l:       l,
	}
}

// Session exposes the session for read paths.
func (w *Workflow) Session() *Session { return w.session }

// Refresh runs one evaluation cycle. Concurrent calls are rejected with
// ErrRefreshInProgress. On upstream failure the prior snapshot stays
// published and the error is returned.
func (w *Workflow) Refresh(ctx context.Context) (*models.Snapshot, error) {
	if err := w.session.beginRefresh(); err != nil {
		w.metrics.RecordRefresh("rejected", 0)
		return nil, err
	}
	defer w.session.endRefresh()

	start := time.Now()
	snap, err := w.runCycle(ctx)
	elapsed := time.Since(start)
	if err != nil {
		w.metrics.RecordRefresh("error", elapsed.Seconds())
		w.metrics.RecordError("upstream")
		w.l.Error("refresh failed", applogger.Duration("took", elapsed), applogger.Error(err))
		return nil, err
	}

	w.session.publish(snap)
	w.metrics.RecordRefresh("ok", elapsed.Seconds())
	for band, n := range snap.BandCounts() {
		w.metrics.RecordBandCount(string(band), n)
	}
	sigs := snap.Signals()
	for _, sig := range sigs {
		w.metrics.RecordSignal(string(sig.Kind))
	}
	w.l.Info("refresh complete",
		applogger.Int("markets", snap.Len()),
		applogger.Int("signals", len(sigs)),
		applogger.Duration("took", elapsed),
	)

	w.publishEvents(ctx, snap, sigs)
	return snap, nil
}

func (w *Workflow) runCycle(ctx context.Context) (*models.Snapshot, error) {
	batchCtx := ctx
	if w.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, w.cfg.BatchTimeout)
		defer cancel()
	}

	// Both head fetches are batch-fatal: without structure or a price
	// universe there is nothing consistent to publish.
	t0 := time.Now()
	contexts, err := w.levels.WeeklyContexts(batchCtx)
	w.metrics.RecordFetchLatency("weekly_levels", time.Since(t0).Seconds())
	if err != nil {
		return nil, &UpstreamError{Op: "weekly_levels", Err: err}
	}
	if len(contexts) == 0 {
		return nil, &UpstreamError{Op: "weekly_levels", Err: fmt.Errorf("no structural rows")}
	}

	t1 := time.Now()
	prices, err := w.market.Prices(batchCtx)
	w.metrics.RecordFetchLatency("prices", time.Since(t1).Seconds())
	if err != nil {
		return nil, &UpstreamError{Op: "prices", Err: err}
	}

	takenAt := time.Now().UTC()
	entries := make(map[string]models.SnapshotEntry, len(contexts))
	var actionable []string
	for _, sc := range contexts {
		price := prices[sc.Symbol] // zero means no live price; classifier bands it Ignore
		cls := relevance.Classify(sc, price, w.cfg.Classifier)
		entries[cls.Symbol] = models.SnapshotEntry{Classification: cls}
		if cls.Band.Actionable() {
			actionable = append(actionable, cls.Symbol)
		}
	}

	w.scanSignals(ctx, entries, prices, actionable, takenAt)
	return models.NewSnapshot(takenAt, entries), nil
}

// scanSignals fetches klines for actionable markets through a bounded worker
// pool and runs the trigger detectors. A failed or slow symbol loses only its
// own signal scan; the band verdict from the batch stage stands.
func (w *Workflow) scanSignals(
	ctx context.Context,
	entries map[string]models.SnapshotEntry,
	prices map[string]float64,
	symbols []string,
	takenAt time.Time,
) {
	if len(symbols) == 0 {
		return
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, w.cfg.MaxInflight)

loop:
	for _, sym := range symbols {
		select {
		case <-ctx.Done():
			break loop
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			defer func() { <-sem }()

			fetchCtx := ctx
			if w.cfg.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, w.cfg.FetchTimeout)
				defer cancel()
			}

			t0 := time.Now()
			bars, err := w.market.Klines(fetchCtx, sym, w.cfg.KlineLimit)
			w.metrics.RecordFetchLatency("klines", time.Since(t0).Seconds())
			if err != nil {
				w.metrics.RecordError("kline_fetch")
				w.l.Warn("kline fetch failed, signals suppressed",
					applogger.String("symbol", sym),
					applogger.Error(err),
				)
				return
			}

			state := models.NewLiveMarketState(sym, prices[sym], bars)
			sigs := signals.Detect(state, w.cfg.Signals, takenAt)
			if len(sigs) == 0 {
				return
			}

			mu.Lock()
			e := entries[sym]
			e.Signals = sigs
			entries[sym] = e
			mu.Unlock()
		}(sym)
	}
	wg.Wait()
}

// publishEvents pushes the cycle's results downstream. Best-effort only.
func (w *Workflow) publishEvents(ctx context.Context, snap *models.Snapshot, sigs []models.Signal) {
	if w.events == nil {
		return
	}
	if err := w.events.PublishSnapshot(ctx, snap); err != nil {
		w.metrics.RecordError("publish_snapshot")
	}
	if err := w.events.PublishSignals(ctx, sigs); err != nil {
		w.metrics.RecordError("publish_signals")
	}
}
