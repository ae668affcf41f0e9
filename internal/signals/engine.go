// Package signals implements the trigger detectors run over banded
// candidates: a volume z-score anomaly and a CVD momentum acceleration test.
// Detection is pure given its inputs; insufficient history suppresses a
// trigger, it is never an error.
package signals

import (
	"time"

	"PerpScope/internal/domain/models"
)

// Config holds the signal-engine thresholds and windows.
type Config struct {
	// ZScoreWindow is the baseline window (bars, excluding the newest) for
	// the volume z-score.
	ZScoreWindow int
	// ZScoreThreshold is the minimum z to emit a VolumeZScore signal.
	ZScoreThreshold float64
	// CVDShortWindow and CVDLongWindow are the short/long CVD delta windows.
	CVDShortWindow int
	CVDLongWindow  int
	// CVDMomentumThreshold is the minimum excess of the short per-bar rate
	// magnitude over the long one.
	CVDMomentumThreshold float64
}

// Detect runs all trigger detectors over one market's live state and returns
// zero or more signals. Signals of different kinds are independent facts.
func Detect(state models.LiveMarketState, cfg Config, at time.Time) []models.Signal {
	var out []models.Signal
	if s, ok := volumeZScore(state, cfg, at); ok {
		out = append(out, s)
	}
	if s, ok := cvdMomentum(state, cfg, at); ok {
		out = append(out, s)
	}
	return out
}

// volumeZScore compares the newest bar's volume to the sample statistics of
// the preceding baseline window. Flat volume (zero deviation) or a short
// history yields no trigger.
func volumeZScore(state models.LiveMarketState, cfg Config, at time.Time) (models.Signal, bool) {
	w := cfg.ZScoreWindow
	n := len(state.Bars)
	if w < 2 || n < w+1 {
		return models.Signal{}, false
	}
	baseline := make([]float64, 0, w)
	for _, b := range state.Bars[n-1-w : n-1] {
		baseline = append(baseline, b.Volume)
	}
	std := sampleStdDev(baseline)
	if std == 0 {
		return models.Signal{}, false
	}
	z := (state.Bars[n-1].Volume - mean(baseline)) / std
	if z < cfg.ZScoreThreshold {
		return models.Signal{}, false
	}
	return models.Signal{
		Symbol:   state.Symbol,
		Kind:     models.SignalVolumeZScore,
		Strength: z,
		ZScore:   z,
		At:       at,
		Price:    state.Price,
	}, true
}

// cvdMomentum fires when short-window order flow agrees in sign with price
// action over the same window and its per-bar rate outruns the long-window
// baseline rate by at least the configured margin.
func cvdMomentum(state models.LiveMarketState, cfg Config, at time.Time) (models.Signal, bool) {
	short, long := cfg.CVDShortWindow, cfg.CVDLongWindow
	n := len(state.Bars)
	if short < 1 || long <= short || n < long || len(state.CVD) != n {
		return models.Signal{}, false
	}

	shortRate := (state.CVD[n-1] - state.CVD[n-short]) / float64(short)
	longRate := (state.CVD[n-1] - state.CVD[n-long]) / float64(long)
	priceDelta := state.Bars[n-1].Close - state.Bars[n-short].Close

	if shortRate == 0 || priceDelta == 0 {
		return models.Signal{}, false
	}
	if (shortRate > 0) != (priceDelta > 0) {
		return models.Signal{}, false
	}
	if abs(shortRate)-abs(longRate) < cfg.CVDMomentumThreshold {
		return models.Signal{}, false
	}

	dir := models.DirectionUp
	if shortRate < 0 {
		dir = models.DirectionDown
	}
	return models.Signal{
		Symbol:    state.Symbol,
		Kind:      models.SignalCVDMomentum,
		Strength:  shortRate,
		ShortRate: shortRate,
		LongRate:  longRate,
		Direction: dir,
		At:        at,
		Price:     state.Price,
	}, true
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
