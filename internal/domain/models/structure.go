package models

import (
	"math"
	"time"
)

// HTFDirection is the higher-timeframe bias derived from the W-1/W-2
// value-area relationship.
type HTFDirection string

const (
	HTFBullish HTFDirection = "bullish"
	HTFBearish HTFDirection = "bearish"
	HTFNeutral HTFDirection = "neutral"
)

// LevelSet holds one week's structural reference levels.
type LevelSet struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
	POC  float64 `json:"poc"`
	VAH  float64 `json:"vah"`
	VAL  float64 `json:"val"`
}

// Valid reports whether the set is internally consistent:
// low <= val <= vah <= high, with a positive low.
func (ls LevelSet) Valid() bool {
	return ls.Low > 0 &&
		ls.Low <= ls.VAL &&
		ls.VAL <= ls.VAH &&
		ls.VAH <= ls.High
}

// Mid returns the value-area center.
func (ls LevelSet) Mid() float64 {
	return (ls.VAH + ls.VAL) / 2
}

// WidthPct returns the value-area width as a percentage of its center.
func (ls LevelSet) WidthPct() float64 {
	mid := ls.Mid()
	if mid == 0 {
		return 0
	}
	return (ls.VAH - ls.VAL) / mid * 100
}

// StructuralContext is the immutable per-market structural input for one
// evaluation cycle. W1 is the prior week, W2 the week before that.
type StructuralContext struct {
	Symbol      string       `json:"symbol"`
	PeriodStart time.Time    `json:"period_start"`
	W1          LevelSet     `json:"w1"`
	W2          *LevelSet    `json:"w2,omitempty"`
	OverlapPct   float64     `json:"overlap_pct"`
	MigrationPct float64     `json:"migration_pct"`
	VAWidthPct   float64     `json:"va_width_pct"`
	HTF          HTFDirection `json:"htf"`
	LowCoverage  bool        `json:"low_coverage,omitempty"`
}

// WeekRelation derives the overlap and migration metrics from two weekly
// level sets. The two values come from the same inputs and must always be
// recomputed as a pair.
func WeekRelation(w1 LevelSet, w2 *LevelSet) (overlapPct, migrationPct float64) {
	if w2 == nil {
		return 0, 0
	}
	lo := math.Max(w1.VAL, w2.VAL)
	hi := math.Min(w1.VAH, w2.VAH)
	span := math.Max(w1.VAH, w2.VAH) - math.Min(w1.VAL, w2.VAL)
	if hi > lo && span > 0 {
		overlapPct = (hi - lo) / span
	}
	if m := w2.Mid(); m != 0 {
		migrationPct = (w1.Mid() - m) / m * 100
	}
	return overlapPct, migrationPct
}

// DeriveHTF computes the higher-timeframe direction: bullish when both the
// POC and the value-area center migrated up week-over-week, bearish when
// both migrated down, neutral otherwise or when W-2 is missing.
func DeriveHTF(w1 LevelSet, w2 *LevelSet) HTFDirection {
	if w2 == nil {
		return HTFNeutral
	}
	pocDelta := w1.POC - w2.POC
	midDelta := w1.Mid() - w2.Mid()
	switch {
	case pocDelta > 0 && midDelta > 0:
		return HTFBullish
	case pocDelta < 0 && midDelta < 0:
		return HTFBearish
	default:
		return HTFNeutral
	}
}

// PctDistance returns the signed percent distance of price from level.
// Positive means price above the level.
func PctDistance(price, level float64) float64 {
	if level == 0 {
		return 0
	}
	return (price - level) / level * 100
}
