// Package relevance implements the band classifier: a pure, deterministic
// mapping from one market's structural context and live price to a priority
// band plus a structured reasoning trace. It does no I/O and holds no state,
// so invocations are safe to run concurrently across markets.
package relevance

import (
	"math"

	"PerpScope/internal/domain/models"
)

// Config holds the classifier thresholds. Percent values are in percent
// units (0.2 means 0.2%).
type Config struct {
	// TolerancePct is the price-to-level proximity considered "testing".
	TolerancePct float64
	// CompressionThreshold is the minimum weekly value-area width for a
	// market to count as trending; narrower markets are balanced.
	CompressionThreshold float64
	// ExtendedThreshold is the distance beyond a value-area edge, in percent
	// of that edge, past which price is too stretched for a fresh entry.
	ExtendedThreshold float64
}

// evaluation carries the derived predicates the band rules match against.
type evaluation struct {
	regime         models.Regime
	interaction    models.Interaction
	testedLevel    models.Level
	extension      models.Extension
	biasCompatible bool
}

// bandRule pairs a predicate with its outcome. Rules are evaluated in slice
// order; the first match is decisive. Keeping them in a flat ordered list
// (rather than nested conditionals) makes the precedence auditable.
type bandRule struct {
	name    models.Rule
	matches func(evaluation) bool
	band    models.Band
}

var bandRules = []bandRule{
	{
		name:    models.RuleIgnoreExtended,
		matches: func(e evaluation) bool { return e.extension == models.ExtensionExtended },
		band:    models.BandIgnore,
	},
	{
		name: models.RuleTradeReady,
		matches: func(e evaluation) bool {
			return e.interaction == models.InteractionTesting && e.biasCompatible
		},
		band: models.BandTradeReady,
	},
	{
		name: models.RuleWatchStructural,
		matches: func(e evaluation) bool {
			return e.interaction == models.InteractionTesting || e.interaction == models.InteractionInside
		},
		band: models.BandWatch,
	},
	{
		name:    models.RuleIgnoreDefault,
		matches: func(evaluation) bool { return true },
		band:    models.BandIgnore,
	},
}

// Classify assigns a band to one market. A non-positive or NaN price means
// live data is unavailable; the market is then banded Ignore with a
// no-live-price trace rather than failing the cycle. Markets without a W-1
// row never reach this function (data-availability gate upstream).
func Classify(sc models.StructuralContext, price float64, cfg Config) models.Classification {
	out := models.Classification{
		Symbol:    sc.Symbol,
		HTF:       sc.HTF,
		Extension: models.ExtensionNormal,
		Price:     price,
	}
	if sc.LowCoverage {
		out.Trace = append(out.Trace, models.NoteLowCoverage)
	}

	if price <= 0 || math.IsNaN(price) {
		out.Band = models.BandIgnore
		out.Decisive = models.RuleNoLivePrice
		out.Trace = append(out.Trace, models.RuleNoLivePrice)
		return out
	}

	out.PctToVAL = models.PctDistance(price, sc.W1.VAL)
	out.PctToPOC = models.PctDistance(price, sc.W1.POC)
	out.PctToVAH = models.PctDistance(price, sc.W1.VAH)

	ev := evaluate(sc, price, cfg)
	out.Regime = ev.regime
	out.Interaction = ev.interaction
	out.TestedLevel = ev.testedLevel
	out.Extension = ev.extension
	out.BiasCompatible = ev.biasCompatible

	for _, r := range bandRules {
		out.Trace = append(out.Trace, r.name)
		if r.matches(ev) {
			out.Band = r.band
			out.Decisive = r.name
			break
		}
	}
	return out
}

// evaluate computes the derived predicates in their fixed order: regime,
// interaction, extension, bias compatibility. Each step depends only on
// fields already available.
func evaluate(sc models.StructuralContext, price float64, cfg Config) evaluation {
	ev := evaluation{
		regime:    models.RegimeBalanced,
		extension: models.ExtensionNormal,
	}

	if sc.VAWidthPct >= cfg.CompressionThreshold {
		ev.regime = models.RegimeTrending
	}

	level, dist := nearestLevel(sc, price)
	switch {
	case level != models.LevelNone && dist/price*100 <= cfg.TolerancePct:
		ev.interaction = models.InteractionTesting
		ev.testedLevel = level
	case price >= sc.W1.VAL && price <= sc.W1.VAH:
		ev.interaction = models.InteractionInside
	default:
		ev.interaction = models.InteractionOutside
	}

	if above := models.PctDistance(price, sc.W1.VAH); above >= cfg.ExtendedThreshold {
		ev.extension = models.ExtensionExtended
	}
	if below := -models.PctDistance(price, sc.W1.VAL); below >= cfg.ExtendedThreshold {
		ev.extension = models.ExtensionExtended
	}

	ev.biasCompatible = biasCompatible(sc.HTF, ev, price, sc)
	return ev
}

// relevantLevels lists the structural references a Testing interaction can
// be against: W-1 high/low, the W-1 value-area bounds, the W-1/W-2 overlap
// zone bounds, and the migration marker (current value-area center).
func relevantLevels(sc models.StructuralContext) []struct {
	tag   models.Level
	value float64
} {
	levels := []struct {
		tag   models.Level
		value float64
	}{
		{models.LevelHigh, sc.W1.High},
		{models.LevelLow, sc.W1.Low},
		{models.LevelVAH, sc.W1.VAH},
		{models.LevelVAL, sc.W1.VAL},
		{models.LevelMigration, sc.W1.Mid()},
	}
	if sc.W2 != nil {
		lo := math.Max(sc.W1.VAL, sc.W2.VAL)
		hi := math.Min(sc.W1.VAH, sc.W2.VAH)
		if hi > lo {
			levels = append(levels,
				struct {
					tag   models.Level
					value float64
				}{models.LevelOverlap, lo},
				struct {
					tag   models.Level
					value float64
				}{models.LevelOverlap, hi},
			)
		}
	}
	return levels
}

func nearestLevel(sc models.StructuralContext, price float64) (models.Level, float64) {
	best := models.LevelNone
	bestDist := math.Inf(1)
	for _, l := range relevantLevels(sc) {
		if l.value <= 0 {
			continue
		}
		if d := math.Abs(price - l.value); d < bestDist {
			best, bestDist = l.tag, d
		}
	}
	return best, bestDist
}

// biasCompatible checks whether the test direction agrees with the HTF bias:
// approaching a level from above reads as a support test (long side),
// from below as a resistance test (short side). Neutral HTF is always
// compatible.
func biasCompatible(htf models.HTFDirection, ev evaluation, price float64, sc models.StructuralContext) bool {
	if htf == models.HTFNeutral {
		return true
	}
	if ev.interaction != models.InteractionTesting {
		return false
	}
	levelValue := testedLevelValue(sc, ev.testedLevel, price)
	fromAbove := price >= levelValue
	if htf == models.HTFBullish {
		return fromAbove
	}
	return !fromAbove
}

func testedLevelValue(sc models.StructuralContext, tag models.Level, price float64) float64 {
	switch tag {
	case models.LevelHigh:
		return sc.W1.High
	case models.LevelLow:
		return sc.W1.Low
	case models.LevelVAH:
		return sc.W1.VAH
	case models.LevelVAL:
		return sc.W1.VAL
	case models.LevelMigration:
		return sc.W1.Mid()
	case models.LevelOverlap:
		if sc.W2 == nil {
			return sc.W1.Mid()
		}
		lo := math.Max(sc.W1.VAL, sc.W2.VAL)
		hi := math.Min(sc.W1.VAH, sc.W2.VAH)
		// nearer overlap bound
		if math.Abs(price-lo) <= math.Abs(price-hi) {
			return lo
		}
		return hi
	default:
		return sc.W1.Mid()
	}
}
