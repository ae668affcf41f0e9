package models

// Band is the classifier's output priority tier. A market holds exactly one
// band per cycle.
type Band string

const (
	BandTradeReady Band = "trade_ready"
	BandWatch      Band = "watch"
	BandIgnore     Band = "ignore"
)

// Rank orders bands by priority; lower is more actionable.
func (b Band) Rank() int {
	switch b {
	case BandTradeReady:
		return 0
	case BandWatch:
		return 1
	default:
		return 2
	}
}

// Actionable reports whether markets in this band are scanned by the signal
// engine.
func (b Band) Actionable() bool {
	return b == BandTradeReady || b == BandWatch
}

// Rule is a structured reasoning tag. The trace carries every rule the
// classifier evaluated, in order; the decisive rule is the one that assigned
// the band. Tags are values, not free text, so tests and the operator UI can
// match on them.
type Rule string

const (
	RuleNoLivePrice     Rule = "no-live-price"
	RuleIgnoreExtended  Rule = "ignore-extended"
	RuleTradeReady      Rule = "trade-ready"
	RuleWatchStructural Rule = "watch-structural"
	RuleIgnoreDefault   Rule = "ignore-default"

	// Advisory notes appended to the trace without affecting banding.
	NoteLowCoverage Rule = "low-coverage"
)

// Regime tags the weekly balance/trend state from value-area width.
type Regime string

const (
	RegimeTrending Regime = "trending"
	RegimeBalanced Regime = "balanced"
)

// Interaction tags where price sits relative to the W-1 structure.
type Interaction string

const (
	InteractionTesting Interaction = "testing"
	InteractionInside  Interaction = "inside"
	InteractionOutside Interaction = "outside"
)

// Level names the structural reference a Testing interaction is against.
type Level string

const (
	LevelHigh      Level = "w1_high"
	LevelLow       Level = "w1_low"
	LevelVAH       Level = "w1_vah"
	LevelVAL       Level = "w1_val"
	LevelOverlap   Level = "overlap_zone"
	LevelMigration Level = "migration_marker"
	LevelNone      Level = ""
)

// Extension tags whether price is stretched too far beyond structure for a
// fresh entry.
type Extension string

const (
	ExtensionExtended Extension = "extended"
	ExtensionNormal   Extension = "normal"
)

// Classification is the full classifier verdict for one market in one cycle.
type Classification struct {
	Symbol string `json:"symbol"`
	Band   Band   `json:"band"`

	Decisive Rule   `json:"decisive"`
	Trace    []Rule `json:"trace"`

	Regime         Regime       `json:"regime"`
	Interaction    Interaction  `json:"interaction"`
	TestedLevel    Level        `json:"tested_level,omitempty"`
	Extension      Extension    `json:"extension"`
	BiasCompatible bool         `json:"bias_compatible"`
	HTF            HTFDirection `json:"htf"`

	Price    float64 `json:"price"`
	PctToVAL float64 `json:"pct_to_val"`
	PctToPOC float64 `json:"pct_to_poc"`
	PctToVAH float64 `json:"pct_to_vah"`
}

// NearestLevelPct returns the smallest absolute percent distance to the W-1
// value-area levels, used for ranking inside a band.
func (c Classification) NearestLevelPct() float64 {
	min := abs(c.PctToVAL)
	if v := abs(c.PctToPOC); v < min {
		min = v
	}
	if v := abs(c.PctToVAH); v < min {
		min = v
	}
	return min
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
