package relevance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"PerpScope/internal/domain/models"
)

func testConfig() Config {
	return Config{
		TolerancePct:         0.2,
		CompressionThreshold: 1.5,
		ExtendedThreshold:    3.0,
	}
}

func balancedContext() models.StructuralContext {
	// VA width 1.0% around a center of 100.5
	return models.StructuralContext{
		Symbol:     "BTCUSDT",
		W1:         models.LevelSet{High: 103, Low: 98, POC: 100.5, VAH: 101, VAL: 100},
		VAWidthPct: 1.0,
		HTF:        models.HTFBullish,
	}
}

func TestClassifyTestingLowWithBullishBias(t *testing.T) {
	sc := balancedContext()
	// price 0.1% above W-1 low, approaching from above
	price := sc.W1.Low * 1.001

	got := Classify(sc, price, testConfig())

	if got.Regime != models.RegimeBalanced {
		t.Fatalf("regime = %s, want balanced", got.Regime)
	}
	if got.Interaction != models.InteractionTesting {
		t.Fatalf("interaction = %s, want testing", got.Interaction)
	}
	if !got.BiasCompatible {
		t.Fatalf("expected bias compatible")
	}
	if got.Band != models.BandTradeReady {
		t.Fatalf("band = %s, want trade_ready", got.Band)
	}
	if got.Decisive != models.RuleTradeReady {
		t.Fatalf("decisive = %s, want trade-ready", got.Decisive)
	}
}

func TestClassifyExtendedAlwaysIgnored(t *testing.T) {
	for _, htf := range []models.HTFDirection{models.HTFBullish, models.HTFBearish, models.HTFNeutral} {
		sc := balancedContext()
		sc.HTF = htf
		// far beyond the value area high
		price := sc.W1.VAH * 1.04

		got := Classify(sc, price, testConfig())
		if got.Band != models.BandIgnore {
			t.Fatalf("htf=%s: band = %s, want ignore", htf, got.Band)
		}
		if got.Decisive != models.RuleIgnoreExtended {
			t.Fatalf("htf=%s: decisive = %s, want ignore-extended", htf, got.Decisive)
		}
	}
}

func TestClassifyExtensionOutranksTesting(t *testing.T) {
	// A price that is simultaneously extended below VAL and touching W-1 low
	// must land in Ignore: the extension rule is evaluated first.
	sc := models.StructuralContext{
		Symbol:     "ETHUSDT",
		W1:         models.LevelSet{High: 110, Low: 96, POC: 103, VAH: 104, VAL: 102},
		VAWidthPct: 1.9,
		HTF:        models.HTFBearish,
	}
	price := 96.0 // ~5.9% below VAL, exactly at W-1 low

	got := Classify(sc, price, testConfig())
	if got.Extension != models.ExtensionExtended {
		t.Fatalf("extension = %s, want extended", got.Extension)
	}
	if got.Band != models.BandIgnore {
		t.Fatalf("band = %s, want ignore", got.Band)
	}
}

func TestClassifyInsideValueArea(t *testing.T) {
	sc := balancedContext()
	sc.HTF = models.HTFNeutral
	price := 100.5 // inside VA, not within tolerance of any level... POC/mid are at 100.5

	// Price exactly at the migration marker counts as testing it.
	got := Classify(sc, price, testConfig())
	if got.Interaction != models.InteractionTesting || got.TestedLevel != models.LevelMigration {
		t.Fatalf("interaction=%s level=%s, want testing migration_marker", got.Interaction, got.TestedLevel)
	}

	// Nudge away from every level but stay inside the VA.
	got = Classify(sc, 100.75, testConfig())
	if got.Interaction != models.InteractionInside {
		t.Fatalf("interaction = %s, want inside", got.Interaction)
	}
	if got.Band != models.BandWatch {
		t.Fatalf("band = %s, want watch", got.Band)
	}
}

func TestClassifyOutsideDefaultsToIgnore(t *testing.T) {
	sc := balancedContext()
	sc.HTF = models.HTFNeutral
	// above VAH but below the extended threshold, away from W-1 high
	price := sc.W1.VAH * 1.015

	got := Classify(sc, price, testConfig())
	if got.Interaction != models.InteractionOutside {
		t.Fatalf("interaction = %s, want outside", got.Interaction)
	}
	if got.Band != models.BandIgnore || got.Decisive != models.RuleIgnoreDefault {
		t.Fatalf("band=%s decisive=%s, want ignore/ignore-default", got.Band, got.Decisive)
	}
}

func TestClassifyNoLivePrice(t *testing.T) {
	sc := balancedContext()
	for _, price := range []float64{0, -1, math.NaN()} {
		got := Classify(sc, price, testConfig())
		if got.Band != models.BandIgnore {
			t.Fatalf("price=%v: band = %s, want ignore", price, got.Band)
		}
		if got.Decisive != models.RuleNoLivePrice {
			t.Fatalf("price=%v: decisive = %s, want no-live-price", price, got.Decisive)
		}
	}
}

func TestClassifyBearishBiasRejectsSupportTest(t *testing.T) {
	sc := balancedContext()
	sc.HTF = models.HTFBearish
	price := sc.W1.Low * 1.001 // testing the low from above

	got := Classify(sc, price, testConfig())
	if got.BiasCompatible {
		t.Fatalf("expected bias incompatible for bearish HTF on a support test")
	}
	// still structurally relevant, so it degrades to watch
	if got.Band != models.BandWatch || got.Decisive != models.RuleWatchStructural {
		t.Fatalf("band=%s decisive=%s, want watch/watch-structural", got.Band, got.Decisive)
	}
}

func TestClassifyRegimeFromVAWidth(t *testing.T) {
	cases := []struct {
		width float64
		want  models.Regime
	}{
		{1.0, models.RegimeBalanced},
		{1.49, models.RegimeBalanced},
		{1.5, models.RegimeTrending},
		{4.2, models.RegimeTrending},
	}
	for _, tc := range cases {
		sc := balancedContext()
		sc.VAWidthPct = tc.width
		got := Classify(sc, 100.5, testConfig())
		if got.Regime != tc.want {
			t.Fatalf("width=%.2f: regime = %s, want %s", tc.width, got.Regime, tc.want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	sc := balancedContext()
	first := Classify(sc, 100.03, testConfig())
	for i := 0; i < 50; i++ {
		got := Classify(sc, 100.03, testConfig())
		require.Equal(t, first, got)
	}
}

func TestClassifyTraceEndsAtDecisiveRule(t *testing.T) {
	sc := balancedContext()
	got := Classify(sc, sc.W1.Low*1.001, testConfig())

	require.NotEmpty(t, got.Trace)
	require.Equal(t, got.Decisive, got.Trace[len(got.Trace)-1])
	// extension was evaluated and passed before trade-ready fired
	require.Contains(t, got.Trace, models.RuleIgnoreExtended)
}

func TestClassifyLowCoverageNoted(t *testing.T) {
	sc := balancedContext()
	sc.LowCoverage = true
	got := Classify(sc, 100.5, testConfig())
	require.Contains(t, got.Trace, models.NoteLowCoverage)
	// the note never changes the band outcome
	base := sc
	base.LowCoverage = false
	require.Equal(t, Classify(base, 100.5, testConfig()).Band, got.Band)
}
