package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"PerpScope/internal/domain/models"
)

func week(yyyy int, mm time.Month, dd int) time.Time {
	return time.Date(yyyy, mm, dd, 0, 0, 0, 0, time.UTC)
}

func TestAssembleContextsPairsLatestTwoWeeks(t *testing.T) {
	raw := []levelRow{
		// out of order on purpose
		{Symbol: "BTCUSDT", PeriodStart: week(2026, 8, 17), High: 102, Low: 95, POC: 99, VAH: 100, VAL: 98, Coverage: "full"},
		{Symbol: "BTCUSDT", PeriodStart: week(2026, 8, 24), High: 105, Low: 97, POC: 101, VAH: 102, VAL: 100, Coverage: "full"},
		{Symbol: "BTCUSDT", PeriodStart: week(2026, 8, 10), High: 100, Low: 90, POC: 96, VAH: 97, VAL: 95, Coverage: "full"},
	}

	out := AssembleContexts(raw)
	require.Len(t, out, 1)

	sc := out[0]
	require.Equal(t, "BTCUSDT", sc.Symbol)
	require.Equal(t, week(2026, 8, 24), sc.PeriodStart)
	require.Equal(t, 102.0, sc.W1.VAH)
	require.NotNil(t, sc.W2)
	require.Equal(t, 100.0, sc.W2.VAH)

	wantOverlap, wantMigration := models.WeekRelation(sc.W1, sc.W2)
	require.Equal(t, wantOverlap, sc.OverlapPct)
	require.Equal(t, wantMigration, sc.MigrationPct)
	require.Equal(t, models.HTFBullish, sc.HTF, "POC and VA center both migrated up")
	require.False(t, sc.LowCoverage)
}

func TestAssembleContextsSkipsInvalidRows(t *testing.T) {
	raw := []levelRow{
		// inverted VA bounds: unusable, must not become W-1
		{Symbol: "ETHUSDT", PeriodStart: week(2026, 8, 24), High: 105, Low: 97, POC: 101, VAH: 100, VAL: 102},
		{Symbol: "ETHUSDT", PeriodStart: week(2026, 8, 17), High: 102, Low: 95, POC: 99, VAH: 100, VAL: 98},
	}

	out := AssembleContexts(raw)
	require.Len(t, out, 1)
	require.Equal(t, week(2026, 8, 17), out[0].PeriodStart, "latest valid row becomes W-1")
	require.Nil(t, out[0].W2)
	require.Equal(t, models.HTFNeutral, out[0].HTF)
}

func TestAssembleContextsExcludesSymbolsWithoutValidW1(t *testing.T) {
	raw := []levelRow{
		{Symbol: "BADUSDT", PeriodStart: week(2026, 8, 24), High: 0, Low: 0, POC: 0, VAH: 0, VAL: 0},
		{Symbol: "GOODUSDT", PeriodStart: week(2026, 8, 24), High: 12, Low: 9, POC: 10.5, VAH: 11, VAL: 10},
	}

	out := AssembleContexts(raw)
	require.Len(t, out, 1)
	require.Equal(t, "GOODUSDT", out[0].Symbol)
}

func TestAssembleContextsNormalizesPerpSuffix(t *testing.T) {
	raw := []levelRow{
		{Symbol: "BTCUSDT.P", PeriodStart: week(2026, 8, 24), High: 105, Low: 97, POC: 101, VAH: 102, VAL: 100},
		{Symbol: "btcusdt", PeriodStart: week(2026, 8, 17), High: 102, Low: 95, POC: 99, VAH: 100, VAL: 98},
	}

	out := AssembleContexts(raw)
	require.Len(t, out, 1, "suffixed and plain forms join on one key")
	require.Equal(t, "BTCUSDT", out[0].Symbol)
	require.NotNil(t, out[0].W2)
}

func TestAssembleContextsLowCoverageFlag(t *testing.T) {
	raw := []levelRow{
		{Symbol: "SOLUSDT", PeriodStart: week(2026, 8, 24), High: 12, Low: 9, POC: 10.5, VAH: 11, VAL: 10, Coverage: "partial"},
	}
	out := AssembleContexts(raw)
	require.Len(t, out, 1)
	require.True(t, out[0].LowCoverage)
}

func TestAssembleContextsSortedBySymbol(t *testing.T) {
	raw := []levelRow{
		{Symbol: "ZENUSDT", PeriodStart: week(2026, 8, 24), High: 12, Low: 9, POC: 10.5, VAH: 11, VAL: 10},
		{Symbol: "AAVEUSDT", PeriodStart: week(2026, 8, 24), High: 12, Low: 9, POC: 10.5, VAH: 11, VAL: 10},
	}
	out := AssembleContexts(raw)
	require.Equal(t, []string{"AAVEUSDT", "ZENUSDT"}, []string{out[0].Symbol, out[1].Symbol})
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT.P":  "BTCUSDT",
		" ethusdt ":  "ETHUSDT",
		"SOLUSDT":    "SOLUSDT",
		"":           "",
		"DOGEUSDT.p": "DOGEUSDT.P", // only the exact suffix is stripped
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizeSymbol(in), "input %q", in)
	}
}
