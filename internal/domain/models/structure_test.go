package models

import (
	"math"
	"testing"
	"time"
)

func timeFixture() time.Time {
	return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
}

func TestLevelSetValid(t *testing.T) {
	cases := []struct {
		name string
		ls   LevelSet
		want bool
	}{
		{"ordered", LevelSet{High: 110, Low: 90, POC: 100, VAH: 105, VAL: 95}, true},
		{"degenerate equal", LevelSet{High: 100, Low: 100, POC: 100, VAH: 100, VAL: 100}, true},
		{"inverted va", LevelSet{High: 110, Low: 90, POC: 100, VAH: 95, VAL: 105}, false},
		{"vah above high", LevelSet{High: 100, Low: 90, POC: 100, VAH: 105, VAL: 95}, false},
		{"zero low", LevelSet{High: 110, Low: 0, POC: 100, VAH: 105, VAL: 95}, false},
	}
	for _, tc := range cases {
		if got := tc.ls.Valid(); got != tc.want {
			t.Fatalf("%s: valid = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWeekRelationOverlap(t *testing.T) {
	w1 := LevelSet{High: 110, Low: 90, POC: 100, VAH: 105, VAL: 95}

	// identical weeks overlap fully and migrate nowhere
	w2 := w1
	overlap, migration := WeekRelation(w1, &w2)
	if overlap != 1 {
		t.Fatalf("identical overlap = %v, want 1", overlap)
	}
	if migration != 0 {
		t.Fatalf("identical migration = %v, want 0", migration)
	}

	// disjoint value areas
	w2 = LevelSet{High: 90, Low: 70, POC: 80, VAH: 85, VAL: 75}
	overlap, _ = WeekRelation(w1, &w2)
	if overlap != 0 {
		t.Fatalf("disjoint overlap = %v, want 0", overlap)
	}

	// half-shifted: VA [95,105] vs [100,110] -> intersection 5, span 15
	w2 = LevelSet{High: 115, Low: 95, POC: 105, VAH: 110, VAL: 100}
	overlap, migration = WeekRelation(w1, &w2)
	if math.Abs(overlap-5.0/15.0) > 1e-12 {
		t.Fatalf("overlap = %v, want 1/3", overlap)
	}
	// W-1 center 100, W-2 center 105: migrated down
	if migration >= 0 {
		t.Fatalf("migration = %v, want negative", migration)
	}

	// missing W-2
	overlap, migration = WeekRelation(w1, nil)
	if overlap != 0 || migration != 0 {
		t.Fatalf("nil W-2: got %v/%v, want zeros", overlap, migration)
	}
}

func TestDeriveHTF(t *testing.T) {
	w1 := LevelSet{High: 110, Low: 90, POC: 102, VAH: 106, VAL: 98}

	up := LevelSet{High: 105, Low: 85, POC: 97, VAH: 101, VAL: 93}
	if got := DeriveHTF(w1, &up); got != HTFBullish {
		t.Fatalf("got %s, want bullish", got)
	}

	down := LevelSet{High: 120, Low: 100, POC: 112, VAH: 116, VAL: 108}
	if got := DeriveHTF(w1, &down); got != HTFBearish {
		t.Fatalf("got %s, want bearish", got)
	}

	// POC up but VA center down: mixed evidence stays neutral
	mixed := LevelSet{High: 112, Low: 92, POC: 101, VAH: 110, VAL: 104}
	if got := DeriveHTF(w1, &mixed); got != HTFNeutral {
		t.Fatalf("got %s, want neutral", got)
	}

	if got := DeriveHTF(w1, nil); got != HTFNeutral {
		t.Fatalf("nil W-2: got %s, want neutral", got)
	}
}

func TestComputeCVD(t *testing.T) {
	bars := []Bar{
		{Volume: 100, TakerBuyVolume: 75}, // delta +50
		{Volume: 100, TakerBuyVolume: 25}, // delta -50
		{Volume: 200, TakerBuyVolume: 100}, // delta 0
	}
	got := ComputeCVD(bars)
	want := []float64{50, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cvd[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if ComputeCVD(nil) != nil {
		t.Fatalf("empty bars should yield nil")
	}
}

func TestSnapshotEntriesOrdering(t *testing.T) {
	entries := map[string]SnapshotEntry{
		"CCC": {Classification: Classification{Symbol: "CCC", Band: BandIgnore}},
		"AAA": {Classification: Classification{Symbol: "AAA", Band: BandWatch, PctToVAL: 0.9, PctToPOC: 0.9, PctToVAH: 0.9}},
		"BBB": {Classification: Classification{Symbol: "BBB", Band: BandWatch, PctToVAL: 0.1, PctToPOC: 0.5, PctToVAH: 0.9}},
		"DDD": {Classification: Classification{Symbol: "DDD", Band: BandTradeReady}},
	}
	snap := NewSnapshot(timeFixture(), entries)

	got := snap.Entries()
	order := make([]string, len(got))
	for i, e := range got {
		order[i] = e.Symbol
	}
	// trade_ready first, then watch by proximity, then ignore
	want := []string{"DDD", "BBB", "AAA", "CCC"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSnapshotCopiesInput(t *testing.T) {
	entries := map[string]SnapshotEntry{
		"AAA": {Classification: Classification{Symbol: "AAA", Band: BandWatch}},
	}
	snap := NewSnapshot(timeFixture(), entries)

	// mutating the caller's map must not reach the snapshot
	entries["AAA"] = SnapshotEntry{Classification: Classification{Symbol: "AAA", Band: BandIgnore}}
	delete(entries, "AAA")

	e, ok := snap.Get("AAA")
	if !ok || e.Band != BandWatch {
		t.Fatalf("snapshot aliased its input: %+v ok=%v", e, ok)
	}
}
