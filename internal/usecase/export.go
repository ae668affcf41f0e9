package usecase

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"PerpScope/internal/domain/models"
)

// FilterEntries applies the snapshot query filters, preserving the snapshot's
// band/proximity ordering.
func FilterEntries(snap *models.Snapshot, req models.SnapshotRequest) []models.SnapshotEntry {
	all := snap.Entries()
	out := make([]models.SnapshotEntry, 0, len(all))
	for _, e := range all {
		if req.Band != "" && string(e.Band) != req.Band {
			continue
		}
		if req.Interaction != "" && string(e.Interaction) != req.Interaction {
			continue
		}
		if req.HTF != "" && string(e.HTF) != req.HTF {
			continue
		}
		if !matchSymbol(e.Symbol, req.Symbol) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FilterSignals applies the signals query filters in snapshot order.
func FilterSignals(snap *models.Snapshot, req models.SignalsRequest) []models.Signal {
	all := snap.Signals()
	out := make([]models.Signal, 0, len(all))
	for _, s := range all {
		if req.Kind != "" && string(s.Kind) != req.Kind {
			continue
		}
		if !matchSymbol(s.Symbol, req.Symbol) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// matchSymbol is a case-insensitive substring filter; an empty filter
// matches everything.
func matchSymbol(symbol, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.Contains(strings.ToUpper(symbol), strings.ToUpper(filter))
}

// WriteMarketsCSV streams the classified markets as CSV, one row per market
// in band order.
func WriteMarketsCSV(w io.Writer, entries []models.SnapshotEntry) error {
	cw := csv.NewWriter(w)
	header := []string{
		"symbol", "band", "decisive", "regime", "interaction", "tested_level",
		"extension", "bias_compatible", "htf", "price",
		"pct_to_val", "pct_to_poc", "pct_to_vah", "signals",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			e.Symbol,
			string(e.Band),
			string(e.Decisive),
			string(e.Regime),
			string(e.Interaction),
			string(e.TestedLevel),
			string(e.Extension),
			fmt.Sprintf("%t", e.BiasCompatible),
			string(e.HTF),
			fmt.Sprintf("%.6f", e.Price),
			fmt.Sprintf("%.4f", e.PctToVAL),
			fmt.Sprintf("%.4f", e.PctToPOC),
			fmt.Sprintf("%.4f", e.PctToVAH),
			signalTags(e.Signals),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSignalsCSV streams signals as CSV.
func WriteSignalsCSV(w io.Writer, sigs []models.Signal) error {
	cw := csv.NewWriter(w)
	header := []string{
		"symbol", "kind", "strength", "at", "price",
		"zscore", "short_rate", "long_rate", "direction",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sigs {
		row := []string{
			s.Symbol,
			string(s.Kind),
			fmt.Sprintf("%.4f", s.Strength),
			s.At.UTC().Format("2006-01-02T15:04:05Z"),
			fmt.Sprintf("%.6f", s.Price),
			fmt.Sprintf("%.4f", s.ZScore),
			fmt.Sprintf("%.4f", s.ShortRate),
			fmt.Sprintf("%.4f", s.LongRate),
			string(s.Direction),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Tickets renders the journal one-liners for every signal, one per line.
func Tickets(sigs []models.Signal) string {
	if len(sigs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(sigs))
	for _, s := range sigs {
		lines = append(lines, s.Ticket())
	}
	return strings.Join(lines, "\n") + "\n"
}

func signalTags(sigs []models.Signal) string {
	if len(sigs) == 0 {
		return ""
	}
	tags := make([]string, 0, len(sigs))
	for _, s := range sigs {
		tags = append(tags, string(s.Kind))
	}
	return strings.Join(tags, "|")
}
