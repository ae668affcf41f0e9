package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"PerpScope/internal/domain/models"
	pkgch "PerpScope/pkg/clickhouse"
	applogger "PerpScope/pkg/logger"
)

// CHLevelStore reads weekly value-area rows from ClickHouse and assembles
// them into per-market structural contexts (W-1 paired with W-2).
type CHLevelStore struct {
	db       *sql.DB
	table    string
	lookback int
	l        *applogger.Logger
}

// levelRow mirrors one row of the weekly levels table.
type levelRow struct {
	Symbol      string
	PeriodStart time.Time
	High        float64
	Low         float64
	POC         float64
	VAH         float64
	VAL         float64
	Coverage    string
}

func NewCHLevelStore(ch *pkgch.Client, table string, lookbackDays int) *CHLevelStore {
	return &CHLevelStore{db: ch.DB(), table: table, lookback: lookbackDays}
}

// SetLogger injects a structured logger.
func (s *CHLevelStore) SetLogger(l *applogger.Logger) { s.l = l }

// WeeklyContexts fetches the recent weekly rows in one batch query and
// returns one StructuralContext per symbol that has a W-1 row.
func (s *CHLevelStore) WeeklyContexts(ctx context.Context) ([]models.StructuralContext, error) {
	start := time.Now()
	const qtpl = `
        SELECT symbol, period_start, high, low, poc, vah, val, coverage_flag
        FROM %s
        WHERE period_start >= subtractDays(today(), ?)
        ORDER BY symbol ASC, period_start DESC
    `
	q := fmt.Sprintf(qtpl, s.table)
	rows, err := s.db.QueryContext(ctx, q, s.lookback)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse weekly_levels query error",
				applogger.String("table", s.table),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("weekly levels: %w", err)
	}
	defer rows.Close()

	var raw []levelRow
	for rows.Next() {
		var r levelRow
		if err := rows.Scan(&r.Symbol, &r.PeriodStart, &r.High, &r.Low, &r.POC, &r.VAH, &r.VAL, &r.Coverage); err != nil {
			return nil, fmt.Errorf("scan level row: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	out := AssembleContexts(raw)
	if s.l != nil {
		s.l.Info("clickhouse weekly_levels ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(raw)),
			applogger.Int("markets", len(out)),
			applogger.Duration("took", time.Since(start)),
		)
	}
	return out, nil
}

// Health pings the underlying pool.
func (s *CHLevelStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AssembleContexts turns raw weekly rows (any order) into structural
// contexts: the latest valid row per symbol becomes W-1, the next one W-2.
// Overlap, migration, and the HTF direction are derived here, from the two
// level sets together, and nowhere else. Symbols without a usable W-1 row
// are excluded from the evaluation set entirely.
func AssembleContexts(raw []levelRow) []models.StructuralContext {
	bySymbol := make(map[string][]levelRow)
	for _, r := range raw {
		sym := NormalizeSymbol(r.Symbol)
		if sym == "" {
			continue
		}
		bySymbol[sym] = append(bySymbol[sym], r)
	}

	out := make([]models.StructuralContext, 0, len(bySymbol))
	for sym, rs := range bySymbol {
		sort.Slice(rs, func(i, j int) bool { return rs[i].PeriodStart.After(rs[j].PeriodStart) })

		var w1 *levelRow
		var w2 *levelRow
		for i := range rs {
			ls := rs[i].levels()
			if !ls.Valid() {
				continue
			}
			if w1 == nil {
				w1 = &rs[i]
			} else {
				w2 = &rs[i]
				break
			}
		}
		if w1 == nil {
			continue
		}

		sc := models.StructuralContext{
			Symbol:      sym,
			PeriodStart: w1.PeriodStart,
			W1:          w1.levels(),
			LowCoverage: lowCoverage(w1.Coverage),
		}
		if w2 != nil {
			ls := w2.levels()
			sc.W2 = &ls
		}
		sc.OverlapPct, sc.MigrationPct = models.WeekRelation(sc.W1, sc.W2)
		sc.VAWidthPct = sc.W1.WidthPct()
		sc.HTF = models.DeriveHTF(sc.W1, sc.W2)
		out = append(out, sc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r levelRow) levels() models.LevelSet {
	return models.LevelSet{High: r.High, Low: r.Low, POC: r.POC, VAH: r.VAH, VAL: r.VAL}
}

// NormalizeSymbol strips the TradingView-style perp suffix so structural and
// exchange symbols join on the same key.
func NormalizeSymbol(sym string) string {
	sym = strings.TrimSuffix(strings.TrimSpace(sym), ".P")
	return strings.ToUpper(sym)
}

func lowCoverage(flag string) bool {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "", "full", "complete":
		return false
	default:
		return true
	}
}
