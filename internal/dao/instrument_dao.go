// Package dao holds the Postgres-backed read/write paths against the trade
// schema: instrument catalog lookups and user credential storage.
package dao

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InstrumentMetaRow is the minimal metadata needed to build a token's
// TokenMeta and to drive option analytics (strike, expiry).
type InstrumentMetaRow struct {
	InstrumentToken int32
	TradingSymbol   string
	InstrumentType  string
	Expiry          string
	HasExpiry       bool
	Strike          float64
	HasStrike       bool
}

// clampExpiryDays enforces the [1,14] window the selector is allowed to ask for.
func clampExpiryDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > 14 {
		return 14
	}
	return days
}

// FetchNiftyCurrentWeekOptionTokens selects the nearest NIFTY option expiry
// within [today, today+expiryDays] and returns every token at that expiry.
// Returns ("", nil, nil) when no NIFTY options fall in the window.
func FetchNiftyCurrentWeekOptionTokens(ctx context.Context, pool *pgxpool.Pool, expiryDays int) (string, []int32, error) {
	expiryDays = clampExpiryDays(expiryDays)

	var expiry *string
	err := pool.QueryRow(ctx, `
SELECT (MIN(expiry)::date)::text
FROM trade.instrument
WHERE exchange = 'NFO'
  AND instrument_type IN ('CE','PE')
  AND name = 'NIFTY'
  AND expiry >= CURRENT_DATE
  AND expiry <= (CURRENT_DATE + ($1::int * INTERVAL '1 day'))
`, expiryDays).Scan(&expiry)
	if err != nil {
		return "", nil, err
	}
	if expiry == nil || strings.TrimSpace(*expiry) == "" {
		return "", nil, nil
	}

	rows, err := pool.Query(ctx, `
SELECT instrument_token
FROM trade.instrument
WHERE exchange = 'NFO'
  AND instrument_type IN ('CE','PE')
  AND name = 'NIFTY'
  AND expiry = $1::text::date
ORDER BY instrument_token
`, *expiry)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var tokens []int32
	for rows.Next() {
		var t int32
		if err := rows.Scan(&t); err != nil {
			return "", nil, err
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	return *expiry, tokens, nil
}

// FetchNiftyCurrentWeekOptionMeta is FetchNiftyCurrentWeekOptionTokens plus
// the columns needed for logging and option analytics.
func FetchNiftyCurrentWeekOptionMeta(ctx context.Context, pool *pgxpool.Pool, expiryDays int) (string, []InstrumentMetaRow, error) {
	expiry, _, err := FetchNiftyCurrentWeekOptionTokens(ctx, pool, expiryDays)
	if err != nil {
		return "", nil, err
	}
	if expiry == "" {
		return "", nil, nil
	}

	rows, err := pool.Query(ctx, `
SELECT instrument_token,
       COALESCE(tradingsymbol, ''),
       COALESCE(instrument_type, ''),
       expiry::text,
       strike::float8
FROM trade.instrument
WHERE exchange = 'NFO'
  AND instrument_type IN ('CE','PE')
  AND name = 'NIFTY'
  AND expiry = $1::text::date
ORDER BY instrument_token
`, expiry)
	if err != nil {
		return "", nil, err
	}
	defer rows.Close()

	var out []InstrumentMetaRow
	for rows.Next() {
		var r InstrumentMetaRow
		var expiryCol *string
		var strike *float64
		if err := rows.Scan(&r.InstrumentToken, &r.TradingSymbol, &r.InstrumentType, &expiryCol, &strike); err != nil {
			return "", nil, err
		}
		if expiryCol != nil {
			r.Expiry = *expiryCol
			r.HasExpiry = true
		}
		if strike != nil {
			r.Strike = *strike
			r.HasStrike = true
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	return expiry, out, nil
}

// InstrumentUpsertRow is one row of the CSV catalog refresh.
type InstrumentUpsertRow struct {
	InstrumentToken int32
	TradingSymbol   string
	Name            string
	TickSize        float64
	LotSize         int32
	InstrumentType  string
	Segment         string
	Exchange        string
	Expiry          string
	Strike          float64
}

// ReplaceInstruments performs a transactional delete+insert refresh of the
// instrument catalog from a freshly parsed CSV batch.
func ReplaceInstruments(ctx context.Context, pool *pgxpool.Pool, rows []InstrumentUpsertRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM trade.instrument"); err != nil {
		return 0, err
	}

	var n int64
	for _, r := range rows {
		_, err := tx.Exec(ctx, `
INSERT INTO trade.instrument
	(instrument_token, tradingsymbol, name, tick_size, lot_size,
	 instrument_type, segment, exchange, expiry, strike)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,'')::date,$10)
`, r.InstrumentToken, r.TradingSymbol, r.Name, r.TickSize, r.LotSize,
			r.InstrumentType, r.Segment, r.Exchange, r.Expiry, r.Strike)
		if err != nil {
			return n, err
		}
		n++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
