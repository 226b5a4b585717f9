package kite

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitetick/engine/internal/dao"
)

// NiftyIndexToken is appended to every subscription set: it's the one
// instrument that isn't an option contract but is always wanted for
// underlying-price context.
const NiftyIndexToken int32 = 256265

// SelectNiftyCurrentWeekOptions resolves the nearest NIFTY weekly option
// expiry within [today, today+windowDays] (clamped to [1,14] by the DAO
// layer) and returns its metadata rows plus the index token, ready to seed a
// TickStore and subscribe over the websocket. Returns ErrNoSubscription if
// nothing falls in the window.
func SelectNiftyCurrentWeekOptions(ctx context.Context, pool *pgxpool.Pool, windowDays int) (expiry string, metas []TokenMeta, err error) {
	ctx, cancel := context.WithTimeout(ctx, defaultSelectTimeout)
	defer cancel()

	rawExpiry, rows, err := dao.FetchNiftyCurrentWeekOptionMeta(ctx, pool, windowDays)
	if err != nil {
		return "", nil, err
	}
	if rawExpiry == "" || len(rows) == 0 {
		return "", nil, ErrNoSubscription
	}

	metas = make([]TokenMeta, 0, len(rows)+1)
	for _, r := range rows {
		metas = append(metas, TokenMeta{
			InstrumentToken: r.InstrumentToken,
			TradingSymbol:   r.TradingSymbol,
			InstrumentType:  r.InstrumentType,
			Expiry:          r.Expiry,
			HasExpiry:       r.HasExpiry,
			Strike:          r.Strike,
			HasStrike:       r.HasStrike,
		})
	}
	metas = append(metas, TokenMeta{
		InstrumentToken: NiftyIndexToken,
		TradingSymbol:   "NIFTY 50",
		InstrumentType:  "INDEX",
	})

	return rawExpiry, metas, nil
}

// SubscriptionTokens extracts a sorted, de-duplicated token list ready to
// hand to a websocket session.
func SubscriptionTokens(metas []TokenMeta) []int32 {
	seen := make(map[int32]struct{}, len(metas))
	tokens := make([]int32, 0, len(metas))
	for _, m := range metas {
		if _, dup := seen[m.InstrumentToken]; dup {
			continue
		}
		seen[m.InstrumentToken] = struct{}{}
		tokens = append(tokens, m.InstrumentToken)
	}
	for i := 1; i < len(tokens); i++ {
		for j := i; j > 0 && tokens[j-1] > tokens[j]; j-- {
			tokens[j-1], tokens[j] = tokens[j], tokens[j-1]
		}
	}
	return tokens
}

// defaultSelectTimeout bounds the catalog query issued at supervisor startup.
const defaultSelectTimeout = 10 * time.Second
