package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kitetick/engine/internal/requests"
)

// Quote is the REST /quote shape. GetQuote fills it from the REST endpoint;
// GetQuoteForToken fills it from the websocket-fed TickStore, the primary
// source once a token is subscribed.
type Quote struct {
	LastPrice float64 `json:"last_price"`
	Depth     struct {
		Buy []struct {
			Price float64 `json:"price"`
		} `json:"buy"`
		Sell []struct {
			Price float64 `json:"price"`
		} `json:"sell"`
	} `json:"depth"`
}

type QuoteResponsePayload struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Data    map[string]*Quote `json:"data"`
}

// GetQuoteForToken reads the latest tick for a subscribed token straight out
// of the store — no network round trip once the websocket session is
// running.
func (k *Kite) GetQuoteForToken(token int32) (*Quote, error) {
	st, ok := k.Store.GetState(token)
	if !ok || !st.HasTick {
		return nil, fmt.Errorf("token %d not available in tick store", token)
	}

	q := &Quote{LastPrice: st.LastTick.LastPrice}
	if st.LastTick.HasDepth {
		for _, lvl := range st.LastTick.Depth.Buy {
			q.Depth.Buy = append(q.Depth.Buy, struct {
				Price float64 `json:"price"`
			}{Price: lvl.Price})
		}
		for _, lvl := range st.LastTick.Depth.Sell {
			q.Depth.Sell = append(q.Depth.Sell, struct {
				Price float64 `json:"price"`
			}{Price: lvl.Price})
		}
	}
	return q, nil
}

// GetLastPriceForToken is GetQuoteForToken narrowed to just the price.
func (k *Kite) GetLastPriceForToken(token int32) (float64, error) {
	st, ok := k.Store.GetState(token)
	if !ok || !st.HasTick {
		return 0, fmt.Errorf("token %d not available in tick store", token)
	}
	return st.LastTick.LastPrice, nil
}

// GetQuote falls back to the REST /quote endpoint for a symbol that isn't
// (yet) part of the websocket subscription set.
func (k *Kite) GetQuote(ctx context.Context, exchange, tradingSymbol string) (*Quote, error) {
	reqURL := k.BaseURL + "/quote?i=" + exchange + ":" + url.QueryEscape(tradingSymbol)
	headers := map[string]string{
		"Authorization":  k.authHeader(),
		"X-Kite-Version": "3",
	}

	res, _, err := requests.Get(ctx, reqURL, headers)
	if err != nil {
		return nil, err
	}

	var respData QuoteResponsePayload
	if err := json.Unmarshal(res, &respData); err != nil {
		return nil, err
	}
	if respData.Data == nil {
		return nil, errors.New(respData.Message)
	}

	return respData.Data[exchange+":"+tradingSymbol], nil
}

// GetLastPrice is GetQuote narrowed to just the price.
func (k *Kite) GetLastPrice(ctx context.Context, exchange, tradingSymbol string) (float64, error) {
	q, err := k.GetQuote(ctx, exchange, tradingSymbol)
	if err != nil {
		return 0, err
	}
	if q == nil {
		return 0, fmt.Errorf("no quote data for %s:%s", exchange, tradingSymbol)
	}
	return q.LastPrice, nil
}

// WaitForToken blocks until the store has received at least one tick for
// token, or ctx is done. Useful right after a subscribe call, since ticks
// arrive asynchronously on the websocket read loop.
func (k *Kite) WaitForToken(ctx context.Context, token int32, pollEvery time.Duration) error {
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	if st, ok := k.Store.GetState(token); ok && st.HasTick {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if st, ok := k.Store.GetState(token); ok && st.HasTick {
				return nil
			}
		}
	}
}
