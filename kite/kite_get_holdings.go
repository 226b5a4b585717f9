package kite

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kitetick/engine/internal/requests"
)

type Holding struct {
	TradingSymbol      string  `json:"tradingsymbol"`
	Exchange           string  `json:"exchange"`
	InstrumentToken    uint32  `json:"instrument_token"`
	ISIN               string  `json:"isin"`
	Product            string  `json:"product"`
	Price              float64 `json:"price"`
	Quantity           int64   `json:"quantity"`
	UsedQuantity       int64   `json:"used_quantity"`
	T1Quantity         int64   `json:"t1_quantity"`
	RealisedQuantity   float64 `json:"realised_quantity"`
	OpeningQuantity    int64   `json:"opening_quantity"`
	ShortQuantity      int64   `json:"short_quantity"`
	CollateralQuantity int64   `json:"collateral_quantity"`
	CollateralType     string  `json:"collateral_type"`
	Discrepancy        bool    `json:"discrepancy"`
	AveragePrice       float64 `json:"average_price"`
	LastPrice          float64 `json:"last_price"`
	ClosePrice         float64 `json:"close_price"`
	PnL                float64 `json:"pnl"`
	DayChange          float64 `json:"day_change"`
	DayChangePercent   float64 `json:"day_change_percentage"`
}

type HoldingsResponsePayload struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	ErrorType string     `json:"error_type"`
	Data      []*Holding `json:"data"`
}

// GetHoldings is a broker account REST feature; it isn't used by the ticker
// pipeline itself but is kept as part of the general Kite client surface.
func (k *Kite) GetHoldings(ctx context.Context) ([]*Holding, error) {
	url := k.BaseURL + "/portfolio/holdings"

	headers := map[string]string{
		"Authorization":  k.authHeader(),
		"X-Kite-Version": "3",
	}

	res, code, err := requests.Get(ctx, url, headers)
	if err != nil {
		return nil, err
	}

	var respData HoldingsResponsePayload
	if err := json.Unmarshal(res, &respData); err != nil {
		return nil, err
	}

	if code == 200 && respData.Data != nil {
		return respData.Data, nil
	}
	return nil, errors.New(respData.Status + ":" + respData.Message)
}
