package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kitetick/engine/internal/requests"
)

// Candle is one OHLCV(+OI) bar from the historical candles endpoint.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
	OI        uint64
}

type candlesData struct {
	Candles [][]any `json:"candles"`
}

type CandlesResponsePayload struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Data    *candlesData `json:"data"`
}

// GetHistoricalMinutelyData fetches one-minute candles for a token over
// [startDate, endDate], both in Kite's yyyy-mm-dd+HH:MM:SS form.
func (k *Kite) GetHistoricalMinutelyData(ctx context.Context, token int32, startDate, endDate string) ([]*Candle, error) {
	reqURL := fmt.Sprintf("%s/instruments/historical/%d/minute?from=%s&to=%s&oi=1", k.BaseURL, token, startDate, endDate)

	headers := map[string]string{
		"Authorization":  k.authHeader(),
		"X-Kite-Version": "3",
	}

	res, code, err := requests.Get(ctx, reqURL, headers)
	if err != nil {
		return nil, err
	}

	var respData CandlesResponsePayload
	if err := json.Unmarshal(res, &respData); err != nil {
		return nil, err
	}
	if code != 200 || respData.Data == nil {
		return nil, errors.New(respData.Status + ":" + respData.Message)
	}

	candles := make([]*Candle, 0, len(respData.Data.Candles))
	for _, row := range respData.Data.Candles {
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandleRow(row []any) (*Candle, error) {
	c := &Candle{}
	for i, d := range row {
		switch i {
		case 0:
			t, err := time.Parse("2006-01-02T15:04:05-0700", fmt.Sprintf("%v", d))
			if err != nil {
				return nil, err
			}
			c.Timestamp = t.UnixNano()
		case 1:
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.Open = v
		case 2:
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.High = v
		case 3:
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.Low = v
		case 4:
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.Close = v
		case 5:
			// Scientific notation shows up for high-volume days; parse as
			// float first rather than assuming an integer literal.
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.Volume = uint64(v)
		case 6:
			v, err := strconv.ParseFloat(fmt.Sprintf("%v", d), 64)
			if err != nil {
				return nil, err
			}
			c.OI = uint64(v)
		}
	}
	return c, nil
}
