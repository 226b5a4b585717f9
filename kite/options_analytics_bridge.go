package kite

import (
	"fmt"
	"time"
)

// ImpliedVolatilityForToken solves implied volatility and Greeks for one
// option token using the underlying's and the option's latest ticks in the
// store. expiry is the option's expiry date (UTC midnight of the expiry
// day); riskFreeRate and dividendYield are supplied by the caller since
// they aren't observable from the tick stream.
func ImpliedVolatilityForToken(store *TickStore, underlyingToken, optionToken int32, strike float64, isCall bool, expiry time.Time, riskFreeRate, dividendYield float64) (OptionAnalyticsOutput, error) {
	underlying, ok := store.GetState(underlyingToken)
	if !ok || !underlying.HasTick {
		return OptionAnalyticsOutput{}, fmt.Errorf("no tick yet for underlying token %d", underlyingToken)
	}
	option, ok := store.GetState(optionToken)
	if !ok || !option.HasTick {
		return OptionAnalyticsOutput{}, fmt.Errorf("no tick yet for option token %d", optionToken)
	}

	timeToExpiry := time.Until(expiry).Hours() / 24 / 365
	if timeToExpiry <= 0 {
		return OptionAnalyticsOutput{}, fmt.Errorf("option token %d already expired", optionToken)
	}

	input := OptionAnalyticsInput{
		UnderlyingPrice: underlying.LastTick.LastPrice,
		StrikePrice:     strike,
		TimeToExpiry:    timeToExpiry,
		RiskFreeRate:    riskFreeRate,
		DividendYield:   dividendYield,
		IsCallOption:    isCall,
	}

	return CalculateOptionAnalytics(input, option.LastTick.LastPrice)
}
