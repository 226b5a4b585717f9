package kite

// OptionAnalyticsInput is the Black-Scholes input set for one option leg.
type OptionAnalyticsInput struct {
	UnderlyingPrice float64
	StrikePrice     float64
	TimeToExpiry    float64 // in years
	RiskFreeRate    float64
	DividendYield   float64
	IsCallOption    bool
}

// OptionGreeks holds the standard sensitivities at the solved volatility.
type OptionGreeks struct {
	Delta float64
	Gamma float64
	Vega  float64
	Theta float64
	Rho   float64
}

// OptionAnalyticsOutput is the solved implied volatility plus its Greeks.
type OptionAnalyticsOutput struct {
	ImpliedVolatility float64
	Greeks            OptionGreeks
}
