package kite

import (
	"errors"
	"math"
)

// normCDF is the standard normal CDF: P(X <= x) = 0.5 * (1 + erf(x / sqrt(2))).
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal PDF.
func normPDF(x float64) float64 {
	return (1.0 / math.Sqrt(2*math.Pi)) * math.Exp(-0.5*x*x)
}

// blackScholes prices a European call or put.
func blackScholes(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 {
		if input.IsCallOption {
			return math.Max(0, input.UnderlyingPrice-input.StrikePrice)
		}
		return math.Max(0, input.StrikePrice-input.UnderlyingPrice)
	}

	if volatility <= 0 {
		var price float64
		if input.IsCallOption {
			price = input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry) - input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry)
		} else {
			price = input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry) - input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry)
		}
		return math.Max(0, price)
	}

	// d1 = (ln(S/K) + (r - q + 0.5*v^2)*T) / (v*sqrt(T))
	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)
	if d1Denominator == 0 {
		if input.IsCallOption {
			return math.Max(0, input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry)-input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry))
		}
		return math.Max(0, input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry)-input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry))
	}
	d1 := d1Numerator / d1Denominator

	// d2 = d1 - v*sqrt(T)
	d2 := d1 - volatility*math.Sqrt(input.TimeToExpiry)

	var price float64
	if input.IsCallOption {
		// Call Price = S*exp(-qT)*N(d1) - K*exp(-rT)*N(d2)
		price = input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry)*normCDF(d1) - input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry)*normCDF(d2)
	} else {
		// Put Price = K*exp(-rT)*N(-d2) - S*exp(-qT)*N(-d1)
		price = input.StrikePrice*math.Exp(-input.RiskFreeRate*input.TimeToExpiry)*normCDF(-d2) - input.UnderlyingPrice*math.Exp(-input.DividendYield*input.TimeToExpiry)*normCDF(-d1)
	}
	return price
}

// blackScholesVega is S * N'(d1) * sqrt(T) * exp(-qT).
func blackScholesVega(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 || volatility <= 0 || input.UnderlyingPrice <= 0 {
		return 0
	}

	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)

	if d1Denominator == 0 {
		return 0
	}
	d1 := d1Numerator / d1Denominator

	return input.UnderlyingPrice * math.Exp(-input.DividendYield*input.TimeToExpiry) * normPDF(d1) * math.Sqrt(input.TimeToExpiry)
}

// CalculateImpliedVolatility solves for volatility via Newton-Raphson.
func CalculateImpliedVolatility(input OptionAnalyticsInput, marketPrice float64) (float64, error) {
	const maxIterations = 100
	const tolerance = 1e-6
	const minVolatility = 1e-4
	const maxVolatility = 10.0
	const verySmallVega = 1e-8

	sigma := 0.5 // Initial guess

	for i := 0; i < maxIterations; i++ {
		calculatedPrice := blackScholes(input, sigma)
		diff := calculatedPrice - marketPrice

		if math.Abs(diff) < tolerance {
			return sigma, nil
		}

		vega := blackScholesVega(input, sigma)

		if math.Abs(vega) < verySmallVega {
			if math.Abs(diff) < tolerance*10 {
				return sigma, nil
			}
			return 0, errors.New("vega is too small, implied volatility calculation unstable")
		}

		sigma = sigma - diff/vega

		if sigma < minVolatility {
			sigma = minVolatility
		} else if sigma > maxVolatility {
			sigma = maxVolatility
		}
	}

	return 0, errors.New("implied volatility did not converge after maximum iterations")
}

// calculateDelta calculates the Delta of an option.
func calculateDelta(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 || volatility <= 0 || input.UnderlyingPrice <= 0 {
		if input.IsCallOption {
			if input.UnderlyingPrice > input.StrikePrice {
				return 1.0
			} else if input.UnderlyingPrice < input.StrikePrice {
				return 0.0
			}
			return 0.5
		}
		if input.UnderlyingPrice < input.StrikePrice {
			return -1.0
		} else if input.UnderlyingPrice > input.StrikePrice {
			return 0.0
		}
		return -0.5
	}

	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)
	if d1Denominator == 0 {
		return 0
	}
	d1 := d1Numerator / d1Denominator

	if input.IsCallOption {
		return math.Exp(-input.DividendYield*input.TimeToExpiry) * normCDF(d1)
	}
	return math.Exp(-input.DividendYield*input.TimeToExpiry) * (normCDF(d1) - 1)
}

// calculateGamma calculates the Gamma of an option.
func calculateGamma(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 || volatility <= 0 || input.UnderlyingPrice <= 0 {
		return 0
	}

	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)

	if d1Denominator == 0 {
		return 0
	}
	d1 := d1Numerator / d1Denominator

	numerator := normPDF(d1) * math.Exp(-input.DividendYield*input.TimeToExpiry)
	denominator := input.UnderlyingPrice * volatility * math.Sqrt(input.TimeToExpiry)

	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// calculateTheta is the annualized Theta; divide by 365 for per-day decay.
func calculateTheta(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 || volatility <= 0 || input.UnderlyingPrice <= 0 {
		return 0
	}

	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)
	if d1Denominator == 0 {
		return 0
	}
	d1 := d1Numerator / d1Denominator
	d2 := d1 - volatility*math.Sqrt(input.TimeToExpiry)

	term1 := -(input.UnderlyingPrice * normPDF(d1) * volatility * math.Exp(-input.DividendYield*input.TimeToExpiry)) / (2 * math.Sqrt(input.TimeToExpiry))

	if input.IsCallOption {
		term2 := -input.RiskFreeRate * input.StrikePrice * math.Exp(-input.RiskFreeRate*input.TimeToExpiry) * normCDF(d2)
		term3 := input.DividendYield * input.UnderlyingPrice * math.Exp(-input.DividendYield*input.TimeToExpiry) * normCDF(d1)
		return term1 + term2 + term3
	}
	term2 := input.RiskFreeRate * input.StrikePrice * math.Exp(-input.RiskFreeRate*input.TimeToExpiry) * normCDF(-d2)
	term3 := -input.DividendYield * input.UnderlyingPrice * math.Exp(-input.DividendYield*input.TimeToExpiry) * normCDF(-d1)
	return term1 + term2 + term3
}

// calculateRho is the raw Rho; scale by 0.01 for change per 1% rate move.
func calculateRho(input OptionAnalyticsInput, volatility float64) float64 {
	if input.TimeToExpiry <= 0 || volatility <= 0 || input.UnderlyingPrice <= 0 {
		return 0
	}

	d1Numerator := math.Log(input.UnderlyingPrice/input.StrikePrice) + (input.RiskFreeRate-input.DividendYield+0.5*volatility*volatility)*input.TimeToExpiry
	d1Denominator := volatility * math.Sqrt(input.TimeToExpiry)

	if d1Denominator == 0 {
		return 0
	}
	d1 := d1Numerator / d1Denominator
	d2 := d1 - volatility*math.Sqrt(input.TimeToExpiry)

	if input.IsCallOption {
		return input.StrikePrice * input.TimeToExpiry * math.Exp(-input.RiskFreeRate*input.TimeToExpiry) * normCDF(d2)
	}
	return -input.StrikePrice * input.TimeToExpiry * math.Exp(-input.RiskFreeRate*input.TimeToExpiry) * normCDF(-d2)
}

// CalculateOptionAnalytics computes implied volatility and the Greeks from a
// market price observation.
func CalculateOptionAnalytics(input OptionAnalyticsInput, marketPrice float64) (OptionAnalyticsOutput, error) {
	output := OptionAnalyticsOutput{}

	iv, err := CalculateImpliedVolatility(input, marketPrice)
	if err != nil {
		return output, err
	}
	output.ImpliedVolatility = iv

	delta := calculateDelta(input, iv)
	gamma := calculateGamma(input, iv)
	vega := blackScholesVega(input, iv)
	theta := calculateTheta(input, iv)
	rho := calculateRho(input, iv)

	output.Greeks = OptionGreeks{
		Delta: delta,
		Gamma: gamma,
		Vega:  vega,
		Theta: theta,
		Rho:   rho,
	}

	return output, nil
}
