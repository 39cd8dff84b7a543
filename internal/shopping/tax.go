package shopping

import "math"

// DefaultTaxRate is the sales tax percentage for the default ZIP code.
const DefaultTaxRate = 9.25

// EstimateTax applies a flat percentage rate, rounded to cents.
func EstimateTax(price, ratePercent float64) float64 {
	if price <= 0 || ratePercent <= 0 {
		return 0
	}
	return math.Round(price*ratePercent) / 100
}

// EstimateTotal is price plus tax plus shipping, rounded to cents.
func EstimateTotal(price, ratePercent, shipping float64) float64 {
	return math.Round((price+EstimateTax(price, ratePercent)+shipping)*100) / 100
}
