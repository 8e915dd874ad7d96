package trend

import "time"

// seasonalFactors is a fixed month lookup reflecting North American demand
// cycles: spring planting firms prices, mid-summer softens them, and fall
// application brings a secondary lift. Values are multipliers around 1.0.
var seasonalFactors = map[time.Month]float64{
	time.January:   0.96,
	time.February:  1.00,
	time.March:     1.07,
	time.April:     1.12,
	time.May:       1.06,
	time.June:      0.97,
	time.July:      0.90,
	time.August:    0.93,
	time.September: 1.03,
	time.October:   1.05,
	time.November:  0.99,
	time.December:  0.94,
}

// SeasonalFactor returns the fixed demand multiplier for a calendar month.
func SeasonalFactor(month time.Month) float64 {
	if factor, ok := seasonalFactors[month]; ok {
		return factor
	}
	return 1.0
}
