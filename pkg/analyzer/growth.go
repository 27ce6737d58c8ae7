package analyzer

import (
	"fmt"
	"math"
)

// minTrendSamples is roughly 8 hours of 5 minute samples
const minTrendSamples = 100

// CalculateGrowthTrend fits a least-squares line through the series and
// expresses the slope as percentage growth per month.
func CalculateGrowthTrend(samples []MetricSample) (*GrowthTrend, error) {
	if len(samples) < minTrendSamples {
		return &GrowthTrend{}, fmt.Errorf("insufficient data for trend analysis (need %d+ samples, got %d)", minTrendSamples, len(samples))
	}

	startTime := samples[0].Timestamp
	x := make([]float64, len(samples)) // hours since first sample
	y := make([]float64, len(samples))
	for i, sample := range samples {
		x[i] = sample.Timestamp.Sub(startTime).Hours()
		y[i] = sample.Value
	}

	slope, intercept, r2 := linearRegression(x, y)
	currentAvg := calculateAverage(y)

	const hoursPerMonth = 24.0 * 30.0
	var ratePerMonth float64
	if currentAvg > 0 {
		ratePerMonth = (slope * hoursPerMonth / currentAvg) * 100.0
	}

	lastHour := x[len(x)-1]
	predicted3Month := slope*(lastHour+24*90) + intercept
	predicted6Month := slope*(lastHour+24*180) + intercept
	if predicted3Month < 0 {
		predicted3Month = currentAvg
	}
	if predicted6Month < 0 {
		predicted6Month = currentAvg
	}

	return &GrowthTrend{
		RatePerMonth:    ratePerMonth,
		Confidence:      r2,
		Predicted3Month: predicted3Month,
		Predicted6Month: predicted6Month,
		IsGrowing:       ratePerMonth > 3.0,
	}, nil
}

// linearRegression returns slope, intercept and R² clamped to [0,1]
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}

	meanX := calculateAverage(x)
	meanY := calculateAverage(y)

	numerator := 0.0
	denominator := 0.0
	for i := range x {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}
	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0
	for i := range x {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}
	if ssTotal == 0 {
		return slope, intercept, 0
	}

	r2 = math.Max(0, math.Min(1, 1.0-ssRes/ssTotal))
	return slope, intercept, r2
}

// DetectSeasonalPattern checks for a business-hours shape in the series.
// Returns "business-hours", "steady", "variable" or "insufficient-data".
func DetectSeasonalPattern(samples []MetricSample) string {
	if len(samples) < 288 { // one day at 5 minute resolution
		return "insufficient-data"
	}

	byHour := make(map[int][]float64)
	for _, sample := range samples {
		h := sample.Timestamp.Hour()
		byHour[h] = append(byHour[h], sample.Value)
	}

	hourlyMeans := make([]float64, 24)
	for hour := 0; hour < 24; hour++ {
		hourlyMeans[hour] = calculateAverage(byHour[hour])
	}

	businessHoursAvg := (hourlyMeans[9] + hourlyMeans[12] + hourlyMeans[15]) / 3.0
	nightAvg := (hourlyMeans[0] + hourlyMeans[3] + hourlyMeans[23]) / 3.0
	if businessHoursAvg > nightAvg*1.5 {
		return "business-hours"
	}

	if coefficientOfVariation(hourlyMeans) < 0.15 {
		return "steady"
	}
	return "variable"
}
