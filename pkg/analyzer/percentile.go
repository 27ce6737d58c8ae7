package analyzer

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// CalculatePercentiles computes P50, P90, P95, P99, and peak from samples
func CalculatePercentiles(samples []MetricSample) (*Percentiles, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}

	values := sortedValues(samples)

	return &Percentiles{
		Average: calculateAverage(values),
		P50:     calculatePercentile(values, 50),
		P90:     calculatePercentile(values, 90),
		P95:     calculatePercentile(values, 95),
		P99:     calculatePercentile(values, 99),
		Peak:    values[len(values)-1],
		Min:     values[0],
	}, nil
}

// Summarize reduces a series to the average/p95/max shape carried on
// merged metrics. It returns nil for an empty series so callers can tell
// "not reported" from "zero".
func Summarize(samples []MetricSample) *models.UsageSample {
	if len(samples) == 0 {
		return nil
	}

	p, err := CalculatePercentiles(samples)
	if err != nil {
		return nil
	}
	var last time.Time
	for _, s := range samples {
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}

	summary := &models.UsageSample{
		Average:    p.Average,
		P95:        p.P95,
		Max:        p.Peak,
		Samples:    len(samples),
		ObservedAt: last,
	}

	if pattern := AnalyzeUsagePattern(samples); pattern.Type != "unknown" {
		summary.Pattern = pattern.Type
		summary.Variation = pattern.Variation
	}

	ordered := slices.Clone(samples)
	slices.SortFunc(ordered, func(a, b MetricSample) int { return a.Timestamp.Compare(b.Timestamp) })
	if trend, err := CalculateGrowthTrend(ordered); err == nil {
		summary.GrowthPerMonth = trend.RatePerMonth
		summary.Predicted3Month = trend.Predicted3Month
	}
	if season := DetectSeasonalPattern(ordered); season != "insufficient-data" {
		summary.Seasonality = season
	}
	return summary
}

func sortedValues(samples []MetricSample) []float64 {
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	sort.Float64s(values)
	return values
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	n := float64(len(sortedValues))
	rank := (percentile / 100.0) * (n - 1)

	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))
	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	lowerValue := sortedValues[lowerIndex]
	upperValue := sortedValues[upperIndex]
	fraction := rank - float64(lowerIndex)

	return lowerValue + (upperValue-lowerValue)*fraction
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculateCoefficientOfVariation measures the relative variability
// High CV (>0.5) = spiky workload
// Low CV (<0.2) = steady workload
func CalculateCoefficientOfVariation(samples []MetricSample) float64 {
	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	return coefficientOfVariation(values)
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff/float64(len(values))) / mean
}

// AnalyzeUsagePattern determines if workload is steady, spiky, or highly variable
func AnalyzeUsagePattern(samples []MetricSample) UsagePattern {
	if len(samples) < 10 {
		return UsagePattern{Type: "unknown"}
	}

	cv := CalculateCoefficientOfVariation(samples)

	var patternType string
	var confidence float64
	switch {
	case cv < 0.15:
		patternType, confidence = "steady", 0.95
	case cv < 0.35:
		patternType, confidence = "moderate", 0.85
	case cv < 0.70:
		patternType, confidence = "spiky", 0.80
	default:
		patternType, confidence = "highly-variable", 0.75
	}

	return UsagePattern{
		Type:       patternType,
		Variation:  cv,
		Confidence: confidence,
	}
}

// DataQuality returns a 0..1 score from sample count and the time span covered.
// A week of 5 minute samples scores 1.
func DataQuality(sampleCount int, timeSpan time.Duration) float64 {
	const (
		idealSamples = 2000.0
		idealDays    = 7.0
	)

	sampleScore := math.Min(float64(sampleCount)/idealSamples, 1.0)
	timeScore := math.Min(timeSpan.Hours()/24.0/idealDays, 1.0)
	if timeScore < 0 {
		timeScore = 0
	}

	return sampleScore*0.6 + timeScore*0.4
}
