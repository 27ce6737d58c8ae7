package analyzer

import "time"

// MetricSample represents a single metric data point
type MetricSample struct {
	Timestamp time.Time
	Value     float64
}

// Percentiles contains statistical percentiles
type Percentiles struct {
	Average float64
	P50     float64
	P90     float64
	P95     float64
	P99     float64
	Peak    float64
	Min     float64
}

// UsagePattern describes usage behavior
type UsagePattern struct {
	Type        string  // "steady", "moderate", "spiky", "highly-variable", "unknown"
	Variation   float64 // Coefficient of variation
	Confidence  float64
	Seasonality string // "business-hours", "steady", "variable" or empty
}

// GrowthTrend describes growth over time
type GrowthTrend struct {
	RatePerMonth    float64 // % growth per month
	Confidence      float64
	Predicted3Month float64
	Predicted6Month float64
	IsGrowing       bool
}
