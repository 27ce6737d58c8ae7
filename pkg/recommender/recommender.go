package recommender

import (
	"fmt"
	"math"

	"github.com/opscart/k8s-workload-assessor/pkg/analyzer"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

const (
	DefaultIdleBusinessRatio = 0.05

	// idleCPUFraction is the usage/request ratio below which CPU counts as idle
	idleCPUFraction = 0.05
	// minReduction is the fractional request reduction worth recommending
	minReduction = 0.20

	minCPUMillis   = int64(25)
	minMemoryBytes = int64(50 * 1024 * 1024)

	minBuffer = 1.2
	maxBuffer = 3.0
)

// Input is everything known about one assessed workload
type Input struct {
	Metrics  *models.WorkloadMetrics
	Activity *models.BusinessActivity
	// Cost is nil when attribution was unavailable
	Cost        *models.CostBreakdown
	Environment analyzer.Environment
	// LogSignal is set when request logs were collected for the window
	LogSignal bool
}

// Recommender turns an assessment into a suggested action
type Recommender struct {
	IdleBusinessRatio float64
}

func New(idleBusinessRatio float64) *Recommender {
	if idleBusinessRatio <= 0 {
		idleBusinessRatio = DefaultIdleBusinessRatio
	}
	return &Recommender{IdleBusinessRatio: idleBusinessRatio}
}

// Idle reports whether the workload serves no meaningful business traffic.
// Without logs, only near-zero resource usage counts as idle.
func (r *Recommender) Idle(in Input) bool {
	m := in.Metrics
	if m == nil || m.NoData {
		return false
	}

	if in.LogSignal && in.Activity != nil {
		if in.Activity.TotalRequests > 0 && in.Activity.BusinessRequests == 0 {
			return true
		}
		if in.Activity.BusinessRatio < r.IdleBusinessRatio {
			frac, ok := cpuUsageFraction(m)
			return ok && frac < idleCPUFraction
		}
		return false
	}

	// <1m CPU and <5Mi memory
	return m.CPUUsage != nil && m.MemoryUsage != nil &&
		m.CPUUsage.Average < 1 && m.MemoryUsage.Average < 5*1024*1024
}

// Recommend produces SCALE_DOWN, RIGHT_SIZE or NO_ACTION. Savings are zero
// when cost is unavailable.
func (r *Recommender) Recommend(in Input) *models.Recommendation {
	m := in.Metrics
	env := in.Environment
	if env == "" {
		env = analyzer.EnvironmentUnknown
	}

	rec := &models.Recommendation{
		Environment: string(env),
		Risk:        models.RiskNone,
	}
	if m == nil || m.NoData {
		rec.Type = models.RecommendationNoAction
		rec.Reason = "No telemetry available for the window"
		return rec
	}
	rec.CurrentCPU = m.CPURequestMillis
	rec.CurrentMemory = m.MemoryRequestBytes

	cpuPattern, cpuGrowth := shapeOf(m.CPUUsage)
	memPattern, memGrowth := shapeOf(m.MemoryUsage)
	rec.UsagePattern = buildPatternInfo(cpuPattern, memPattern, cpuGrowth)

	if r.Idle(in) {
		rec.Type = models.RecommendationScaleDown
		rec.Risk = analyzer.GetEnvironmentConfig(env).Risk
		if in.LogSignal && in.Activity != nil {
			rec.Reason = fmt.Sprintf("Idle: %.1f%% of %d requests are business traffic",
				in.Activity.BusinessRatio*100, in.Activity.TotalRequests)
		} else {
			rec.Reason = "Extremely low resource usage - workload appears idle"
		}
		if in.Cost != nil {
			rec.MonthlySavings = in.Cost.MonthlyProjection
		}
		return rec
	}

	cfg := analyzer.GetWorkloadConfig(m.Workload.Kind)
	if !cfg.OptimizeEnabled {
		rec.Type = models.RecommendationNoAction
		rec.Reason = fmt.Sprintf("Right-sizing disabled for %s workloads", m.Workload.Kind)
		return rec
	}

	buffer := adjustSafetyBufferForPattern(analyzer.GetCombinedSafetyBuffer(m.Workload.Kind, env), cpuPattern, memPattern)

	recCPU, cpuReduction := rightSize(m.CPURequestMillis, m.CPUUsage, buffer, cpuGrowth, minCPUMillis)
	recMem, memReduction := rightSize(m.MemoryRequestBytes, m.MemoryUsage, buffer, memGrowth, minMemoryBytes)

	if cpuReduction <= minReduction && memReduction <= minReduction {
		rec.Type = models.RecommendationNoAction
		rec.Reason = "Resource allocation is appropriate"
		return rec
	}

	rec.Type = models.RecommendationRightSize
	rec.RecommendedCPU = recCPU
	rec.RecommendedMemory = recMem
	rec.Reason = fmt.Sprintf("Over-provisioned: %.0f%% CPU, %.0f%% memory reduction possible (%.1fx safety buffer)",
		cpuReduction*100, memReduction*100, buffer)
	rec.Risk = analyzer.GetEnvironmentConfig(env).Risk

	if in.Cost != nil {
		rec.MonthlySavings = savings(in.Cost, cpuReduction, memReduction)
		if rec.MonthlySavings < 1.0 {
			rec.Type = models.RecommendationNoAction
			rec.Reason = "Savings too small to justify change"
			rec.RecommendedCPU, rec.RecommendedMemory = 0, 0
			rec.MonthlySavings = 0
			rec.Risk = models.RiskNone
		}
	}
	return rec
}

// rightSize returns the buffered recommendation and the fractional
// reduction from the current request. Unknown usage or request yields no
// reduction.
func rightSize(request int64, usage *models.UsageSample, buffer float64, growth analyzer.GrowthTrend, floor int64) (int64, float64) {
	if request <= 0 || usage == nil {
		return request, 0
	}

	recommended := adjustForGrowthTrend(int64(math.Ceil(usage.P95*buffer)), growth)
	if recommended < floor {
		recommended = floor
	}
	if recommended >= request {
		return request, 0
	}
	return recommended, float64(request-recommended) / float64(request)
}

// savings prices each resource's reduction against its cost driver
func savings(cost *models.CostBreakdown, cpuReduction, memReduction float64) float64 {
	var hourly float64
	for _, d := range cost.CostDrivers {
		switch d.Resource {
		case "cpu":
			hourly += d.HourlyCost * cpuReduction
		case "memory":
			hourly += d.HourlyCost * memReduction
		}
	}
	return hourly * models.HoursPerMonth
}

func cpuUsageFraction(m *models.WorkloadMetrics) (float64, bool) {
	if m.CPUUsage == nil || m.CPURequestMillis <= 0 {
		return 0, false
	}
	return m.CPUUsage.Average / float64(m.CPURequestMillis), true
}

func shapeOf(s *models.UsageSample) (analyzer.UsagePattern, analyzer.GrowthTrend) {
	if s == nil {
		return analyzer.UsagePattern{}, analyzer.GrowthTrend{}
	}
	return analyzer.UsagePattern{Type: s.Pattern, Variation: s.Variation, Seasonality: s.Seasonality},
		analyzer.GrowthTrend{
			RatePerMonth:    s.GrowthPerMonth,
			Predicted3Month: s.Predicted3Month,
			IsGrowing:       s.GrowthPerMonth > 3.0,
		}
}

// adjustSafetyBufferForPattern scales the buffer by the more volatile of the
// CPU and memory patterns, clamped to [1.2, 3.0]
func adjustSafetyBufferForPattern(base float64, cpuPattern, memPattern analyzer.UsagePattern) float64 {
	factor := 0.0
	for _, p := range []analyzer.UsagePattern{cpuPattern, memPattern} {
		f, ok := patternFactor(p)
		if ok && f > factor {
			factor = f
		}
	}
	if factor == 0 {
		factor = 1.0
	}

	buffer := base * factor
	return math.Max(minBuffer, math.Min(maxBuffer, buffer))
}

func patternFactor(p analyzer.UsagePattern) (float64, bool) {
	var f float64
	switch p.Type {
	case "steady":
		f = 0.90
	case "moderate":
		f = 1.0
	case "spiky":
		f = 1.15
	case "highly-variable":
		f = 1.25
	default:
		return 0, false
	}
	if p.Variation > 1.0 {
		f *= 1.10
	}
	return f, true
}

// adjustForGrowthTrend adds half the 3-month prediction for workloads
// growing at least 5% a month
func adjustForGrowthTrend(base int64, growth analyzer.GrowthTrend) int64 {
	if !growth.IsGrowing || growth.RatePerMonth < 5.0 {
		return base
	}
	return base + int64(growth.Predicted3Month*0.5)
}

func buildPatternInfo(cpuPattern, memPattern analyzer.UsagePattern, cpuGrowth analyzer.GrowthTrend) string {
	if cpuPattern.Type == "" || cpuPattern.Type == "unknown" {
		if memPattern.Type == "" || memPattern.Type == "unknown" {
			return "Insufficient data"
		}
		return "Memory: " + memPattern.Type
	}

	info := "CPU: " + cpuPattern.Type
	if cpuPattern.Seasonality == "business-hours" {
		info += ", business hours"
	}
	if cpuGrowth.IsGrowing && cpuGrowth.RatePerMonth >= 5.0 {
		info += fmt.Sprintf(", Growing %.0f%%/mo", cpuGrowth.RatePerMonth)
	}
	return info
}
