package models

import "time"

// AssessmentSummary is one row of assessment history
type AssessmentSummary struct {
	ID              string             `json:"id"`
	Workload        WorkloadIdentifier `json:"workload"`
	State           AssessmentState    `json:"state"`
	BusinessRatio   float64            `json:"business_ratio"`
	MonthlyCost     float64            `json:"monthly_cost"`
	CostAvailable   bool               `json:"cost_available"`
	Recommendation  RecommendationType `json:"recommendation"`
	PotentialSaving float64            `json:"potential_saving"`
	Confidence      float64            `json:"confidence"`
	CreatedAt       time.Time          `json:"created_at"`
}

// Summarize flattens an assessment for listing
func Summarize(a *Assessment) AssessmentSummary {
	s := AssessmentSummary{
		ID:         a.ID,
		Workload:   a.Workload,
		State:      a.State,
		Confidence: a.Confidence,
		CreatedAt:  a.CreatedAt,
	}
	if a.Activity != nil {
		s.BusinessRatio = a.Activity.BusinessRatio
	}
	if a.Cost != nil {
		s.CostAvailable = true
		s.MonthlyCost = a.Cost.MonthlyProjection
	}
	if a.Recommendation != nil {
		s.Recommendation = a.Recommendation.Type
		s.PotentialSaving = a.Recommendation.MonthlySavings
	}
	return s
}

// HistoryStats aggregates a namespace's assessment history
type HistoryStats struct {
	Namespace        string  `json:"namespace"`
	Assessments      int     `json:"assessments"`
	UniqueWorkloads  int     `json:"unique_workloads"`
	IdleCount        int     `json:"idle_count"`
	TotalMonthlyCost float64 `json:"total_monthly_cost"`
	PotentialSavings float64 `json:"potential_savings"`
	AvgConfidence    float64 `json:"avg_confidence"`
}

// Aggregate computes stats over summaries; the latest summary per workload
// contributes cost and savings.
func Aggregate(namespace string, rows []AssessmentSummary) HistoryStats {
	stats := HistoryStats{Namespace: namespace, Assessments: len(rows)}
	if len(rows) == 0 {
		return stats
	}

	latest := make(map[WorkloadIdentifier]AssessmentSummary)
	var confidence float64
	for _, r := range rows {
		confidence += r.Confidence
		if cur, ok := latest[r.Workload]; !ok || r.CreatedAt.After(cur.CreatedAt) {
			latest[r.Workload] = r
		}
	}

	stats.UniqueWorkloads = len(latest)
	stats.AvgConfidence = confidence / float64(len(rows))
	for _, r := range latest {
		stats.TotalMonthlyCost += r.MonthlyCost
		stats.PotentialSavings += r.PotentialSaving
		if r.Recommendation == RecommendationScaleDown {
			stats.IdleCount++
		}
	}
	return stats
}
