package recommender

import (
	"github.com/opscart/k8s-workload-assessor/pkg/analyzer"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// Confidence scores how much of the picture the assessment saw, in [0,1].
// It starts from the fraction of collectors that succeeded, adds 0.2 each
// for a log signal and an available cost, and is scaled by usage data
// quality so instant-only readings count for half.
func Confidence(m *models.WorkloadMetrics, logSignal, costAvailable bool) float64 {
	if m == nil || len(m.Sources) == 0 || m.NoData {
		return 0
	}

	score := float64(m.SuccessfulSources()) / float64(len(m.Sources))
	if logSignal {
		score += 0.2
	}
	if costAvailable {
		score += 0.2
	}

	quality := 0.0
	if m.CPUUsage != nil {
		quality = analyzer.DataQuality(m.CPUUsage.Samples, m.Range.Duration())
	}
	score *= 0.5 + 0.5*quality

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Level buckets a confidence score for display
func Level(confidence float64) string {
	switch {
	case confidence >= 0.75:
		return "HIGH"
	case confidence >= 0.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
