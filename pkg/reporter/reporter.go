// Package reporter renders assessment batches as shareable HTML or CSV files.
package reporter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/recommender"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatHTML ReportFormat = "html"
	FormatCSV  ReportFormat = "csv"
)

const bytesPerMiB = 1024 * 1024

// Report contains all data for generating reports
type Report struct {
	ClusterName      string
	Namespace        string
	GeneratedAt      time.Time
	Rows             []Row
	WorkloadCount    int
	IdleCount        int
	OptimizableCount int
	CostUnavailable  int
	TotalMonthlyCost float64
	TotalSavings     float64
	EnvironmentStats []*EnvironmentStats
	KindStats        []*KindStats
}

// Row is one assessment flattened for rendering
type Row struct {
	Workload        string
	Kind            string
	Environment     string
	State           string
	Type            string
	Risk            string
	Reason          string
	CurrentCPU      int64 // millicores
	CurrentMemory   int64 // MiB
	RecommendedCPU  int64
	RecommendedMem  int64
	BusinessRatio   float64
	Requests        int
	CostAvailable   bool
	CostNote        string
	MonthlyCost     float64
	Savings         float64
	Confidence      float64
	ConfidenceLevel string
	Idle            bool
}

// EnvironmentStats holds statistics per environment
type EnvironmentStats struct {
	Environment     string
	WorkloadCount   int
	MonthlyCost     float64
	TotalSavings    float64
	Recommendations int
}

// KindStats holds statistics per workload kind
type KindStats struct {
	Kind             string
	Count            int
	TotalSavings     float64
	Recommendations  int
	OptimizationRate float64 // Percentage of workloads optimizable
}

// Generate builds a report from assessments
func Generate(assessments []*models.Assessment, clusterName, namespace string) *Report {
	report := &Report{
		ClusterName: clusterName,
		Namespace:   namespace,
		GeneratedAt: time.Now(),
	}

	envs := make(map[string]*EnvironmentStats)
	kinds := make(map[string]*KindStats)
	for _, a := range assessments {
		row := newRow(a)
		report.Rows = append(report.Rows, row)
		report.WorkloadCount++
		report.TotalSavings += row.Savings
		report.TotalMonthlyCost += row.MonthlyCost
		if row.Idle {
			report.IdleCount++
		}
		if !row.CostAvailable {
			report.CostUnavailable++
		}
		optimizable := row.Type != "" && row.Type != string(models.RecommendationNoAction)
		if optimizable {
			report.OptimizableCount++
		}

		env := envs[row.Environment]
		if env == nil {
			env = &EnvironmentStats{Environment: row.Environment}
			envs[row.Environment] = env
		}
		env.WorkloadCount++
		env.MonthlyCost += row.MonthlyCost
		env.TotalSavings += row.Savings

		kind := kinds[row.Kind]
		if kind == nil {
			kind = &KindStats{Kind: row.Kind}
			kinds[row.Kind] = kind
		}
		kind.Count++
		kind.TotalSavings += row.Savings

		if optimizable {
			env.Recommendations++
			kind.Recommendations++
		}
	}

	for _, stat := range kinds {
		stat.OptimizationRate = float64(stat.Recommendations) / float64(stat.Count) * 100
		report.KindStats = append(report.KindStats, stat)
	}
	for _, stat := range envs {
		report.EnvironmentStats = append(report.EnvironmentStats, stat)
	}
	sort.Slice(report.KindStats, func(i, j int) bool { return report.KindStats[i].Kind < report.KindStats[j].Kind })
	sort.Slice(report.EnvironmentStats, func(i, j int) bool {
		return report.EnvironmentStats[i].Environment < report.EnvironmentStats[j].Environment
	})
	return report
}

func newRow(a *models.Assessment) Row {
	row := Row{
		Workload:        a.Workload.String(),
		Kind:            string(a.Workload.Kind),
		Environment:     "unknown",
		State:           string(a.State),
		Confidence:      a.Confidence,
		ConfidenceLevel: string(recommender.Level(a.Confidence)),
		Idle:            a.Idle,
	}
	if a.Activity != nil {
		row.BusinessRatio = a.Activity.BusinessRatio
		row.Requests = a.Activity.TotalRequests
	}
	switch {
	case a.Cost != nil:
		row.CostAvailable = true
		row.MonthlyCost = a.Cost.MonthlyProjection
	case a.CostUnavailable != nil:
		row.CostNote = a.CostUnavailable.Code
	}
	if r := a.Recommendation; r != nil {
		if r.Environment != "" {
			row.Environment = r.Environment
		}
		row.Type = string(r.Type)
		row.Risk = string(r.Risk)
		row.Reason = r.Reason
		row.CurrentCPU = r.CurrentCPU
		row.CurrentMemory = r.CurrentMemory / bytesPerMiB
		row.RecommendedCPU = r.RecommendedCPU
		row.RecommendedMem = r.RecommendedMemory / bytesPerMiB
		row.Savings = r.MonthlySavings
	}
	return row
}

// Write renders report in format
func Write(report *Report, format ReportFormat, w io.Writer) error {
	switch format {
	case FormatHTML:
		return GenerateHTML(report, w)
	case FormatCSV:
		return GenerateCSV(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}
