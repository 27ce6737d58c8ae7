// Package output prints assessments to a terminal or as JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/recommender"
)

// Handler defines the interface for output formatting
type Handler interface {
	DisplayAssessments(assessments []*models.Assessment) error
	DisplayCapabilities(caps *capability.Capabilities, sources []models.Source) error
	DisplayHistory(stats models.HistoryStats, rows []models.AssessmentSummary) error
	DisplayCosts(costs *models.ClusterCostBreakdown) error
	Format() string
}

// New returns the handler for format: text or json
func New(format string, w io.Writer) (Handler, error) {
	switch format {
	case "", "text":
		return &TextHandler{w: w}, nil
	case "json":
		return &JSONHandler{w: w}, nil
	default:
		return nil, fmt.Errorf("output must be text or json, got %q", format)
	}
}

// JSONHandler writes one indented document per call
type JSONHandler struct {
	w io.Writer
}

func (h *JSONHandler) Format() string { return "json" }

func (h *JSONHandler) DisplayAssessments(assessments []*models.Assessment) error {
	var savings float64
	for _, a := range assessments {
		if a.Recommendation != nil {
			savings += a.Recommendation.MonthlySavings
		}
	}
	return h.encode(map[string]any{
		"assessments":   assessments,
		"count":         len(assessments),
		"total_savings": savings,
		"timestamp":     time.Now().Format(time.RFC3339),
	})
}

func (h *JSONHandler) DisplayCapabilities(caps *capability.Capabilities, sources []models.Source) error {
	return h.encode(map[string]any{"capabilities": caps, "collectors": sources})
}

func (h *JSONHandler) DisplayHistory(stats models.HistoryStats, rows []models.AssessmentSummary) error {
	return h.encode(map[string]any{"stats": stats, "assessments": rows})
}

func (h *JSONHandler) DisplayCosts(costs *models.ClusterCostBreakdown) error {
	return h.encode(costs)
}

func (h *JSONHandler) encode(v any) error {
	encoder := json.NewEncoder(h.w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// TextHandler prints a human readable listing
type TextHandler struct {
	w io.Writer
}

func (h *TextHandler) Format() string { return "text" }

func (h *TextHandler) DisplayAssessments(assessments []*models.Assessment) error {
	if len(assessments) == 0 {
		fmt.Fprintln(h.w, "[INFO] No workloads assessed")
		return nil
	}

	fmt.Fprintln(h.w, "=== Workload Assessments ===")
	fmt.Fprintln(h.w)

	var totalCost, totalSavings float64
	for i, a := range assessments {
		h.printAssessment(i+1, a)
		if a.Cost != nil {
			totalCost += a.Cost.MonthlyProjection
		}
		if a.Recommendation != nil {
			totalSavings += a.Recommendation.MonthlySavings
		}
	}

	fmt.Fprintf(h.w, "Total attributed cost: $%.2f/month\n", totalCost)
	fmt.Fprintf(h.w, "Total potential savings: $%.2f/month\n", totalSavings)
	return nil
}

func (h *TextHandler) printAssessment(n int, a *models.Assessment) {
	w := h.w
	fmt.Fprintf(w, "%d. %s", n, a.Workload)
	if r := a.Recommendation; r != nil && r.Environment != "" && r.Environment != "unknown" {
		fmt.Fprintf(w, " [%s]", strings.ToUpper(r.Environment))
	}
	if a.Idle {
		fmt.Fprint(w, " IDLE")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "   State: %s (confidence %.2f %s)\n", a.State, a.Confidence, recommender.Level(a.Confidence))
	if act := a.Activity; act != nil {
		fmt.Fprintf(w, "   Activity: %d requests, %d business (%.1f%%)\n",
			act.TotalRequests, act.BusinessRequests, act.BusinessRatio*100)
	}
	switch {
	case a.Cost != nil:
		fmt.Fprintf(w, "   Cost: $%.2f/month (%.1f%% of %s)\n",
			a.Cost.MonthlyProjection, a.Cost.AllocationRatio*100, a.Cost.NodeName)
	case a.CostUnavailable != nil:
		fmt.Fprintf(w, "   Cost: unavailable (%s: %s)\n", a.CostUnavailable.Code, a.CostUnavailable.Reason)
	}

	if r := a.Recommendation; r != nil {
		fmt.Fprintf(w, "   Type: %s\n", r.Type)
		if r.Reason != "" {
			fmt.Fprintf(w, "   Reason: %s\n", r.Reason)
		}
		fmt.Fprintf(w, "   Current:  CPU=%dm Memory=%dMi\n", r.CurrentCPU, r.CurrentMemory/(1024*1024))
		if r.Type == models.RecommendationRightSize {
			fmt.Fprintf(w, "   Recommended: CPU=%dm Memory=%dMi\n", r.RecommendedCPU, r.RecommendedMemory/(1024*1024))
		}
		if r.MonthlySavings > 0 {
			fmt.Fprintf(w, "   Savings: $%.2f/month\n", r.MonthlySavings)
		}
		fmt.Fprintf(w, "   Risk: %s\n", r.Risk)
		if r.UsagePattern != "" {
			fmt.Fprintf(w, "   Pattern: %s\n", r.UsagePattern)
		}
	}

	if a.Metrics != nil && len(a.Metrics.Sources) > 0 {
		parts := make([]string, 0, len(a.Metrics.Sources))
		for _, s := range a.Metrics.Sources {
			if s.OK {
				parts = append(parts, string(s.Source))
			} else {
				parts = append(parts, string(s.Source)+" (failed)")
			}
		}
		fmt.Fprintf(w, "   Sources: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintln(w)
}

func (h *TextHandler) DisplayCapabilities(caps *capability.Capabilities, sources []models.Source) error {
	provider := string(caps.CloudProvider)
	if provider == "" {
		provider = "none"
	}
	fmt.Fprintf(h.w, "Cloud provider: %s", provider)
	if caps.Region != "" {
		fmt.Fprintf(h.w, " (region: %s)", caps.Region)
	}
	fmt.Fprintln(h.w)
	fmt.Fprintf(h.w, "Metrics aggregator: %t\n", caps.HasMetricsAggregator)
	fmt.Fprintf(h.w, "Query engine: %t\n", caps.HasQueryEngine)
	fmt.Fprintf(h.w, "Detected at: %s\n", caps.DetectedAt.Format(time.RFC3339))
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, string(s))
	}
	fmt.Fprintf(h.w, "Collectors: %s\n", strings.Join(names, ", "))
	return nil
}

func (h *TextHandler) DisplayHistory(stats models.HistoryStats, rows []models.AssessmentSummary) error {
	if len(rows) == 0 {
		fmt.Fprintf(h.w, "No assessments found for namespace: %s\n", stats.Namespace)
		return nil
	}

	fmt.Fprintf(h.w, "Recent assessments for namespace '%s':\n\n", stats.Namespace)
	for i, row := range rows {
		fmt.Fprintf(h.w, "%d. %s (ID: %s)\n", i+1, row.Workload, row.ID)
		fmt.Fprintf(h.w, "   Recommendation: %s\n", row.Recommendation)
		if row.CostAvailable {
			fmt.Fprintf(h.w, "   Cost: $%.2f/mo\n", row.MonthlyCost)
		} else {
			fmt.Fprintln(h.w, "   Cost: unavailable")
		}
		fmt.Fprintf(h.w, "   Savings: $%.2f/mo\n", row.PotentialSaving)
		fmt.Fprintf(h.w, "   Business ratio: %.1f%%\n", row.BusinessRatio*100)
		fmt.Fprintf(h.w, "   Created: %s\n", row.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(h.w)
	}

	fmt.Fprintf(h.w, "%d assessments of %d workloads, %d idle\n", stats.Assessments, stats.UniqueWorkloads, stats.IdleCount)
	fmt.Fprintf(h.w, "Latest monthly cost: $%.2f, potential savings: $%.2f, average confidence %.2f\n",
		stats.TotalMonthlyCost, stats.PotentialSavings, stats.AvgConfidence)
	return nil
}

func (h *TextHandler) DisplayCosts(costs *models.ClusterCostBreakdown) error {
	fmt.Fprintf(h.w, "Pricing: %s (%s)\n\n", costs.Provider, costs.Currency)
	for _, n := range costs.Nodes {
		fmt.Fprintf(h.w, "%-40s %-20s %6.2f cores %8.1f GiB  %.4f/h\n",
			n.NodeName, n.InstanceType, n.AllocatableCPU, float64(n.AllocatableMemory)/(1<<30), n.HourlyCost)
	}
	fmt.Fprintf(h.w, "\nHourly: %.4f  Daily: %.2f  Monthly: %.2f %s\n",
		costs.HourlyCost, costs.DailyCost, costs.MonthlyCost, costs.Currency)
	return nil
}
