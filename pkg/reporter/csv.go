package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Workload",
		"Kind",
		"Environment",
		"State",
		"Business Ratio",
		"Requests",
		"Monthly Cost ($)",
		"Cost Status",
		"Type",
		"Current CPU (m)",
		"Current Memory (Mi)",
		"Recommended CPU (m)",
		"Recommended Memory (Mi)",
		"Monthly Savings ($)",
		"Risk",
		"Confidence",
		"Idle",
		"Reason",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range report.Rows {
		costStatus := "ok"
		if !row.CostAvailable {
			costStatus = row.CostNote
		}
		record := []string{
			row.Workload,
			row.Kind,
			row.Environment,
			row.State,
			fmt.Sprintf("%.4f", row.BusinessRatio),
			strconv.Itoa(row.Requests),
			fmt.Sprintf("%.2f", row.MonthlyCost),
			costStatus,
			row.Type,
			strconv.FormatInt(row.CurrentCPU, 10),
			strconv.FormatInt(row.CurrentMemory, 10),
			strconv.FormatInt(row.RecommendedCPU, 10),
			strconv.FormatInt(row.RecommendedMem, 10),
			fmt.Sprintf("%.2f", row.Savings),
			row.Risk,
			fmt.Sprintf("%.2f", row.Confidence),
			strconv.FormatBool(row.Idle),
			row.Reason,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	summary := [][]string{
		{},
		{"SUMMARY"},
		{"Total Workloads", strconv.Itoa(report.WorkloadCount)},
		{"Idle Workloads", strconv.Itoa(report.IdleCount)},
		{"Optimization Opportunities", strconv.Itoa(report.OptimizableCount)},
		{"Cost Unavailable", strconv.Itoa(report.CostUnavailable)},
		{"Total Monthly Cost", fmt.Sprintf("$%.2f", report.TotalMonthlyCost)},
		{"Total Monthly Savings", fmt.Sprintf("$%.2f", report.TotalSavings)},
		{},
		{"ENVIRONMENT BREAKDOWN"},
		{"Environment", "Workloads", "Recommendations", "Monthly Cost", "Savings"},
	}
	for _, env := range report.EnvironmentStats {
		summary = append(summary, []string{
			env.Environment,
			strconv.Itoa(env.WorkloadCount),
			strconv.Itoa(env.Recommendations),
			fmt.Sprintf("$%.2f", env.MonthlyCost),
			fmt.Sprintf("$%.2f", env.TotalSavings),
		})
	}
	if err := w.WriteAll(summary); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}
	return nil
}
