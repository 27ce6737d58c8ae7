// Package merger reconciles per-source collector results into one
// WorkloadMetrics record.
//
// Sources are applied in ascending priority (core-api, aggregator,
// query-engine, node-agent, cloud-telemetry). A field reported by a later
// source overwrites the value from an earlier one; a field the later source
// does not report is left as it was. Usage samples are never averaged across
// sources. Every field in effect is tagged with the source that produced it.
package merger

import (
	"log/slog"
	"sort"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// Merge combines results for one request. The inputs may arrive in any order;
// the outcome depends only on which sources succeeded and what they reported.
// When no source succeeded the record is marked NoData.
func Merge(id models.WorkloadIdentifier, tr models.TimeRange, results []models.RawCollectorResult) *models.WorkloadMetrics {
	ordered := make([]models.RawCollectorResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := ordered[i].Source.Priority(), ordered[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		return ordered[i].CollectedAt.Before(ordered[j].CollectedAt)
	})

	merged := &models.WorkloadMetrics{
		Workload:   id,
		Range:      tr,
		Provenance: make(map[models.MetricField]models.Source),
		Sources:    make([]models.SourceStatus, 0, len(ordered)),
	}

	succeeded := 0
	for _, res := range ordered {
		status := models.SourceStatus{Source: res.Source, OK: !res.Failed(), Duration: res.Duration}
		if res.Failed() {
			status.Error = res.Err.Error()
			merged.Sources = append(merged.Sources, status)
			slog.Debug("skipping failed source in merge",
				slog.String("source", string(res.Source)),
				slog.String("error", status.Error))
			continue
		}
		merged.Sources = append(merged.Sources, status)
		succeeded++
		apply(merged, res)
	}

	merged.NoData = succeeded == 0
	if merged.NoData {
		slog.Warn("no source returned data", slog.String("workload", id.String()))
	} else {
		slog.Debug("merged workload metrics",
			slog.String("workload", id.String()),
			slog.Int("sources", succeeded),
			slog.Int("fields", len(merged.Provenance)))
	}
	return merged
}

func apply(m *models.WorkloadMetrics, res models.RawCollectorResult) {
	src := res.Source
	setInt := func(dst *int64, v *int64, field models.MetricField) {
		if v != nil {
			*dst = *v
			m.Provenance[field] = src
		}
	}
	setInt(&m.CPURequestMillis, res.CPURequestMillis, models.FieldCPURequest)
	setInt(&m.MemoryRequestBytes, res.MemoryRequestBytes, models.FieldMemoryRequest)
	setInt(&m.CPULimitMillis, res.CPULimitMillis, models.FieldCPULimit)
	setInt(&m.MemoryLimitBytes, res.MemoryLimitBytes, models.FieldMemoryLimit)

	if res.CPUUsage != nil {
		m.CPUUsage = cloneSample(res.CPUUsage)
		m.Provenance[models.FieldCPUUsage] = src
	}
	if res.MemoryUsage != nil {
		m.MemoryUsage = cloneSample(res.MemoryUsage)
		m.Provenance[models.FieldMemoryUsage] = src
	}

	for name, usage := range res.Containers {
		if m.Containers == nil {
			m.Containers = make(map[string]models.ContainerUsage)
		}
		current := m.Containers[name]
		if usage.CPU != nil {
			current.CPU = cloneSample(usage.CPU)
			current.CPUSource = src
		}
		if usage.Memory != nil {
			current.Memory = cloneSample(usage.Memory)
			current.MemorySource = src
		}
		m.Containers[name] = current
	}

	if res.NodeName != "" {
		m.NodeName = res.NodeName
		m.Provenance[models.FieldNode] = src
	}
	if len(res.Pods) > 0 {
		m.Pods = append([]string(nil), res.Pods...)
		m.Provenance[models.FieldPods] = src
	}
	if len(res.Logs) > 0 {
		m.Logs = append([]models.LogPayload(nil), res.Logs...)
		m.Provenance[models.FieldLogs] = src
	}
}

func cloneSample(s *models.UsageSample) *models.UsageSample {
	c := *s
	return &c
}
