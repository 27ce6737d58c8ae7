package collector

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/analyzer"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"golang.org/x/time/rate"
)

const (
	minStep      = 30 * time.Second
	maxPoints    = 1000
	rateWindow   = "5m"
	defaultBurst = 5
)

// PromQuerier wraps the Prometheus HTTP API with client-side throttling.
// It is safe for concurrent use.
type PromQuerier struct {
	API     v1.API
	Limiter *rate.Limiter
}

// NewPromQuerier connects to a Prometheus-compatible endpoint. qps <= 0 disables throttling.
func NewPromQuerier(address string, qps float64) (*PromQuerier, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	q := &PromQuerier{API: v1.NewAPI(client)}
	if qps > 0 {
		q.Limiter = rate.NewLimiter(rate.Limit(qps), defaultBurst)
	}
	return q, nil
}

func (q *PromQuerier) wait(ctx context.Context) error {
	if q.Limiter == nil {
		return nil
	}
	return q.Limiter.Wait(ctx)
}

// Range runs a range query over tr with a step sized to keep the answer bounded
func (q *PromQuerier) Range(ctx context.Context, query string, tr models.TimeRange) (model.Matrix, error) {
	if err := q.wait(ctx); err != nil {
		return nil, err
	}

	slog.Debug("prometheus range query", slog.String("query", query), slog.Duration("step", stepFor(tr)))

	result, warnings, err := q.API.QueryRange(ctx, query, v1.Range{Start: tr.Start, End: tr.End, Step: stepFor(tr)})
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	logWarnings(query, warnings)

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}
	return matrix, nil
}

// Instant runs an instant query at ts
func (q *PromQuerier) Instant(ctx context.Context, query string, ts time.Time) (model.Vector, error) {
	if err := q.wait(ctx); err != nil {
		return nil, err
	}

	result, warnings, err := q.API.Query(ctx, query, ts)
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	logWarnings(query, warnings)

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}
	return vector, nil
}

// Ping checks the endpoint answers queries
func (q *PromQuerier) Ping(ctx context.Context) error {
	_, err := q.Instant(ctx, "vector(1)", time.Now())
	return err
}

func logWarnings(query string, warnings v1.Warnings) {
	if len(warnings) > 0 {
		slog.Warn("prometheus returned warnings", slog.String("query", query), slog.Any("warnings", []string(warnings)))
	}
}

func stepFor(tr models.TimeRange) time.Duration {
	step := (tr.Duration() / maxPoints).Truncate(time.Second)
	if step < minStep {
		return minStep
	}
	return step
}

// MetricSchema names the series and labels a Prometheus-compatible backend
// exposes for container usage and resource requests.
type MetricSchema struct {
	NamespaceLabel string
	PodLabel       string
	ContainerLabel string

	CPUUsageCounter string // cumulative CPU seconds
	MemoryGauge     string // working set bytes
	MemoryMatcher   string // extra matcher for the memory series, may be empty

	// Requests/limits either as one metric with a resource label or one metric per resource.
	RequestsMetric   string
	LimitsMetric     string
	CPURequestMetric string
	MemRequestMetric string
	CPULimitMetric   string
	MemLimitMetric   string
}

// KubernetesSchema is cAdvisor plus kube-state-metrics, as scraped by a stock Prometheus
var KubernetesSchema = MetricSchema{
	NamespaceLabel:  "namespace",
	PodLabel:        "pod",
	ContainerLabel:  "container",
	CPUUsageCounter: "container_cpu_usage_seconds_total",
	MemoryGauge:     "container_memory_working_set_bytes",
	RequestsMetric:  "kube_pod_container_resource_requests",
	LimitsMetric:    "kube_pod_container_resource_limits",
}

// podPattern is the regex matching pod names a controller of kind creates
func podPattern(id models.WorkloadIdentifier) string {
	name := regexp.QuoteMeta(id.Name)
	switch id.Kind {
	case models.KindDeployment:
		return name + "-[a-z0-9]+-[a-z0-9]+"
	case models.KindStatefulSet:
		return name + "-[0-9]+"
	case models.KindDaemonSet:
		return name + "-[a-z0-9]+"
	default:
		return name
	}
}

// selector builds the label matchers scoping a query to the workload.
// Empty-container and pause-container series are excluded.
func (s MetricSchema) selector(id models.WorkloadIdentifier) string {
	var m []string
	if id.Namespace != "" {
		m = append(m, fmt.Sprintf(`%s="%s"`, s.NamespaceLabel, id.Namespace))
	}
	switch id.Kind {
	case models.KindCluster:
	case models.KindPod:
		m = append(m, fmt.Sprintf(`%s="%s"`, s.PodLabel, id.Name))
	default:
		m = append(m, fmt.Sprintf(`%s=~"%s"`, s.PodLabel, podPattern(id)))
	}
	m = append(m, fmt.Sprintf(`%s!=""`, s.ContainerLabel), fmt.Sprintf(`%s!="POD"`, s.ContainerLabel))
	return strings.Join(m, ",")
}

func (s MetricSchema) cpuQuery(id models.WorkloadIdentifier) string {
	return fmt.Sprintf(`sum by (%s, %s) (rate(%s{%s}[%s]))`,
		s.PodLabel, s.ContainerLabel, s.CPUUsageCounter, s.selector(id), rateWindow)
}

func (s MetricSchema) memoryQuery(id models.WorkloadIdentifier) string {
	sel := s.selector(id)
	if s.MemoryMatcher != "" {
		sel += "," + s.MemoryMatcher
	}
	return fmt.Sprintf(`sum by (%s, %s) (%s{%s})`, s.PodLabel, s.ContainerLabel, s.MemoryGauge, sel)
}

// resourceQuery sums a request or limit series; combined names a metric
// carrying a resource label, single names a per-resource metric.
func (s MetricSchema) resourceQuery(id models.WorkloadIdentifier, combined, single, resource string) string {
	if combined != "" {
		return fmt.Sprintf(`sum(%s{%s,resource="%s"})`, combined, s.selector(id), resource)
	}
	return fmt.Sprintf(`sum(%s{%s})`, single, s.selector(id))
}

// promCollector is the shared body of the query-engine and cloud-telemetry collectors
type promCollector struct {
	source  models.Source
	querier *PromQuerier
	schema  MetricSchema
}

func (p *promCollector) collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	start := time.Now()
	s := p.schema

	cpu, err := p.querier.Range(ctx, s.cpuQuery(id), tr)
	if err != nil {
		return nil, Unavailable(p.source, "query cpu usage", err)
	}
	memory, err := p.querier.Range(ctx, s.memoryQuery(id), tr)
	if err != nil {
		return nil, Unavailable(p.source, "query memory usage", err)
	}

	result := &models.RawCollectorResult{Source: p.source}

	// rate() yields cores; usage is carried in millicores.
	result.CPUUsage = analyzer.Summarize(scale(sumSeries(cpu), 1000))
	result.MemoryUsage = analyzer.Summarize(sumSeries(memory))
	result.Containers = p.containers(cpu, memory)

	requests := []struct {
		combined, single, resource string
		factor                     float64
		dst                        **int64
	}{
		{s.RequestsMetric, s.CPURequestMetric, "cpu", 1000, &result.CPURequestMillis},
		{s.RequestsMetric, s.MemRequestMetric, "memory", 1, &result.MemoryRequestBytes},
		{s.LimitsMetric, s.CPULimitMetric, "cpu", 1000, &result.CPULimitMillis},
		{s.LimitsMetric, s.MemLimitMetric, "memory", 1, &result.MemoryLimitBytes},
	}
	for _, r := range requests {
		if r.combined == "" && r.single == "" {
			continue
		}
		v, err := p.querier.Instant(ctx, s.resourceQuery(id, r.combined, r.single, r.resource), lastInstant(tr))
		if err != nil {
			return nil, Unavailable(p.source, "query "+r.resource+" requests", err)
		}
		if len(v) > 0 {
			n := int64(float64(v[0].Value) * r.factor)
			*r.dst = &n
		}
	}

	result.CollectedAt = time.Now()
	result.Duration = time.Since(start)
	return result, nil
}

// lastInstant is the final instant inside the half-open window
func lastInstant(tr models.TimeRange) time.Time {
	return tr.End.Add(-time.Millisecond)
}

func (p *promCollector) containers(cpu, memory model.Matrix) map[string]models.ContainerUsage {
	out := make(map[string]models.ContainerUsage)
	key := func(m model.Metric) string {
		return string(m[model.LabelName(p.schema.PodLabel)]) + "/" + string(m[model.LabelName(p.schema.ContainerLabel)])
	}
	for _, stream := range cpu {
		k := key(stream.Metric)
		cu := out[k]
		cu.CPU = analyzer.Summarize(scale(streamSamples(stream), 1000))
		out[k] = cu
	}
	for _, stream := range memory {
		k := key(stream.Metric)
		cu := out[k]
		cu.Memory = analyzer.Summarize(streamSamples(stream))
		out[k] = cu
	}
	return out
}

func streamSamples(stream *model.SampleStream) []analyzer.MetricSample {
	samples := make([]analyzer.MetricSample, 0, len(stream.Values))
	for _, v := range stream.Values {
		samples = append(samples, analyzer.MetricSample{Timestamp: v.Timestamp.Time(), Value: float64(v.Value)})
	}
	return samples
}

// sumSeries adds all series point-wise by timestamp
func sumSeries(matrix model.Matrix) []analyzer.MetricSample {
	totals := make(map[model.Time]float64)
	for _, stream := range matrix {
		for _, v := range stream.Values {
			totals[v.Timestamp] += float64(v.Value)
		}
	}

	samples := make([]analyzer.MetricSample, 0, len(totals))
	for ts, v := range totals {
		samples = append(samples, analyzer.MetricSample{Timestamp: ts.Time(), Value: v})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples
}

func scale(samples []analyzer.MetricSample, factor float64) []analyzer.MetricSample {
	for i := range samples {
		samples[i].Value *= factor
	}
	return samples
}
