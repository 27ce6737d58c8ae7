package models

import "time"

// Source tags which telemetry backend produced a value
type Source string

const (
	SourceCoreAPI        Source = "core-api"
	SourceAggregator     Source = "aggregator"
	SourceQueryEngine    Source = "query-engine"
	SourceNodeAgent      Source = "node-agent"
	SourceCloudTelemetry Source = "cloud-telemetry"
)

// SourcePriority lists sources from lowest to highest merge priority.
// Later entries overwrite earlier ones field by field.
var SourcePriority = []Source{
	SourceCoreAPI,
	SourceAggregator,
	SourceQueryEngine,
	SourceNodeAgent,
	SourceCloudTelemetry,
}

// Priority returns the merge rank of s; unknown sources rank below core-api
func (s Source) Priority() int {
	for i, p := range SourcePriority {
		if p == s {
			return i
		}
	}
	return -1
}

// MetricField names a mergeable field of WorkloadMetrics
type MetricField string

const (
	FieldCPURequest    MetricField = "cpu_request"
	FieldMemoryRequest MetricField = "memory_request"
	FieldCPULimit      MetricField = "cpu_limit"
	FieldMemoryLimit   MetricField = "memory_limit"
	FieldCPUUsage      MetricField = "cpu_usage"
	FieldMemoryUsage   MetricField = "memory_usage"
	FieldNode          MetricField = "node"
	FieldPods          MetricField = "pods"
	FieldLogs          MetricField = "logs"
)

// UsageSample summarizes usage over the window.
// CPU values are millicores, memory values are bytes.
type UsageSample struct {
	Average    float64   `json:"average"`
	P95        float64   `json:"p95"`
	Max        float64   `json:"max"`
	Samples    int       `json:"samples"`
	ObservedAt time.Time `json:"observed_at"`

	// Shape of the series; empty when too few samples were seen
	Pattern         string  `json:"pattern,omitempty"`
	Variation       float64 `json:"variation,omitempty"`
	GrowthPerMonth  float64 `json:"growth_per_month,omitempty"` // percent
	Predicted3Month float64 `json:"predicted_3_month,omitempty"`
	Seasonality     string  `json:"seasonality,omitempty"` // business-hours, steady or variable; needs a day of samples
}

// Instant builds a single-point sample
func Instant(value float64, at time.Time) *UsageSample {
	return &UsageSample{Average: value, P95: value, Max: value, Samples: 1, ObservedAt: at}
}

// ContainerUsage holds per-container samples. A nil sample means the source did not report it.
type ContainerUsage struct {
	CPU          *UsageSample `json:"cpu,omitempty"`
	Memory       *UsageSample `json:"memory,omitempty"`
	CPUSource    Source       `json:"cpu_source,omitempty"`
	MemorySource Source       `json:"memory_source,omitempty"`
}

// LogPayload is raw log text for one container
type LogPayload struct {
	Pod       string `json:"pod"`
	Container string `json:"container"`
	Data      string `json:"-"`
}

// RawCollectorResult is one source's output for one request.
// Pointer and empty fields mean "not reported"; Err set means the source failed.
type RawCollectorResult struct {
	Source Source
	Err    error

	CPURequestMillis   *int64
	MemoryRequestBytes *int64
	CPULimitMillis     *int64
	MemoryLimitBytes   *int64

	CPUUsage    *UsageSample
	MemoryUsage *UsageSample
	Containers  map[string]ContainerUsage

	NodeName string
	Pods     []string
	Logs     []LogPayload

	CollectedAt time.Time
	Duration    time.Duration
}

// Failed reports whether the result carries a failure
func (r RawCollectorResult) Failed() bool {
	return r.Err != nil
}

// SourceStatus records how each source fared
type SourceStatus struct {
	Source   Source        `json:"source"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// WorkloadMetrics is the merged record. It is never mutated after merge.
type WorkloadMetrics struct {
	Workload WorkloadIdentifier `json:"workload"`
	Range    TimeRange          `json:"range"`

	// NoData is set when every source failed; zero values then mean "unknown", not "zero".
	NoData bool `json:"no_data"`

	CPURequestMillis   int64 `json:"cpu_request_millis"`
	MemoryRequestBytes int64 `json:"memory_request_bytes"`
	CPULimitMillis     int64 `json:"cpu_limit_millis"`
	MemoryLimitBytes   int64 `json:"memory_limit_bytes"`

	CPUUsage    *UsageSample              `json:"cpu_usage,omitempty"`
	MemoryUsage *UsageSample              `json:"memory_usage,omitempty"`
	Containers  map[string]ContainerUsage `json:"containers,omitempty"`

	NodeName string       `json:"node_name,omitempty"`
	Pods     []string     `json:"pods,omitempty"`
	Logs     []LogPayload `json:"-"`

	Provenance map[MetricField]Source `json:"provenance"`
	Sources    []SourceStatus         `json:"sources"`
}

// Has reports whether field was supplied by any successful source
func (m *WorkloadMetrics) Has(field MetricField) bool {
	if m == nil {
		return false
	}
	_, ok := m.Provenance[field]
	return ok
}

// SuccessfulSources counts sources that returned data
func (m *WorkloadMetrics) SuccessfulSources() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, s := range m.Sources {
		if s.OK {
			n++
		}
	}
	return n
}
