package collector

import (
	"context"

	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// GKESchema is Google Cloud Managed Service for Prometheus serving the
// kubernetes.io system metrics.
var GKESchema = MetricSchema{
	NamespaceLabel:   "namespace_name",
	PodLabel:         "pod_name",
	ContainerLabel:   "container_name",
	CPUUsageCounter:  "kubernetes_io:container_cpu_core_usage_time",
	MemoryGauge:      "kubernetes_io:container_memory_used_bytes",
	MemoryMatcher:    `memory_type="non-evictable"`,
	CPURequestMetric: "kubernetes_io:container_cpu_request_cores",
	MemRequestMetric: "kubernetes_io:container_memory_request_bytes",
	CPULimitMetric:   "kubernetes_io:container_cpu_limit_cores",
	MemLimitMetric:   "kubernetes_io:container_memory_limit_bytes",
}

// SchemaFor returns the metric schema a managed telemetry endpoint exposes.
// AKS and EKS managed Prometheus scrape the stock cAdvisor and
// kube-state-metrics series.
func SchemaFor(provider capability.CloudProvider) MetricSchema {
	if provider == capability.ProviderGCP {
		return GKESchema
	}
	return KubernetesSchema
}

// CloudTelemetryCollector reads usage from the cloud provider's managed
// Prometheus-compatible endpoint.
type CloudTelemetryCollector struct {
	Provider capability.CloudProvider
	prom     promCollector
}

func NewCloudTelemetryCollector(provider capability.CloudProvider, querier *PromQuerier) *CloudTelemetryCollector {
	return &CloudTelemetryCollector{
		Provider: provider,
		prom: promCollector{
			source:  models.SourceCloudTelemetry,
			querier: querier,
			schema:  SchemaFor(provider),
		},
	}
}

func (c *CloudTelemetryCollector) Source() models.Source        { return models.SourceCloudTelemetry }
func (c *CloudTelemetryCollector) SupportsWorkloadMetrics() bool { return true }
func (c *CloudTelemetryCollector) SupportsNodeMetrics() bool     { return true }
func (c *CloudTelemetryCollector) SupportsLogs() bool            { return false }

func (c *CloudTelemetryCollector) Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	return c.prom.collect(ctx, id, tr)
}
