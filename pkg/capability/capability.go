// Package capability detects which optional telemetry backends a cluster
// offers and caches the answer across assessments.
package capability

import "time"

// CloudProvider is the managed platform hosting the cluster
type CloudProvider string

const (
	ProviderNone  CloudProvider = ""
	ProviderAWS   CloudProvider = "aws"
	ProviderAzure CloudProvider = "azure"
	ProviderGCP   CloudProvider = "gcp"
)

// Capabilities is what the collector registry selects on
type Capabilities struct {
	HasMetricsAggregator bool          `json:"has_metrics_aggregator"`
	HasQueryEngine       bool          `json:"has_query_engine"`
	CloudProvider        CloudProvider `json:"cloud_provider"`
	Region               string        `json:"region,omitempty"`
	DetectedAt           time.Time     `json:"detected_at"`
}

// IsManaged reports whether the cluster runs on a known cloud
func (c *Capabilities) IsManaged() bool {
	return c != nil && c.CloudProvider != ProviderNone
}
