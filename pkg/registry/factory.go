package registry

import (
	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/collector"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Factory creates collectors with their dependencies.
// A method returns nil when its backend is not configured.
// This interface enables dependency injection for testing.
type Factory interface {
	CreateCoreAPICollector() collector.Collector
	CreateAggregatorCollector() collector.Collector
	CreateQueryEngineCollector() collector.Collector
	CreateNodeAgentCollector() collector.Collector
	CreateCloudTelemetryCollector(provider capability.CloudProvider) collector.Collector
}

// DefaultFactory creates collectors backed by real cluster clients.
type DefaultFactory struct {
	Clientset kubernetes.Interface
	Metrics   metricsv.Interface

	// QueryEngine and CloudTelemetry are nil when no endpoint is configured.
	QueryEngine    *collector.PromQuerier
	CloudTelemetry *collector.PromQuerier

	NodeAgent     bool
	LogLimitBytes int64
}

// CreateCoreAPICollector creates the API server collector. It is never nil.
func (f *DefaultFactory) CreateCoreAPICollector() collector.Collector {
	return &collector.CoreAPICollector{Clientset: f.Clientset, LogLimitBytes: f.LogLimitBytes}
}

// CreateAggregatorCollector creates a metrics.k8s.io collector.
func (f *DefaultFactory) CreateAggregatorCollector() collector.Collector {
	if f.Metrics == nil {
		return nil
	}
	return &collector.AggregatorCollector{Clientset: f.Clientset, Metrics: f.Metrics}
}

// CreateQueryEngineCollector creates an in-cluster Prometheus collector.
func (f *DefaultFactory) CreateQueryEngineCollector() collector.Collector {
	if f.QueryEngine == nil {
		return nil
	}
	return collector.NewQueryEngineCollector(f.QueryEngine)
}

// CreateNodeAgentCollector creates a kubelet summary collector.
func (f *DefaultFactory) CreateNodeAgentCollector() collector.Collector {
	if !f.NodeAgent {
		return nil
	}
	return &collector.NodeAgentCollector{Clientset: f.Clientset}
}

// CreateCloudTelemetryCollector creates a managed telemetry collector for provider.
func (f *DefaultFactory) CreateCloudTelemetryCollector(provider capability.CloudProvider) collector.Collector {
	if f.CloudTelemetry == nil || provider == capability.ProviderNone {
		return nil
	}
	return collector.NewCloudTelemetryCollector(provider, f.CloudTelemetry)
}
