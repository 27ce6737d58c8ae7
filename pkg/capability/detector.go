package capability

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/client-go/kubernetes"
)

// metricsGroup is served by metrics-server and compatible aggregators
const metricsGroup = "metrics.k8s.io"

// Detector answers what the cluster can offer
type Detector interface {
	Detect(ctx context.Context) (*Capabilities, error)
}

// ProbeFunc checks a backend is reachable
type ProbeFunc func(ctx context.Context) error

// ClusterDetector detects capabilities from the API server.
// QueryEngineProbe is nil when no query engine is configured.
type ClusterDetector struct {
	Clientset        kubernetes.Interface
	QueryEngineProbe ProbeFunc
	Now              func() time.Time
}

// Detect never fails on an individual probe; an unreachable backend is
// reported as absent. Only caller cancellation is returned as an error.
func (d *ClusterDetector) Detect(ctx context.Context) (*Capabilities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	caps := &Capabilities{DetectedAt: now()}
	caps.HasMetricsAggregator = d.hasAggregator()

	if d.QueryEngineProbe != nil {
		if err := d.QueryEngineProbe(ctx); err != nil {
			slog.Warn("query engine probe failed", slog.String("error", err.Error()))
		} else {
			caps.HasQueryEngine = true
		}
	}

	provider, region, err := DetectProvider(ctx, d.Clientset)
	if err != nil {
		slog.Warn("cloud provider detection failed", slog.String("error", err.Error()))
	}
	caps.CloudProvider = provider
	caps.Region = region

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Debug("detected cluster capabilities",
		slog.Bool("aggregator", caps.HasMetricsAggregator),
		slog.Bool("query_engine", caps.HasQueryEngine),
		slog.String("provider", string(caps.CloudProvider)),
		slog.String("region", caps.Region))

	return caps, nil
}

func (d *ClusterDetector) hasAggregator() bool {
	groups, err := d.Clientset.Discovery().ServerGroups()
	if err != nil {
		slog.Warn("api discovery failed", slog.String("error", err.Error()))
		return false
	}
	for _, g := range groups.Groups {
		if g.Name == metricsGroup {
			return true
		}
	}
	return false
}
