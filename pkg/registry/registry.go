// Package registry selects the collectors a cluster supports and fans a
// collection request out to all of them concurrently.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/collector"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds each collector invocation
const DefaultTimeout = 10 * time.Second

// CapabilitySource supplies the detected cluster capabilities.
// *capability.Cache is the production implementation.
type CapabilitySource interface {
	Get(ctx context.Context) (*capability.Capabilities, error)
}

// Need declares which kinds of data a request wants. A collector is
// dispatched when it supports at least one of them.
type Need struct {
	Workload bool
	Node     bool
	Logs     bool
}

// WorkloadAssessment is the need of a full workload assessment
var WorkloadAssessment = Need{Workload: true, Logs: true}

// Registry owns the capability cache and the collector factory.
type Registry struct {
	factory      Factory
	capabilities CapabilitySource
	timeout      time.Duration
}

func New(factory Factory, capabilities CapabilitySource, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{factory: factory, capabilities: capabilities, timeout: timeout}
}

// Build returns the collectors applicable to caps, ordered by merge priority
// and deduplicated by source. The core-API collector is always first.
func (r *Registry) Build(caps capability.Capabilities) []collector.Collector {
	candidates := []collector.Collector{r.factory.CreateCoreAPICollector()}
	if caps.HasMetricsAggregator {
		candidates = append(candidates, r.factory.CreateAggregatorCollector())
	}
	if caps.HasQueryEngine {
		candidates = append(candidates, r.factory.CreateQueryEngineCollector())
	}
	candidates = append(candidates, r.factory.CreateNodeAgentCollector())
	if caps.IsManaged() {
		candidates = append(candidates, r.factory.CreateCloudTelemetryCollector(caps.CloudProvider))
	}

	seen := make(map[models.Source]bool)
	out := make([]collector.Collector, 0, len(candidates))
	for _, c := range candidates {
		if c == nil || seen[c.Source()] {
			continue
		}
		seen[c.Source()] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Source().Priority() < out[j].Source().Priority()
	})
	return out
}

// Capabilities returns the cached capabilities. Detection failure degrades
// to core-API only; only cancellation is returned as an error.
func (r *Registry) Capabilities(ctx context.Context) (capability.Capabilities, error) {
	if r.capabilities == nil {
		return capability.Capabilities{}, nil
	}
	caps, err := r.capabilities.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return capability.Capabilities{}, ctx.Err()
		}
		slog.Warn("capability detection failed, using core collector only", slog.String("error", err.Error()))
		return capability.Capabilities{}, nil
	}
	return *caps, nil
}

// Collectors returns the collectors for the current capabilities that satisfy need
func (r *Registry) Collectors(ctx context.Context, need Need) ([]collector.Collector, error) {
	caps, err := r.Capabilities(ctx)
	if err != nil {
		return nil, err
	}
	return Select(r.Build(caps), need), nil
}

// Select filters collectors by declared support, preserving order
func Select(collectors []collector.Collector, need Need) []collector.Collector {
	var out []collector.Collector
	for _, c := range collectors {
		if (need.Workload && c.SupportsWorkloadMetrics()) ||
			(need.Node && c.SupportsNodeMetrics()) ||
			(need.Logs && c.SupportsLogs()) {
			out = append(out, c)
		}
	}
	return out
}

// Dispatch runs every applicable collector concurrently and waits for all of
// them. Each result slot carries either data or a failure tagged with its
// source; a failed collector is never retried. The error is non-nil only
// when ctx was cancelled.
func (r *Registry) Dispatch(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange, need Need) ([]models.RawCollectorResult, error) {
	collectors, err := r.Collectors(ctx, need)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, collectors, id, tr)
}

// Run fans out to collectors with the registry's per-collector timeout
func (r *Registry) Run(ctx context.Context, collectors []collector.Collector, id models.WorkloadIdentifier, tr models.TimeRange) ([]models.RawCollectorResult, error) {
	activeCollectors.Set(float64(len(collectors)))
	results := make([]models.RawCollectorResult, len(collectors))

	// A plain group: one failing collector must not cancel the others.
	var g errgroup.Group
	for i, c := range collectors {
		g.Go(func() error {
			results[i] = r.invoke(ctx, c, id, tr)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

type outcome struct {
	result *models.RawCollectorResult
	err    error
	status string
}

func (r *Registry) invoke(ctx context.Context, c collector.Collector, id models.WorkloadIdentifier, tr models.TimeRange) models.RawCollectorResult {
	source := c.Source()
	start := time.Now()

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("collector panicked: %v", p), status: "panic"}
			}
		}()
		res, err := c.Collect(cctx, id, tr)
		done <- outcome{result: res, err: err}
	}()

	// A collector that ignores its context is abandoned at the deadline.
	var out outcome
	select {
	case out = <-done:
	case <-cctx.Done():
		out = outcome{err: cctx.Err()}
	}

	elapsed := time.Since(start)
	collectorDuration.WithLabelValues(string(source)).Observe(elapsed.Seconds())

	if out.err == nil && out.result == nil {
		out.err = fmt.Errorf("collector returned no result")
	}
	if out.err != nil {
		status := out.status
		switch {
		case status != "":
		case cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
			status = "timeout"
			out.err = fmt.Errorf("timed out after %s: %w", r.timeout, out.err)
		default:
			status = "error"
		}
		collectorTotal.WithLabelValues(string(source), status).Inc()

		err := out.err
		if !cerrors.IsCode(err, cerrors.ErrCodeCollectorUnavailable) {
			err = collector.Unavailable(source, "collect", err)
		}
		slog.Warn("collector unavailable",
			slog.String("source", string(source)),
			slog.String("workload", id.String()),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()))
		return models.RawCollectorResult{Source: source, Err: err, CollectedAt: time.Now(), Duration: elapsed}
	}

	collectorTotal.WithLabelValues(string(source), "success").Inc()
	res := *out.result
	res.Source = source
	if res.Duration == 0 {
		res.Duration = elapsed
	}
	if res.CollectedAt.IsZero() {
		res.CollectedAt = time.Now()
	}
	slog.Debug("collector finished",
		slog.String("source", string(source)),
		slog.Duration("duration", elapsed))
	return res
}
