package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"
)

// AggregatorCollector reads point-in-time usage from the metrics.k8s.io API
type AggregatorCollector struct {
	Clientset kubernetes.Interface
	Metrics   metricsv.Interface
}

func (a *AggregatorCollector) Source() models.Source        { return models.SourceAggregator }
func (a *AggregatorCollector) SupportsWorkloadMetrics() bool { return true }
func (a *AggregatorCollector) SupportsNodeMetrics() bool     { return true }
func (a *AggregatorCollector) SupportsLogs() bool            { return false }

// Collect reports the latest usage sample for each resolved pod. The
// aggregator holds no history: samples are instants, and one taken outside
// tr is not reported at all.
func (a *AggregatorCollector) Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	start := time.Now()

	pods, err := ResolvePods(ctx, a.Clientset, id)
	if err != nil {
		return nil, Unavailable(models.SourceAggregator, "resolve pods", err)
	}

	podMetrics, err := a.Metrics.MetricsV1beta1().PodMetricses(id.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, Unavailable(models.SourceAggregator, "list pod metrics", err)
	}

	wanted := make(map[string]bool, len(pods))
	for _, pod := range pods {
		wanted[pod.Namespace+"/"+pod.Name] = true
	}

	var cpu, memory float64
	var observed time.Time
	containers := make(map[string]models.ContainerUsage)
	matched, outside := 0, 0
	for _, pm := range podMetrics.Items {
		if !wanted[pm.Namespace+"/"+pm.Name] {
			continue
		}
		at := pm.Timestamp.Time
		if !tr.Contains(at) {
			outside++
			continue
		}
		matched++
		if at.After(observed) {
			observed = at
		}
		for _, c := range pm.Containers {
			cpuMillis := float64(c.Usage.Cpu().MilliValue())
			memBytes := float64(c.Usage.Memory().Value())
			cpu += cpuMillis
			memory += memBytes
			containers[pm.Name+"/"+c.Name] = models.ContainerUsage{
				CPU:    models.Instant(cpuMillis, at),
				Memory: models.Instant(memBytes, at),
			}
		}
	}

	if matched == 0 && outside == 0 && len(pods) > 0 {
		return nil, Unavailable(models.SourceAggregator, "read usage",
			fmt.Errorf("no pod metrics for %s", id))
	}

	result := &models.RawCollectorResult{
		Source:      models.SourceAggregator,
		CollectedAt: time.Now(),
	}
	if outside > 0 {
		slog.Debug("dropped usage samples outside window",
			slog.String("source", string(models.SourceAggregator)),
			slog.String("workload", id.String()),
			slog.Int("pods", outside))
	}
	if matched > 0 {
		result.Containers = containers
		result.CPUUsage = models.Instant(cpu, observed)
		result.MemoryUsage = models.Instant(memory, observed)
	}
	result.Duration = time.Since(start)
	return result, nil
}
