package collector

import (
	"context"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// QueryEngineCollector reads usage history from an in-cluster Prometheus
type QueryEngineCollector struct {
	prom promCollector
}

func NewQueryEngineCollector(querier *PromQuerier) *QueryEngineCollector {
	return &QueryEngineCollector{prom: promCollector{
		source:  models.SourceQueryEngine,
		querier: querier,
		schema:  KubernetesSchema,
	}}
}

func (q *QueryEngineCollector) Source() models.Source        { return models.SourceQueryEngine }
func (q *QueryEngineCollector) SupportsWorkloadMetrics() bool { return true }
func (q *QueryEngineCollector) SupportsNodeMetrics() bool     { return true }
func (q *QueryEngineCollector) SupportsLogs() bool            { return false }

func (q *QueryEngineCollector) Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	return q.prom.collect(ctx, id, tr)
}
