// Package collector fetches workload telemetry from one source per
// implementation. Every collector reports failure as a COLLECTOR_UNAVAILABLE
// StructuredError and never returns a partial result alongside an error.
package collector

import (
	"context"
	"fmt"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// Collector retrieves metrics for a workload from exactly one source.
type Collector interface {
	Source() models.Source
	SupportsWorkloadMetrics() bool
	SupportsNodeMetrics() bool
	SupportsLogs() bool
	Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error)
}

// Unavailable wraps a backend failure with the source tag.
func Unavailable(source models.Source, op string, cause error) error {
	return cerrors.WrapWithContext(cerrors.ErrCodeCollectorUnavailable,
		fmt.Sprintf("%s collector: %s", source, op), cause,
		map[string]any{"source": string(source)})
}
