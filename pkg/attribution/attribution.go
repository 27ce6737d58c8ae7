// Package attribution converts node cost and a workload's resource requests
// into the workload's share of that cost.
package attribution

import (
	"fmt"
	"log/slog"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

const (
	// DefaultCPUWeight and DefaultMemoryWeight split the allocation between
	// resources. CPU usually carries the higher unit price.
	DefaultCPUWeight    = 0.6
	DefaultMemoryWeight = 0.4

	HoursPerDay = 24.0
)

// Engine attributes node cost by weighted request share.
type Engine struct {
	CPUWeight    float64
	MemoryWeight float64
	Currency     string
}

// NewEngine creates an engine; zero weights fall back to 0.6/0.4
func NewEngine(cpuWeight, memoryWeight float64) *Engine {
	if cpuWeight == 0 && memoryWeight == 0 {
		cpuWeight, memoryWeight = DefaultCPUWeight, DefaultMemoryWeight
	}
	return &Engine{CPUWeight: cpuWeight, MemoryWeight: memoryWeight, Currency: "USD"}
}

// Attribute computes the workload's share of its node's cost. Cluster-kind
// workloads are attributed against the sum of all nodes. A workload whose
// node cannot be located, or whose node reports no capacity, yields a
// NODE_UNRESOLVED error rather than a zero cost.
func (e *Engine) Attribute(m *models.WorkloadMetrics, nodes []models.NodeCostInfo) (*models.CostBreakdown, error) {
	if m == nil || m.NoData {
		return nil, cerrors.New(cerrors.ErrCodeNoDataAvailable, "no resource requests to attribute")
	}

	node, err := e.resolveNode(m, nodes)
	if err != nil {
		return nil, err
	}
	if node.AllocatableCPU <= 0 || node.AllocatableMemory <= 0 {
		return nil, cerrors.NewWithContext(cerrors.ErrCodeNodeUnresolved,
			fmt.Sprintf("node %s reports no allocatable capacity", node.NodeName),
			map[string]any{"node": node.NodeName})
	}

	cpuCores := float64(m.CPURequestMillis) / 1000.0
	cpuRatio := cpuCores / node.AllocatableCPU
	memRatio := float64(m.MemoryRequestBytes) / float64(node.AllocatableMemory)

	raw := e.CPUWeight*cpuRatio + e.MemoryWeight*memRatio
	ratio := clamp(raw, 0, 1)

	// Drivers are scaled so they sum to the clamped share.
	scale := 1.0
	if raw > 0 {
		scale = ratio / raw
	}

	hourly := node.HourlyCost * ratio
	breakdown := &models.CostBreakdown{
		Workload:          m.Workload,
		NodeName:          node.NodeName,
		AllocationRatio:   ratio,
		HourlyCost:        hourly,
		DailyCost:         hourly * HoursPerDay,
		MonthlyProjection: hourly * models.HoursPerMonth,
		Currency:          e.Currency,
		CostDrivers: []models.CostDriver{
			{
				Resource:    "cpu",
				Requested:   cpuCores,
				Allocatable: node.AllocatableCPU,
				Ratio:       cpuRatio,
				Weight:      e.CPUWeight,
				HourlyCost:  node.HourlyCost * e.CPUWeight * cpuRatio * scale,
			},
			{
				Resource:    "memory",
				Requested:   float64(m.MemoryRequestBytes),
				Allocatable: float64(node.AllocatableMemory),
				Ratio:       memRatio,
				Weight:      e.MemoryWeight,
				HourlyCost:  node.HourlyCost * e.MemoryWeight * memRatio * scale,
			},
		},
	}

	if raw > 1 {
		slog.Warn("workload requests exceed node capacity, allocation clamped",
			slog.String("workload", m.Workload.String()),
			slog.String("node", node.NodeName),
			slog.Float64("raw_ratio", raw))
	}
	return breakdown, nil
}

func (e *Engine) resolveNode(m *models.WorkloadMetrics, nodes []models.NodeCostInfo) (models.NodeCostInfo, error) {
	if m.Workload.Kind == models.KindCluster {
		if len(nodes) == 0 {
			return models.NodeCostInfo{}, cerrors.New(cerrors.ErrCodeNodeUnresolved, "billing returned no nodes")
		}
		return sumNodes(nodes), nil
	}

	if m.NodeName == "" {
		return models.NodeCostInfo{}, cerrors.NewWithContext(cerrors.ErrCodeNodeUnresolved,
			"workload placement is unknown", map[string]any{"workload": m.Workload.String()})
	}
	for _, n := range nodes {
		if n.NodeName == m.NodeName {
			return n, nil
		}
	}
	return models.NodeCostInfo{}, cerrors.NewWithContext(cerrors.ErrCodeNodeUnresolved,
		fmt.Sprintf("node %s not found in billing data", m.NodeName),
		map[string]any{"node": m.NodeName})
}

// sumNodes folds the cluster into one synthetic node
func sumNodes(nodes []models.NodeCostInfo) models.NodeCostInfo {
	total := models.NodeCostInfo{NodeName: "cluster"}
	for _, n := range nodes {
		total.HourlyCost += n.HourlyCost
		total.AllocatableCPU += n.AllocatableCPU
		total.AllocatableMemory += n.AllocatableMemory
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
