package attribution

import (
	"math"
	"testing"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = int64(1) << 30

func metrics(kind models.WorkloadKind, node string, cpuMillis, memBytes int64) *models.WorkloadMetrics {
	return &models.WorkloadMetrics{
		Workload:           models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: kind},
		CPURequestMillis:   cpuMillis,
		MemoryRequestBytes: memBytes,
		NodeName:           node,
	}
}

var nodes = []models.NodeCostInfo{
	{NodeName: "node-a", HourlyCost: 0.192, AllocatableCPU: 4, AllocatableMemory: 16 * gib},
	{NodeName: "node-b", HourlyCost: 0.384, AllocatableCPU: 8, AllocatableMemory: 32 * gib},
}

func TestAttributeScenarioE(t *testing.T) {
	b, err := NewEngine(0.6, 0.4).Attribute(metrics(models.KindDeployment, "node-a", 500, 2*gib), nodes)
	require.NoError(t, err)

	assert.InDelta(t, 0.125, b.AllocationRatio, 1e-12)
	assert.InDelta(t, 0.024, b.HourlyCost, 1e-12)
	assert.InDelta(t, 0.576, b.DailyCost, 1e-12)
	assert.InDelta(t, 17.52, b.MonthlyProjection, 1e-9)
	assert.Equal(t, "node-a", b.NodeName)
	assert.Equal(t, "USD", b.Currency)

	require.Len(t, b.CostDrivers, 2)
	assert.InDelta(t, 0.125, b.CostDrivers[0].Ratio, 1e-12)
	assert.InDelta(t, b.HourlyCost, b.CostDrivers[0].HourlyCost+b.CostDrivers[1].HourlyCost, 1e-12)
}

func TestAllocationRatioIsClamped(t *testing.T) {
	e := NewEngine(0.6, 0.4)

	tests := []struct {
		name      string
		cpuMillis int64
		memBytes  int64
		want      float64
	}{
		{"over-subscribed cpu", 16000, 2 * gib, 1},
		{"over-subscribed both", 64000, 128 * gib, 1},
		{"zero requests", 0, 0, 0},
		{"exactly full", 4000, 16 * gib, 1},
		{"cpu only", 2000, 0, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := e.Attribute(metrics(models.KindPod, "node-a", tt.cpuMillis, tt.memBytes), nodes)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, b.AllocationRatio, 1e-12)
			assert.GreaterOrEqual(t, b.AllocationRatio, 0.0)
			assert.LessOrEqual(t, b.AllocationRatio, 1.0)
			assert.LessOrEqual(t, b.HourlyCost, 0.192+1e-12)
			assert.InDelta(t, b.HourlyCost, b.CostDrivers[0].HourlyCost+b.CostDrivers[1].HourlyCost, 1e-12)
		})
	}
}

func TestAttributeRatioBoundsOverManyInputs(t *testing.T) {
	e := NewEngine(0.6, 0.4)
	for cpu := int64(0); cpu <= 20000; cpu += 1250 {
		for mem := int64(0); mem <= 64*gib; mem += 4 * gib {
			b, err := e.Attribute(metrics(models.KindPod, "node-a", cpu, mem), nodes)
			require.NoError(t, err)
			if b.AllocationRatio < 0 || b.AllocationRatio > 1 || math.IsNaN(b.AllocationRatio) {
				t.Fatalf("ratio %v out of bounds for cpu=%d mem=%d", b.AllocationRatio, cpu, mem)
			}
		}
	}
}

func TestAttributeNodeUnresolved(t *testing.T) {
	e := NewEngine(0.6, 0.4)

	tests := []struct {
		name  string
		m     *models.WorkloadMetrics
		nodes []models.NodeCostInfo
	}{
		{"placement unknown", metrics(models.KindDeployment, "", 500, gib), nodes},
		{"node evicted since measurement", metrics(models.KindDeployment, "node-z", 500, gib), nodes},
		{"no capacity", metrics(models.KindDeployment, "node-c", 500, gib), []models.NodeCostInfo{{NodeName: "node-c", HourlyCost: 1}}},
		{"cluster without nodes", metrics(models.KindCluster, "", 500, gib), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := e.Attribute(tt.m, tt.nodes)
			assert.Nil(t, b)
			assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeNodeUnresolved), "got %v", err)
		})
	}
}

func TestAttributeNoData(t *testing.T) {
	m := metrics(models.KindDeployment, "node-a", 500, gib)
	m.NoData = true

	_, err := NewEngine(0.6, 0.4).Attribute(m, nodes)
	assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeNoDataAvailable))
}

func TestAttributeCluster(t *testing.T) {
	// 12 cores / 48Gi across both nodes, $0.576/h
	b, err := NewEngine(0.6, 0.4).Attribute(metrics(models.KindCluster, "", 6000, 24*gib), nodes)
	require.NoError(t, err)

	assert.Equal(t, "cluster", b.NodeName)
	assert.InDelta(t, 0.5, b.AllocationRatio, 1e-12)
	assert.InDelta(t, 0.288, b.HourlyCost, 1e-12)
}

func TestNewEngineDefaults(t *testing.T) {
	e := NewEngine(0, 0)
	assert.Equal(t, DefaultCPUWeight, e.CPUWeight)
	assert.Equal(t, DefaultMemoryWeight, e.MemoryWeight)
}
