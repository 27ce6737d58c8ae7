package pricing

import (
	"context"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

const bytesPerGiB = 1024.0 * 1024.0 * 1024.0

// Provider defines the interface for cloud pricing data
type Provider interface {
	GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error)
	Name() string
}

type Config struct {
	Provider      string
	Region        string
	DefaultCPU    float64 // $/core/hour
	DefaultMemory float64 // $/GiB/hour
}

// NodeHourlyCost prices a node's allocatable capacity at the given rates
func NodeHourlyCost(info *models.CostInfo, cpuCores float64, memoryBytes int64) float64 {
	return cpuCores*info.CPUCostPerCoreHour + float64(memoryBytes)/bytesPerGiB*info.MemoryCostPerGiBHour
}
