package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// DefaultProvider provides fallback pricing for on-prem or unknown clouds
type DefaultProvider struct {
	cpuCost    float64
	memoryCost float64
}

func NewDefaultProvider(cpuCost, memoryCost float64) *DefaultProvider {
	if cpuCost == 0 {
		cpuCost = 0.0315
	}
	if memoryCost == 0 {
		memoryCost = 0.0041
	}
	return &DefaultProvider{
		cpuCost:    cpuCost,
		memoryCost: memoryCost,
	}
}

func (d *DefaultProvider) Name() string {
	return "default"
}

func (d *DefaultProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	return &models.CostInfo{
		Provider:             "default",
		Region:               "unknown",
		NodeType:             nodeType,
		CPUCostPerCoreHour:   d.cpuCost,
		MemoryCostPerGiBHour: d.memoryCost,
		Currency:             "USD",
		LastUpdated:          time.Now(),
	}, nil
}
