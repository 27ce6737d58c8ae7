package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// GCPProvider implements GKE pricing
type GCPProvider struct {
	region string
}

func NewGCPProvider(region string) *GCPProvider {
	return &GCPProvider{region: region}
}

func (g *GCPProvider) Name() string {
	return "gcp"
}

// GetCostInfo returns e2-standard on-demand rates
func (g *GCPProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = g.region
	}
	return &models.CostInfo{
		Provider:             "gcp",
		Region:               region,
		NodeType:             nodeType,
		CPUCostPerCoreHour:   0.0425,
		MemoryCostPerGiBHour: 0.00575,
		Currency:             "USD",
		LastUpdated:          time.Now(),
	}, nil
}
