package pricing

import (
	"context"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
)

// AWSProvider implements AWS EKS pricing
type AWSProvider struct {
	region string
}

func NewAWSProvider(region string) *AWSProvider {
	return &AWSProvider{region: region}
}

func (a *AWSProvider) Name() string {
	return "aws"
}

// GetCostInfo returns on-demand m5/t3 averages; nodeType is not priced individually.
func (a *AWSProvider) GetCostInfo(ctx context.Context, region, nodeType string) (*models.CostInfo, error) {
	if region == "" {
		region = a.region
	}
	return &models.CostInfo{
		Provider:             "aws",
		Region:               region,
		NodeType:             nodeType,
		CPUCostPerCoreHour:   0.0452,
		MemoryCostPerGiBHour: 0.00616,
		Currency:             "USD",
		LastUpdated:          time.Now(),
	}, nil
}
