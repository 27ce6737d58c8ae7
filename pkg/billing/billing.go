// Package billing answers what cluster nodes cost. The cost attribution
// engine consumes it through Client and does not know which cloud backs it.
package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/pricing"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	labelInstanceType     = "node.kubernetes.io/instance-type"
	labelInstanceTypeBeta = "beta.kubernetes.io/instance-type"
	labelRegion           = "topology.kubernetes.io/region"
)

// Client is the billing collaborator contract
type Client interface {
	GetNodeCosts(ctx context.Context, clusterID string, tr models.TimeRange) ([]models.NodeCostInfo, error)
	GetClusterCosts(ctx context.Context, tr models.TimeRange) (*models.ClusterCostBreakdown, error)
}

// Unreachable wraps a billing backend failure
func Unreachable(op string, cause error) error {
	return cerrors.Wrap(cerrors.ErrCodeBillingUnreachable, "billing: "+op, cause)
}

// PricingClient prices each node's allocatable capacity with a pricing
// provider's per-core and per-GiB rates.
type PricingClient struct {
	Clientset kubernetes.Interface
	Provider  pricing.Provider
	Region    string
}

// GetNodeCosts returns one entry per node, sorted by name
func (p *PricingClient) GetNodeCosts(ctx context.Context, clusterID string, tr models.TimeRange) ([]models.NodeCostInfo, error) {
	costs, _, err := p.nodeCosts(ctx)
	return costs, err
}

// GetClusterCosts totals node costs; daily is hourly x24 and monthly x730
func (p *PricingClient) GetClusterCosts(ctx context.Context, tr models.TimeRange) (*models.ClusterCostBreakdown, error) {
	nodes, currency, err := p.nodeCosts(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(p.Provider.Name(), currency, nodes), nil
}

// Summarize builds a cluster breakdown from node costs
func Summarize(provider, currency string, nodes []models.NodeCostInfo) *models.ClusterCostBreakdown {
	out := &models.ClusterCostBreakdown{
		Provider:     provider,
		Currency:     currency,
		Nodes:        nodes,
		CalculatedAt: time.Now(),
	}
	for _, n := range nodes {
		out.HourlyCost += n.HourlyCost
	}
	out.DailyCost = out.HourlyCost * 24
	out.MonthlyCost = out.HourlyCost * models.HoursPerMonth
	return out
}

func (p *PricingClient) nodeCosts(ctx context.Context) ([]models.NodeCostInfo, string, error) {
	list, err := p.Clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, "", Unreachable("list nodes", err)
	}

	rates := make(map[string]*models.CostInfo)
	currency := "USD"
	costs := make([]models.NodeCostInfo, 0, len(list.Items))
	for i := range list.Items {
		node := &list.Items[i]
		instanceType := nodeLabel(node, labelInstanceType, labelInstanceTypeBeta)
		region := nodeLabel(node, labelRegion)
		if region == "" {
			region = p.Region
		}

		key := region + "/" + instanceType
		info, ok := rates[key]
		if !ok {
			info, err = p.Provider.GetCostInfo(ctx, region, instanceType)
			if err != nil {
				return nil, "", Unreachable(fmt.Sprintf("price %s in %s", instanceType, region), err)
			}
			rates[key] = info
		}
		if info.Currency != "" {
			currency = info.Currency
		}

		cpu := float64(node.Status.Allocatable.Cpu().MilliValue()) / 1000.0
		memory := node.Status.Allocatable.Memory().Value()
		costs = append(costs, models.NodeCostInfo{
			NodeName:          node.Name,
			HourlyCost:        pricing.NodeHourlyCost(info, cpu, memory),
			AllocatableCPU:    cpu,
			AllocatableMemory: memory,
			InstanceType:      instanceType,
			Region:            region,
		})
	}

	sort.Slice(costs, func(i, j int) bool { return costs[i].NodeName < costs[j].NodeName })
	return costs, currency, nil
}

func nodeLabel(node *corev1.Node, keys ...string) string {
	for _, k := range keys {
		if v := node.Labels[k]; v != "" {
			return v
		}
	}
	return ""
}
