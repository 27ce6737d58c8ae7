package capability

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	labelRegion       = "topology.kubernetes.io/region"
	labelRegionLegacy = "failure-domain.beta.kubernetes.io/region"
)

// DetectProvider inspects one node's ProviderID and labels to find the cloud
// and region. A cluster with no nodes or no cloud markers is ProviderNone.
func DetectProvider(ctx context.Context, client kubernetes.Interface) (CloudProvider, string, error) {
	nodes, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{Limit: 1})
	if err != nil {
		return ProviderNone, "", fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(nodes.Items) == 0 {
		return ProviderNone, "", nil
	}

	provider := ProviderForNode(&nodes.Items[0])
	return provider, regionFor(provider, nodes.Items[0].Labels), nil
}

// ProviderForNode classifies a single node.
// Typical ProviderIDs:
//   - aws:///us-west-2a/i-0123456789abcdef0
//   - gce://my-project/us-central1-a/gke-cluster-node
//   - azure:///subscriptions/.../virtualMachines/...
func ProviderForNode(node *corev1.Node) CloudProvider {
	switch {
	case strings.HasPrefix(node.Spec.ProviderID, "aws://"):
		return ProviderAWS
	case strings.HasPrefix(node.Spec.ProviderID, "gce://"):
		return ProviderGCP
	case strings.HasPrefix(node.Spec.ProviderID, "azure://"):
		return ProviderAzure
	}

	labels := node.Labels
	if _, ok := labels["kubernetes.azure.com/cluster"]; ok {
		return ProviderAzure
	}
	if _, ok := labels["eks.amazonaws.com/nodegroup"]; ok {
		return ProviderAWS
	}
	if _, ok := labels["cloud.google.com/gke-nodepool"]; ok {
		return ProviderGCP
	}
	return ProviderNone
}

func regionFor(provider CloudProvider, labels map[string]string) string {
	if region, ok := labels[labelRegion]; ok {
		return region
	}
	if region, ok := labels[labelRegionLegacy]; ok {
		return region
	}

	switch provider {
	case ProviderAWS:
		return "us-east-1"
	case ProviderAzure:
		return "eastus"
	case ProviderGCP:
		return "us-central1"
	}
	return "unknown"
}
