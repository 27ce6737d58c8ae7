package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"k8s.io/client-go/kubernetes"
	statsapi "k8s.io/kubelet/pkg/apis/stats/v1alpha1"
)

// SummaryFetcher returns the raw kubelet stats summary for a node
type SummaryFetcher func(ctx context.Context, node string) ([]byte, error)

// ProxySummaryFetcher reads /stats/summary through the API server node proxy
func ProxySummaryFetcher(client kubernetes.Interface) SummaryFetcher {
	return func(ctx context.Context, node string) ([]byte, error) {
		return client.CoreV1().RESTClient().Get().
			AbsPath("/api/v1/nodes", node, "proxy", "stats", "summary").
			DoRaw(ctx)
	}
}

// NodeAgentCollector reads live usage from the kubelet on each node hosting the workload
type NodeAgentCollector struct {
	Clientset kubernetes.Interface
	Fetch     SummaryFetcher
}

func (n *NodeAgentCollector) Source() models.Source        { return models.SourceNodeAgent }
func (n *NodeAgentCollector) SupportsWorkloadMetrics() bool { return true }
func (n *NodeAgentCollector) SupportsNodeMetrics() bool     { return true }
func (n *NodeAgentCollector) SupportsLogs() bool            { return false }

// Collect sums the kubelet's latest per-container CPU and working-set memory
// for the workload's pods. Any unreachable node fails the collection. Stats
// observed outside tr are left out.
func (n *NodeAgentCollector) Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	start := time.Now()

	pods, err := ResolvePods(ctx, n.Clientset, id)
	if err != nil {
		return nil, Unavailable(models.SourceNodeAgent, "resolve pods", err)
	}

	fetch := n.Fetch
	if fetch == nil {
		fetch = ProxySummaryFetcher(n.Clientset)
	}

	wanted := make(map[string]bool, len(pods))
	nodeSet := make(map[string]bool)
	for _, pod := range pods {
		wanted[pod.Namespace+"/"+pod.Name] = true
		if pod.Spec.NodeName != "" {
			nodeSet[pod.Spec.NodeName] = true
		}
	}
	nodes := make([]string, 0, len(nodeSet))
	for node := range nodeSet {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	var cpu, memory float64
	var observed time.Time
	reported, outside := false, 0
	containers := make(map[string]models.ContainerUsage)

	for _, node := range nodes {
		raw, err := fetch(ctx, node)
		if err != nil {
			return nil, Unavailable(models.SourceNodeAgent, "fetch summary from "+node, err)
		}

		var summary statsapi.Summary
		if err := json.Unmarshal(raw, &summary); err != nil {
			return nil, Unavailable(models.SourceNodeAgent, "decode summary from "+node, err)
		}

		for _, ps := range summary.Pods {
			if !wanted[ps.PodRef.Namespace+"/"+ps.PodRef.Name] {
				continue
			}
			for _, cs := range ps.Containers {
				usage := models.ContainerUsage{}
				switch {
				case cs.CPU == nil || cs.CPU.UsageNanoCores == nil:
				case !tr.Contains(cs.CPU.Time.Time):
					outside++
				default:
					millis := float64(*cs.CPU.UsageNanoCores) / 1e6
					usage.CPU = models.Instant(millis, cs.CPU.Time.Time)
					cpu += millis
					reported = true
					if cs.CPU.Time.After(observed) {
						observed = cs.CPU.Time.Time
					}
				}
				switch {
				case cs.Memory == nil || cs.Memory.WorkingSetBytes == nil:
				case !tr.Contains(cs.Memory.Time.Time):
					outside++
				default:
					bytes := float64(*cs.Memory.WorkingSetBytes)
					usage.Memory = models.Instant(bytes, cs.Memory.Time.Time)
					memory += bytes
					reported = true
					if cs.Memory.Time.After(observed) {
						observed = cs.Memory.Time.Time
					}
				}
				if usage.CPU != nil || usage.Memory != nil {
					containers[ps.PodRef.Name+"/"+cs.Name] = usage
				}
			}
		}
	}

	if !reported && outside == 0 && len(pods) > 0 {
		return nil, Unavailable(models.SourceNodeAgent, "read usage",
			fmt.Errorf("no kubelet stats for %s", id))
	}

	result := &models.RawCollectorResult{
		Source:      models.SourceNodeAgent,
		CollectedAt: time.Now(),
	}
	if outside > 0 {
		slog.Debug("dropped usage samples outside window",
			slog.String("source", string(models.SourceNodeAgent)),
			slog.String("workload", id.String()),
			slog.Int("samples", outside))
	}
	if reported {
		result.Containers = containers
		result.CPUUsage = models.Instant(cpu, observed)
		result.MemoryUsage = models.Instant(memory, observed)
	}
	result.Duration = time.Since(start)
	return result, nil
}
