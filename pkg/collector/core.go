package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

// DefaultLogLimitBytes caps the log text fetched per container
const DefaultLogLimitBytes int64 = 4 << 20

// CoreAPICollector reads pod specs, placement and container logs from the
// API server. It is the one collector every cluster supports.
type CoreAPICollector struct {
	Clientset     kubernetes.Interface
	LogLimitBytes int64
}

func (c *CoreAPICollector) Source() models.Source        { return models.SourceCoreAPI }
func (c *CoreAPICollector) SupportsWorkloadMetrics() bool { return true }
func (c *CoreAPICollector) SupportsNodeMetrics() bool     { return true }
func (c *CoreAPICollector) SupportsLogs() bool            { return true }

// Collect sums requests and limits over the workload's pods and records
// placement. Logs are fetched for workloads but not for cluster scope.
func (c *CoreAPICollector) Collect(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange) (*models.RawCollectorResult, error) {
	start := time.Now()

	pods, err := ResolvePods(ctx, c.Clientset, id)
	if err != nil {
		return nil, Unavailable(models.SourceCoreAPI, "resolve pods", err)
	}

	var cpuReq, memReq, cpuLim, memLim int64
	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.Name)
		for _, container := range pod.Spec.Containers {
			cpuReq += container.Resources.Requests.Cpu().MilliValue()
			memReq += container.Resources.Requests.Memory().Value()
			cpuLim += container.Resources.Limits.Cpu().MilliValue()
			memLim += container.Resources.Limits.Memory().Value()
		}
	}

	result := &models.RawCollectorResult{
		Source:             models.SourceCoreAPI,
		CPURequestMillis:   ptr.To(cpuReq),
		MemoryRequestBytes: ptr.To(memReq),
		CPULimitMillis:     ptr.To(cpuLim),
		MemoryLimitBytes:   ptr.To(memLim),
		Pods:               names,
	}

	if id.Kind != models.KindCluster {
		result.NodeName = placement(pods)

		logs, err := c.fetchLogs(ctx, pods, tr)
		if err != nil {
			return nil, Unavailable(models.SourceCoreAPI, "fetch logs", err)
		}
		result.Logs = logs
	}

	result.CollectedAt = time.Now()
	result.Duration = time.Since(start)
	return result, nil
}

// placement picks the node of the pod with the largest CPU request; ties go
// to the lexically smallest node name. Unscheduled pods are ignored.
func placement(pods []corev1.Pod) string {
	var node string
	var best int64 = -1
	for _, pod := range pods {
		if pod.Spec.NodeName == "" {
			continue
		}
		var cpu int64
		for _, container := range pod.Spec.Containers {
			cpu += container.Resources.Requests.Cpu().MilliValue()
		}
		if cpu > best || (cpu == best && pod.Spec.NodeName < node) {
			best, node = cpu, pod.Spec.NodeName
		}
	}
	return node
}

// fetchLogs pulls timestamped logs since the window start. A container whose
// logs cannot be read is skipped; only cancellation fails the fetch.
func (c *CoreAPICollector) fetchLogs(ctx context.Context, pods []corev1.Pod, tr models.TimeRange) ([]models.LogPayload, error) {
	limit := c.LogLimitBytes
	if limit <= 0 {
		limit = DefaultLogLimitBytes
	}
	since := metav1.NewTime(tr.Start)

	var logs []models.LogPayload
	for _, pod := range pods {
		for _, container := range pod.Spec.Containers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			raw, err := c.Clientset.CoreV1().Pods(pod.Namespace).GetLogs(pod.Name, &corev1.PodLogOptions{
				Container:  container.Name,
				SinceTime:  &since,
				Timestamps: true,
				LimitBytes: ptr.To(limit),
			}).DoRaw(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Debug("skipping container logs",
					slog.String("pod", pod.Name),
					slog.String("container", container.Name),
					slog.String("error", err.Error()))
				continue
			}
			if len(raw) == 0 {
				continue
			}
			logs = append(logs, models.LogPayload{Pod: pod.Name, Container: container.Name, Data: string(raw)})
		}
	}
	return logs, nil
}
