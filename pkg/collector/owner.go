package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ResolvePods returns the live pods making up the workload, sorted by name.
// Cluster scope returns every live pod in the namespace, or in all
// namespaces when the namespace is empty.
func ResolvePods(ctx context.Context, client kubernetes.Interface, id models.WorkloadIdentifier) ([]corev1.Pod, error) {
	if id.Kind == models.KindPod {
		pod, err := client.CoreV1().Pods(id.Namespace).Get(ctx, id.Name, metav1.GetOptions{})
		if err != nil {
			if apierrors.IsNotFound(err) {
				return nil, cerrors.Wrap(cerrors.ErrCodeNotFound, fmt.Sprintf("pod %s/%s not found", id.Namespace, id.Name), err)
			}
			return nil, fmt.Errorf("failed to get pod: %w", err)
		}
		if !isLive(pod) {
			return nil, cerrors.New(cerrors.ErrCodeNotFound, fmt.Sprintf("pod %s/%s is not running", id.Namespace, id.Name))
		}
		return []corev1.Pod{*pod}, nil
	}

	list, err := client.CoreV1().Pods(id.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	owners := &ownerResolver{client: client, replicaSets: make(map[string]string)}
	var pods []corev1.Pod
	for i := range list.Items {
		pod := &list.Items[i]
		if !isLive(pod) {
			continue
		}
		if id.Kind != models.KindCluster {
			kind, name := owners.topLevelOwner(ctx, pod)
			if kind != string(id.Kind) || name != id.Name {
				continue
			}
		}
		pods = append(pods, *pod)
	}

	if len(pods) == 0 && id.Kind != models.KindCluster {
		return nil, cerrors.New(cerrors.ErrCodeNotFound, fmt.Sprintf("no running pods for %s", id))
	}

	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Namespace != pods[j].Namespace {
			return pods[i].Namespace < pods[j].Namespace
		}
		return pods[i].Name < pods[j].Name
	})
	return pods, nil
}

func isLive(pod *corev1.Pod) bool {
	return pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed
}

// ownerResolver maps pods to their top-level controller, memoizing
// ReplicaSet lookups for the duration of one resolution.
type ownerResolver struct {
	client      kubernetes.Interface
	replicaSets map[string]string // namespace/name -> deployment name, "" when standalone
}

// topLevelOwner extracts the top-level workload (Deployment/StatefulSet/DaemonSet) from a pod
func (o *ownerResolver) topLevelOwner(ctx context.Context, pod *corev1.Pod) (kind string, name string) {
	owner := metav1.GetControllerOf(pod)
	if owner == nil {
		if len(pod.OwnerReferences) == 0 {
			return string(models.KindPod), pod.Name
		}
		owner = &pod.OwnerReferences[0]
	}

	if owner.Kind != "ReplicaSet" {
		return owner.Kind, owner.Name
	}

	if deployment := o.deploymentFor(ctx, pod.Namespace, owner.Name); deployment != "" {
		return string(models.KindDeployment), deployment
	}
	return owner.Kind, owner.Name
}

func (o *ownerResolver) deploymentFor(ctx context.Context, namespace, rsName string) string {
	key := namespace + "/" + rsName
	if name, ok := o.replicaSets[key]; ok {
		return name
	}

	var name string
	rs, err := o.client.AppsV1().ReplicaSets(namespace).Get(ctx, rsName, metav1.GetOptions{})
	switch {
	case err == nil:
		if ctrl := metav1.GetControllerOf(rs); ctrl != nil && ctrl.Kind == "Deployment" {
			name = ctrl.Name
		}
	default:
		// ReplicaSet not visible: fall back to stripping the pod-template hash.
		if lastDash := strings.LastIndex(rsName, "-"); lastDash > 0 {
			name = rsName[:lastDash]
		}
	}

	o.replicaSets[key] = name
	return name
}
