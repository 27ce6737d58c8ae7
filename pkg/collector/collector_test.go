package collector

import (
	"context"
	"testing"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"
)

var testRange = models.TimeRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
}

func controllerRef(kind, name string) []metav1.OwnerReference {
	return []metav1.OwnerReference{{Kind: kind, Name: name, Controller: ptr.To(true)}}
}

func testPod(ns, name, node string, owners []metav1.OwnerReference, cpu, mem string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: ns, Name: name, OwnerReferences: owners},
		Spec: corev1.PodSpec{
			NodeName: node,
			Containers: []corev1.Container{{
				Name: "app",
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse(cpu),
						corev1.ResourceMemory: resource.MustParse(mem),
					},
					Limits: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse(cpu),
						corev1.ResourceMemory: resource.MustParse(mem),
					},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

// shopCluster holds a Deployment "api" with two replicas, a StatefulSet
// "db", a standalone pod, and a completed pod that must be ignored.
func shopCluster() []runtime.Object {
	completed := testPod("shop", "api-7d9f8-done", "node-b", controllerRef("ReplicaSet", "api-7d9f8"), "100m", "64Mi")
	completed.Status.Phase = corev1.PodSucceeded

	return []runtime.Object{
		&appsv1.ReplicaSet{ObjectMeta: metav1.ObjectMeta{
			Namespace: "shop", Name: "api-7d9f8", OwnerReferences: controllerRef("Deployment", "api"),
		}},
		testPod("shop", "api-7d9f8-x1", "node-b", controllerRef("ReplicaSet", "api-7d9f8"), "250m", "256Mi"),
		testPod("shop", "api-7d9f8-x2", "node-a", controllerRef("ReplicaSet", "api-7d9f8"), "250m", "256Mi"),
		testPod("shop", "db-0", "node-c", controllerRef("StatefulSet", "db"), "1", "2Gi"),
		testPod("shop", "debug", "node-a", nil, "50m", "32Mi"),
		completed,
	}
}

func TestResolvePods(t *testing.T) {
	client := fake.NewSimpleClientset(shopCluster()...)

	tests := []struct {
		name    string
		id      models.WorkloadIdentifier
		want    []string
		wantErr cerrors.ErrorCode
	}{
		{"deployment via replicaset", models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: models.KindDeployment}, []string{"api-7d9f8-x1", "api-7d9f8-x2"}, ""},
		{"statefulset", models.WorkloadIdentifier{Namespace: "shop", Name: "db", Kind: models.KindStatefulSet}, []string{"db-0"}, ""},
		{"bare pod", models.WorkloadIdentifier{Namespace: "shop", Name: "debug", Kind: models.KindPod}, []string{"debug"}, ""},
		{"namespace scope", models.WorkloadIdentifier{Namespace: "shop", Kind: models.KindCluster}, []string{"api-7d9f8-x1", "api-7d9f8-x2", "db-0", "debug"}, ""},
		{"missing deployment", models.WorkloadIdentifier{Namespace: "shop", Name: "web", Kind: models.KindDeployment}, nil, cerrors.ErrCodeNotFound},
		{"missing pod", models.WorkloadIdentifier{Namespace: "shop", Name: "nope", Kind: models.KindPod}, nil, cerrors.ErrCodeNotFound},
		{"completed pod", models.WorkloadIdentifier{Namespace: "shop", Name: "api-7d9f8-done", Kind: models.KindPod}, nil, cerrors.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pods, err := ResolvePods(context.Background(), client, tt.id)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, cerrors.IsCode(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			var names []string
			for _, p := range pods {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestResolvePodsFallsBackToHashStripping(t *testing.T) {
	// ReplicaSet object not visible to the caller
	client := fake.NewSimpleClientset(
		testPod("shop", "web-5c6b7-aa", "node-a", controllerRef("ReplicaSet", "web-5c6b7"), "100m", "64Mi"),
	)

	pods, err := ResolvePods(context.Background(), client,
		models.WorkloadIdentifier{Namespace: "shop", Name: "web", Kind: models.KindDeployment})
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "web-5c6b7-aa", pods[0].Name)
}

func TestCoreAPICollector(t *testing.T) {
	c := &CoreAPICollector{Clientset: fake.NewSimpleClientset(shopCluster()...)}

	assert.Equal(t, models.SourceCoreAPI, c.Source())
	assert.True(t, c.SupportsLogs())

	res, err := c.Collect(context.Background(),
		models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: models.KindDeployment}, testRange)
	require.NoError(t, err)

	assert.Equal(t, int64(500), *res.CPURequestMillis)
	assert.Equal(t, int64(512*1024*1024), *res.MemoryRequestBytes)
	assert.Equal(t, int64(500), *res.CPULimitMillis)
	assert.Equal(t, []string{"api-7d9f8-x1", "api-7d9f8-x2"}, res.Pods)
	// equal requests: lexically smallest node wins
	assert.Equal(t, "node-a", res.NodeName)

	require.Len(t, res.Logs, 2)
	assert.Equal(t, "api-7d9f8-x1", res.Logs[0].Pod)
	assert.Equal(t, "app", res.Logs[0].Container)
	assert.NotEmpty(t, res.Logs[0].Data)
	assert.False(t, res.Failed())
}

func TestCoreAPICollectorClusterScope(t *testing.T) {
	c := &CoreAPICollector{Clientset: fake.NewSimpleClientset(shopCluster()...)}

	res, err := c.Collect(context.Background(), models.WorkloadIdentifier{Namespace: "shop", Kind: models.KindCluster}, testRange)
	require.NoError(t, err)

	assert.Equal(t, int64(250+250+1000+50), *res.CPURequestMillis)
	assert.Empty(t, res.NodeName)
	assert.Empty(t, res.Logs)
}

func TestCoreAPICollectorUnavailable(t *testing.T) {
	c := &CoreAPICollector{Clientset: fake.NewSimpleClientset()}

	res, err := c.Collect(context.Background(),
		models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: models.KindDeployment}, testRange)
	assert.Nil(t, res)
	assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeCollectorUnavailable))
}

func TestPlacement(t *testing.T) {
	pods := []corev1.Pod{
		*testPod("ns", "a", "node-z", nil, "100m", "1Mi"),
		*testPod("ns", "b", "node-y", nil, "300m", "1Mi"),
		*testPod("ns", "c", "", nil, "900m", "1Mi"), // unscheduled
		*testPod("ns", "d", "node-x", nil, "300m", "1Mi"),
	}
	assert.Equal(t, "node-x", placement(pods))
	assert.Empty(t, placement(nil))
}
