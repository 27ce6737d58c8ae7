package billing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/pricing"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

var window = models.TimeRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
}

func node(name, instanceType, region, cpu, memory string) *corev1.Node {
	labels := map[string]string{}
	if instanceType != "" {
		labels[labelInstanceType] = instanceType
	}
	if region != "" {
		labels[labelRegion] = region
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status: corev1.NodeStatus{
			Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(memory),
			},
		},
	}
}

// recordingProvider returns fixed rates and counts lookups
type recordingProvider struct {
	calls atomic.Int32
	err   error
}

func (r *recordingProvider) Name() string { return "recording" }

func (r *recordingProvider) GetCostInfo(_ context.Context, region, nodeType string) (*models.CostInfo, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &models.CostInfo{Region: region, NodeType: nodeType, CPUCostPerCoreHour: 0.04, MemoryCostPerGiBHour: 0.005, Currency: "EUR"}, nil
}

func TestPricingClientNodeCosts(t *testing.T) {
	cs := fake.NewSimpleClientset(
		node("node-b", "m5.xlarge", "us-east-1", "4", "16Gi"),
		node("node-a", "m5.xlarge", "us-east-1", "4", "16Gi"),
		node("node-c", "", "", "3500m", "8Gi"),
	)
	provider := &recordingProvider{}
	client := &PricingClient{Clientset: cs, Provider: provider, Region: "eu-west-1"}

	costs, err := client.GetNodeCosts(context.Background(), "prod", window)
	require.NoError(t, err)
	require.Len(t, costs, 3)

	assert.Equal(t, "node-a", costs[0].NodeName)
	assert.Equal(t, "node-b", costs[1].NodeName)
	assert.InDelta(t, 4*0.04+16*0.005, costs[0].HourlyCost, 1e-12)
	assert.Equal(t, 4.0, costs[0].AllocatableCPU)
	assert.Equal(t, int64(16)<<30, costs[0].AllocatableMemory)
	assert.Equal(t, "m5.xlarge", costs[0].InstanceType)

	assert.Equal(t, 3.5, costs[2].AllocatableCPU)
	assert.Equal(t, "eu-west-1", costs[2].Region, "falls back to the configured region")

	assert.Equal(t, int32(2), provider.calls.Load(), "rates are looked up once per region and type")
}

func TestPricingClientClusterCosts(t *testing.T) {
	cs := fake.NewSimpleClientset(
		node("node-a", "", "", "4", "16Gi"),
		node("node-b", "", "", "8", "32Gi"),
	)
	client := &PricingClient{Clientset: cs, Provider: pricing.NewDefaultProvider(0, 0)}

	b, err := client.GetClusterCosts(context.Background(), window)
	require.NoError(t, err)

	hourly := 12*0.0315 + 48*0.0041
	assert.Equal(t, "default", b.Provider)
	assert.Equal(t, "USD", b.Currency)
	assert.InDelta(t, hourly, b.HourlyCost, 1e-12)
	assert.InDelta(t, hourly*24, b.DailyCost, 1e-12)
	assert.InDelta(t, hourly*730, b.MonthlyCost, 1e-9)
	assert.Len(t, b.Nodes, 2)
}

func TestPricingClientErrors(t *testing.T) {
	t.Run("node listing fails", func(t *testing.T) {
		cs := fake.NewSimpleClientset()
		cs.PrependReactor("list", "nodes", func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("apiserver down")
		})
		client := &PricingClient{Clientset: cs, Provider: pricing.NewDefaultProvider(0, 0)}

		_, err := client.GetNodeCosts(context.Background(), "prod", window)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeBillingUnreachable), "got %v", err)
	})

	t.Run("pricing lookup fails", func(t *testing.T) {
		cs := fake.NewSimpleClientset(node("node-a", "", "", "4", "16Gi"))
		client := &PricingClient{Clientset: cs, Provider: &recordingProvider{err: errors.New("price api 503")}}

		_, err := client.GetClusterCosts(context.Background(), window)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeBillingUnreachable), "got %v", err)
	})
}

// countingClient is a Client that counts backend calls
type countingClient struct {
	nodeCalls    atomic.Int32
	clusterCalls atomic.Int32
	err          error
}

func (c *countingClient) GetNodeCosts(context.Context, string, models.TimeRange) ([]models.NodeCostInfo, error) {
	c.nodeCalls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []models.NodeCostInfo{{NodeName: "node-a", HourlyCost: 0.192, AllocatableCPU: 4, AllocatableMemory: 16 << 30}}, nil
}

func (c *countingClient) GetClusterCosts(context.Context, models.TimeRange) (*models.ClusterCostBreakdown, error) {
	c.clusterCalls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return Summarize("test", "USD", []models.NodeCostInfo{{NodeName: "node-a", HourlyCost: 0.5}}), nil
}

func TestCachedClientMemory(t *testing.T) {
	next := &countingClient{}
	c := &CachedClient{Next: next, Store: NewMemoryStore(time.Minute), TTL: time.Minute}
	ctx := context.Background()

	first, err := c.GetNodeCosts(ctx, "prod", window)
	require.NoError(t, err)
	second, err := c.GetNodeCosts(ctx, "prod", window)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), next.nodeCalls.Load())

	// same hour bucket
	shifted := models.TimeRange{Start: window.Start.Add(10 * time.Minute), End: window.End.Add(10 * time.Minute)}
	_, err = c.GetNodeCosts(ctx, "prod", shifted)
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.nodeCalls.Load())

	_, err = c.GetNodeCosts(ctx, "staging", window)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.nodeCalls.Load(), "clusters are cached separately")

	for range 2 {
		b, err := c.GetClusterCosts(ctx, window)
		require.NoError(t, err)
		assert.InDelta(t, 0.5*730, b.MonthlyCost, 1e-9)
	}
	assert.Equal(t, int32(1), next.clusterCalls.Load())
}

func TestCachedClientErrorsAreNotCached(t *testing.T) {
	next := &countingClient{err: errors.New("connection reset")}
	c := &CachedClient{Next: next, Store: NewMemoryStore(time.Minute), TTL: time.Minute}

	for range 2 {
		_, err := c.GetNodeCosts(context.Background(), "prod", window)
		assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeBillingUnreachable))
	}
	assert.Equal(t, int32(2), next.nodeCalls.Load())
}

func TestCachedClientBypassesUnreachableRedis(t *testing.T) {
	opts := &redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond}

	_, err := NewRedisStore(context.Background(), opts)
	require.Error(t, err)

	store := newRedisStore(redis.NewClient(opts))
	defer store.Close()

	next := &countingClient{}
	c := &CachedClient{Next: next, Store: store, TTL: time.Minute}
	costs, err := c.GetNodeCosts(context.Background(), "prod", window)
	require.NoError(t, err)
	assert.Len(t, costs, 1)
	assert.Equal(t, int32(1), next.nodeCalls.Load())
}
