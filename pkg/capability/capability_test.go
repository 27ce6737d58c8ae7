package capability

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	fakediscovery "k8s.io/client-go/discovery/fake"
	"k8s.io/client-go/kubernetes/fake"
)

func TestProviderForNode(t *testing.T) {
	tests := []struct {
		name string
		node corev1.Node
		want CloudProvider
	}{
		{"aws provider id", corev1.Node{Spec: corev1.NodeSpec{ProviderID: "aws:///us-west-2a/i-0123"}}, ProviderAWS},
		{"gce provider id", corev1.Node{Spec: corev1.NodeSpec{ProviderID: "gce://proj/us-central1-a/node"}}, ProviderGCP},
		{"azure provider id", corev1.Node{Spec: corev1.NodeSpec{ProviderID: "azure:///subscriptions/x"}}, ProviderAzure},
		{"aks label", corev1.Node{ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"kubernetes.azure.com/cluster": "c"}}}, ProviderAzure},
		{"eks label", corev1.Node{ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"eks.amazonaws.com/nodegroup": "ng"}}}, ProviderAWS},
		{"gke label", corev1.Node{ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"cloud.google.com/gke-nodepool": "p"}}}, ProviderGCP},
		{"bare metal", corev1.Node{Spec: corev1.NodeSpec{ProviderID: "kind://docker/kind/kind-control-plane"}}, ProviderNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProviderForNode(&tt.node))
		})
	}
}

func TestClusterDetector(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   "node-1",
			Labels: map[string]string{labelRegion: "eu-west-1"},
		},
		Spec: corev1.NodeSpec{ProviderID: "aws:///eu-west-1a/i-abc"},
	})
	client.Discovery().(*fakediscovery.FakeDiscovery).Resources = []*metav1.APIResourceList{
		{GroupVersion: "v1"},
		{GroupVersion: "metrics.k8s.io/v1beta1"},
	}

	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := &ClusterDetector{
		Clientset:        client,
		QueryEngineProbe: func(context.Context) error { return nil },
		Now:              func() time.Time { return fixed },
	}

	caps, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.True(t, caps.HasMetricsAggregator)
	assert.True(t, caps.HasQueryEngine)
	assert.Equal(t, ProviderAWS, caps.CloudProvider)
	assert.Equal(t, "eu-west-1", caps.Region)
	assert.Equal(t, fixed, caps.DetectedAt)
}

func TestClusterDetectorDegradesToCoreOnly(t *testing.T) {
	d := &ClusterDetector{
		Clientset:        fake.NewSimpleClientset(),
		QueryEngineProbe: func(context.Context) error { return errors.New("connection refused") },
	}

	caps, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.False(t, caps.HasMetricsAggregator)
	assert.False(t, caps.HasQueryEngine)
	assert.Equal(t, ProviderNone, caps.CloudProvider)
	assert.False(t, caps.IsManaged())
}

func TestClusterDetectorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&ClusterDetector{Clientset: fake.NewSimpleClientset()}).Detect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingDetector struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (d *countingDetector) Detect(ctx context.Context) (*Capabilities, error) {
	n := d.calls.Add(1)
	if d.block != nil {
		<-d.block
	}
	if d.err != nil {
		return nil, d.err
	}
	return &Capabilities{HasQueryEngine: n > 1}, nil
}

type fakeClock struct{ nanos atomic.Int64 }

func (c *fakeClock) now() time.Time { return time.Unix(0, c.nanos.Load()) }
func (c *fakeClock) advance(d time.Duration) { c.nanos.Add(int64(d)) }

func TestCacheServesWithinTTL(t *testing.T) {
	det := &countingDetector{}
	clock := &fakeClock{}
	c := NewCache(det, time.Minute)
	c.now = clock.now

	for i := 0; i < 5; i++ {
		caps, err := c.Get(context.Background())
		require.NoError(t, err)
		assert.False(t, caps.HasQueryEngine)
	}
	assert.Equal(t, int32(1), det.calls.Load())
}

func TestCacheSingleFlightOnFirstLoad(t *testing.T) {
	det := &countingDetector{block: make(chan struct{})}
	c := NewCache(det, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return det.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(det.block)
	wg.Wait()

	assert.Equal(t, int32(1), det.calls.Load())
}

func TestCacheStaleWhileRevalidate(t *testing.T) {
	det := &countingDetector{}
	clock := &fakeClock{}
	c := NewCache(det, time.Minute)
	c.now = clock.now

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	require.False(t, first.HasQueryEngine)

	// Block the refresh so the expired read must not wait for it.
	det.block = make(chan struct{})
	clock.advance(2 * time.Minute)

	done := make(chan *Capabilities)
	go func() {
		caps, _ := c.Get(context.Background())
		done <- caps
	}()

	select {
	case stale := <-done:
		assert.Same(t, first, stale)
	case <-time.After(time.Second):
		t.Fatal("expired read blocked on revalidation")
	}

	// A second expired read must not start another refresh.
	_, _ = c.Get(context.Background())
	close(det.block)

	require.Eventually(t, func() bool {
		caps, _ := c.Get(context.Background())
		return caps.HasQueryEngine
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), det.calls.Load())
}

func TestCacheKeepsStaleValueOnRefreshFailure(t *testing.T) {
	det := &countingDetector{}
	clock := &fakeClock{}
	c := NewCache(det, time.Minute)
	c.now = clock.now

	first, err := c.Get(context.Background())
	require.NoError(t, err)

	det.err = errors.New("apiserver unavailable")
	clock.advance(2 * time.Minute)

	caps, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, caps)

	require.Eventually(t, func() bool { return !c.refreshing.Load() && det.calls.Load() == 2 }, time.Second, time.Millisecond)

	caps, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, caps)
}

func TestCacheFirstLoadError(t *testing.T) {
	c := NewCache(&countingDetector{err: errors.New("boom")}, 0)
	_, err := c.Get(context.Background())
	assert.Error(t, err)
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestCacheFirstLoadTimesOut(t *testing.T) {
	d := &ClusterDetector{
		Clientset: fake.NewSimpleClientset(),
		QueryEngineProbe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	c := NewCache(d, time.Minute)
	c.SetDetectTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSetDetectTimeoutIgnoresNonPositive(t *testing.T) {
	c := NewCache(&countingDetector{}, time.Minute)
	c.SetDetectTimeout(0)
	assert.Equal(t, DefaultDetectTimeout, c.timeout)
}
