package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/k8s-workload-assessor/pkg/billing"
	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/collector"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/pricing"
	"github.com/opscart/k8s-workload-assessor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/ptr"
)

const gib = int64(1) << 30

var (
	window = models.TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	api = models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: models.KindDeployment}

	accessLog = `10.0.0.1 - - [01/Jan/2024:00:00:00] "GET /api/orders HTTP/1.1" 200 512
10.0.0.9 - - [01/Jan/2024:00:00:05] "GET /healthz HTTP/1.1" 200 2
not an access log line
`
	nodeA = models.NodeCostInfo{NodeName: "node-a", HourlyCost: 0.192, AllocatableCPU: 4, AllocatableMemory: 16 * gib}
)

type stubDispatcher struct {
	results []models.RawCollectorResult
	block   bool
	calls   atomic.Int32
}

func (s *stubDispatcher) Dispatch(ctx context.Context, _ models.WorkloadIdentifier, _ models.TimeRange, _ registry.Need) ([]models.RawCollectorResult, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.results, nil
}

type stubBilling struct {
	nodes []models.NodeCostInfo
	err   error
	calls atomic.Int32
}

func (s *stubBilling) GetNodeCosts(context.Context, string, models.TimeRange) ([]models.NodeCostInfo, error) {
	s.calls.Add(1)
	return s.nodes, s.err
}

func (s *stubBilling) GetClusterCosts(context.Context, models.TimeRange) (*models.ClusterCostBreakdown, error) {
	return billing.Summarize("stub", "USD", s.nodes), s.err
}

func coreResult() models.RawCollectorResult {
	return models.RawCollectorResult{
		Source:             models.SourceCoreAPI,
		CPURequestMillis:   ptr.To(int64(500)),
		MemoryRequestBytes: ptr.To(2 * gib),
		NodeName:           "node-a",
		Pods:               []string{"api-7d9f8-x1"},
		Logs:               []models.LogPayload{{Pod: "api-7d9f8-x1", Container: "app", Data: accessLog}},
		CollectedAt:        window.End,
	}
}

func failed(source models.Source) models.RawCollectorResult {
	return models.RawCollectorResult{Source: source, Err: collector.Unavailable(source, "collect", errors.New("connection refused"))}
}

func states(a *models.Assessment) []models.AssessmentState {
	out := make([]models.AssessmentState, len(a.Transitions))
	for i, t := range a.Transitions {
		out[i] = t.State
	}
	return out
}

func TestAssessRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		id   models.WorkloadIdentifier
		tr   models.TimeRange
	}{
		{"unknown kind", models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: "CronJob"}, window},
		{"missing name", models.WorkloadIdentifier{Namespace: "shop", Kind: models.KindDeployment}, window},
		{"bad namespace", models.WorkloadIdentifier{Namespace: "Shop_1", Name: "api", Kind: models.KindDeployment}, window},
		{"inverted range", api, models.TimeRange{Start: window.End, End: window.Start}},
		{"empty range", api, models.TimeRange{Start: window.Start, End: window.Start}},
		{"unset range", api, models.TimeRange{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &stubDispatcher{}
			o := New(Options{Dispatcher: d})

			a, err := o.Assess(context.Background(), tt.id, tt.tr, ExecutionContext{})
			assert.Nil(t, a)
			assert.True(t, cerrors.IsCode(err, cerrors.ErrCodeInvalidRequest), "got %v", err)
			assert.Zero(t, d.calls.Load(), "no stage runs for an invalid request")
		})
	}
}

func TestAssess(t *testing.T) {
	d := &stubDispatcher{results: []models.RawCollectorResult{coreResult(), failed(models.SourceQueryEngine)}}
	b := &stubBilling{nodes: []models.NodeCostInfo{nodeA}}
	o := New(Options{Dispatcher: d, Billing: b})

	a, err := o.Assess(context.Background(), api, window, ExecutionContext{ClusterID: "prod", Principal: "alice", RequestID: "req-1"})
	require.NoError(t, err)

	_, err = uuid.Parse(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, "prod", a.ClusterID)
	assert.Equal(t, "req-1", a.RequestID)
	assert.Equal(t, models.StateDone, a.State)
	assert.Equal(t, []models.AssessmentState{
		models.StateIdle, models.StateCollecting, models.StateMerging,
		models.StateClassifying, models.StateAttributing, models.StateDone,
	}, states(a))

	require.NotNil(t, a.Metrics)
	assert.False(t, a.Metrics.NoData)
	assert.Equal(t, models.SourceCoreAPI, a.Metrics.Provenance[models.FieldCPURequest])

	require.NotNil(t, a.Activity)
	assert.Equal(t, 2, a.Activity.TotalRequests)
	assert.Equal(t, 1, a.Activity.BusinessRequests)
	assert.InDelta(t, 0.5, a.Activity.BusinessRatio, 1e-12)

	require.NotNil(t, a.Cost)
	assert.Nil(t, a.CostUnavailable)
	assert.InDelta(t, 0.125, a.Cost.AllocationRatio, 1e-12)
	assert.InDelta(t, 0.024, a.Cost.HourlyCost, 1e-12)

	require.NotNil(t, a.Recommendation)
	assert.Greater(t, a.Confidence, 0.0)
	assert.LessOrEqual(t, a.Confidence, 1.0)
	assert.Positive(t, a.Duration)
}

func TestAssessDegradesCost(t *testing.T) {
	tests := []struct {
		name    string
		results []models.RawCollectorResult
		billing billing.Client
		code    cerrors.ErrorCode
	}{
		{
			name:    "billing unreachable",
			results: []models.RawCollectorResult{coreResult()},
			billing: &stubBilling{err: billing.Unreachable("list nodes", errors.New("503"))},
			code:    cerrors.ErrCodeBillingUnreachable,
		},
		{
			name:    "untyped billing error",
			results: []models.RawCollectorResult{coreResult()},
			billing: &stubBilling{err: errors.New("dial tcp: i/o timeout")},
			code:    cerrors.ErrCodeBillingUnreachable,
		},
		{
			name:    "no billing configured",
			results: []models.RawCollectorResult{coreResult()},
			code:    cerrors.ErrCodeBillingUnreachable,
		},
		{
			name:    "node evicted since measurement",
			results: []models.RawCollectorResult{coreResult()},
			billing: &stubBilling{nodes: []models.NodeCostInfo{{NodeName: "node-z", HourlyCost: 1, AllocatableCPU: 4, AllocatableMemory: gib}}},
			code:    cerrors.ErrCodeNodeUnresolved,
		},
		{
			name:    "every collector failed",
			results: []models.RawCollectorResult{failed(models.SourceCoreAPI), failed(models.SourceAggregator)},
			billing: &stubBilling{nodes: []models.NodeCostInfo{nodeA}},
			code:    cerrors.ErrCodeNoDataAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(Options{Dispatcher: &stubDispatcher{results: tt.results}, Billing: tt.billing})

			a, err := o.Assess(context.Background(), api, window, ExecutionContext{})
			require.NoError(t, err)

			assert.Equal(t, models.StateDone, a.State)
			assert.Nil(t, a.Cost)
			require.NotNil(t, a.CostUnavailable)
			assert.Equal(t, string(tt.code), a.CostUnavailable.Code)
			assert.NotEmpty(t, a.CostUnavailable.Reason)
			assert.NotNil(t, a.Activity, "classification is still returned")
			assert.NotNil(t, a.Metrics)
		})
	}
}

func TestAssessNoDataSkipsBilling(t *testing.T) {
	b := &stubBilling{nodes: []models.NodeCostInfo{nodeA}}
	o := New(Options{Dispatcher: &stubDispatcher{results: []models.RawCollectorResult{failed(models.SourceCoreAPI)}}, Billing: b})

	a, err := o.Assess(context.Background(), api, window, ExecutionContext{})
	require.NoError(t, err)

	assert.True(t, a.Metrics.NoData)
	assert.Zero(t, b.calls.Load())
	assert.Zero(t, a.Confidence)
	assert.Equal(t, models.RecommendationNoAction, a.Recommendation.Type)
}

func TestAssessCancellation(t *testing.T) {
	o := New(Options{Dispatcher: &stubDispatcher{block: true}})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var (
		a   *models.Assessment
		err error
	)
	go func() {
		a, err = o.Assess(ctx, api, window, ExecutionContext{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("assessment did not return after cancellation")
	}

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, cerrors.ErrCodeTimeout, cerrors.CodeOf(err))
	require.NotNil(t, a)
	assert.Equal(t, models.StateFailed, a.State)
	assert.Equal(t, []models.AssessmentState{models.StateIdle, models.StateCollecting, models.StateFailed}, states(a))
}

func TestAssessCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(Options{Dispatcher: &stubDispatcher{results: []models.RawCollectorResult{coreResult()}}})
	a, err := o.Assess(ctx, api, window, ExecutionContext{})

	require.Error(t, err)
	assert.Equal(t, models.StateFailed, a.State)
	assert.Nil(t, a.Metrics)
}

type staticCaps struct{ caps capability.Capabilities }

func (s staticCaps) Get(context.Context) (*capability.Capabilities, error) {
	c := s.caps
	return &c, nil
}

// Runs the real registry, core-API collector and pricing-backed billing
// against a fake cluster.
func TestAssessAgainstFakeCluster(t *testing.T) {
	cs := fake.NewSimpleClientset(
		&corev1.Node{
			ObjectMeta: metav1.ObjectMeta{Name: "node-a"},
			Status: corev1.NodeStatus{Allocatable: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("16Gi"),
			}},
		},
		&corev1.Pod{
			ObjectMeta: metav1.ObjectMeta{Namespace: "shop", Name: "checkout"},
			Spec: corev1.PodSpec{
				NodeName: "node-a",
				Containers: []corev1.Container{{
					Name: "app",
					Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("2Gi"),
					}},
				}},
			},
			Status: corev1.PodStatus{Phase: corev1.PodRunning},
		},
	)

	reg := registry.New(&registry.DefaultFactory{Clientset: cs}, staticCaps{}, time.Second)
	o := New(Options{
		Dispatcher: reg,
		Billing:    &billing.PricingClient{Clientset: cs, Provider: pricing.NewDefaultProvider(0, 0)},
	})

	id := models.WorkloadIdentifier{Namespace: "shop", Name: "checkout", Kind: models.KindPod}
	a, err := o.Assess(context.Background(), id, window, ExecutionContext{ClusterID: "kind"})
	require.NoError(t, err)

	assert.Equal(t, models.StateDone, a.State)
	assert.Equal(t, int64(500), a.Metrics.CPURequestMillis)
	assert.Equal(t, "node-a", a.Metrics.NodeName)

	require.NotNil(t, a.Cost, "cost unavailable: %+v", a.CostUnavailable)
	nodeHourly := 4*0.0315 + 16*0.0041
	assert.InDelta(t, 0.125, a.Cost.AllocationRatio, 1e-12)
	assert.InDelta(t, nodeHourly*0.125, a.Cost.HourlyCost, 1e-12)
	assert.InDelta(t, nodeHourly*0.125*730, a.Cost.MonthlyProjection, 1e-9)
}
