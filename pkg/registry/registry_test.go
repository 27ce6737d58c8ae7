package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/collector"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

var (
	testID    = models.WorkloadIdentifier{Namespace: "shop", Name: "api", Kind: models.KindDeployment}
	testRange = models.TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
	}
)

// stubCollector is a scripted collector
type stubCollector struct {
	source     models.Source
	logsOnly   bool
	delay      time.Duration
	ignoreCtx  bool
	err        error
	panicValue any
	cpu        float64
	calls      atomic.Int32
}

func (s *stubCollector) Source() models.Source        { return s.source }
func (s *stubCollector) SupportsWorkloadMetrics() bool { return !s.logsOnly }
func (s *stubCollector) SupportsNodeMetrics() bool     { return false }
func (s *stubCollector) SupportsLogs() bool            { return s.logsOnly }

func (s *stubCollector) Collect(ctx context.Context, _ models.WorkloadIdentifier, _ models.TimeRange) (*models.RawCollectorResult, error) {
	s.calls.Add(1)
	if s.panicValue != nil {
		panic(s.panicValue)
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.RawCollectorResult{CPUUsage: models.Instant(s.cpu, time.Now())}, nil
}

// stubFactory hands out the configured collectors
type stubFactory struct {
	core, aggregator, query, node collector.Collector
	cloud                         map[capability.CloudProvider]collector.Collector
}

func (f *stubFactory) CreateCoreAPICollector() collector.Collector     { return f.core }
func (f *stubFactory) CreateAggregatorCollector() collector.Collector  { return f.aggregator }
func (f *stubFactory) CreateQueryEngineCollector() collector.Collector { return f.query }
func (f *stubFactory) CreateNodeAgentCollector() collector.Collector   { return f.node }
func (f *stubFactory) CreateCloudTelemetryCollector(p capability.CloudProvider) collector.Collector {
	if c, ok := f.cloud[p]; ok {
		return c
	}
	return nil
}

type staticCaps struct {
	caps *capability.Capabilities
	err  error
}

func (s staticCaps) Get(context.Context) (*capability.Capabilities, error) { return s.caps, s.err }

func fullFactory() *stubFactory {
	return &stubFactory{
		core:       &stubCollector{source: models.SourceCoreAPI},
		aggregator: &stubCollector{source: models.SourceAggregator},
		query:      &stubCollector{source: models.SourceQueryEngine},
		node:       &stubCollector{source: models.SourceNodeAgent},
		cloud: map[capability.CloudProvider]collector.Collector{
			capability.ProviderAzure: &stubCollector{source: models.SourceCloudTelemetry},
		},
	}
}

func sources(cs []collector.Collector) []models.Source {
	out := make([]models.Source, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Source())
	}
	return out
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		caps capability.Capabilities
		want []models.Source
	}{
		{
			name: "no optional capabilities",
			caps: capability.Capabilities{},
			want: []models.Source{models.SourceCoreAPI, models.SourceNodeAgent},
		},
		{
			name: "aggregator only",
			caps: capability.Capabilities{HasMetricsAggregator: true},
			want: []models.Source{models.SourceCoreAPI, models.SourceAggregator, models.SourceNodeAgent},
		},
		{
			name: "everything",
			caps: capability.Capabilities{HasMetricsAggregator: true, HasQueryEngine: true, CloudProvider: capability.ProviderAzure},
			want: []models.Source{models.SourceCoreAPI, models.SourceAggregator, models.SourceQueryEngine, models.SourceNodeAgent, models.SourceCloudTelemetry},
		},
		{
			name: "provider without telemetry endpoint",
			caps: capability.Capabilities{HasQueryEngine: true, CloudProvider: capability.ProviderGCP},
			want: []models.Source{models.SourceCoreAPI, models.SourceQueryEngine, models.SourceNodeAgent},
		},
	}

	r := New(fullFactory(), nil, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sources(r.Build(tt.caps)))
		})
	}
}

func TestBuildDeduplicatesAndOrders(t *testing.T) {
	// the factory wires the same source twice, out of priority order
	f := &stubFactory{
		core:       &stubCollector{source: models.SourceCoreAPI},
		aggregator: &stubCollector{source: models.SourceNodeAgent},
		node:       &stubCollector{source: models.SourceNodeAgent},
	}
	r := New(f, nil, 0)

	got := sources(r.Build(capability.Capabilities{HasMetricsAggregator: true}))
	assert.Equal(t, []models.Source{models.SourceCoreAPI, models.SourceNodeAgent}, got)
}

func TestSelect(t *testing.T) {
	metrics := &stubCollector{source: models.SourceAggregator}
	logs := &stubCollector{source: models.SourceCoreAPI, logsOnly: true}
	all := []collector.Collector{logs, metrics}

	assert.Equal(t, []models.Source{models.SourceAggregator}, sources(Select(all, Need{Workload: true})))
	assert.Equal(t, []models.Source{models.SourceCoreAPI}, sources(Select(all, Need{Logs: true})))
	assert.Len(t, Select(all, WorkloadAssessment), 2)
	assert.Empty(t, Select(all, Need{Node: true}))
}

func TestCapabilitiesDegradeToCoreOnly(t *testing.T) {
	r := New(fullFactory(), staticCaps{err: errors.New("discovery failed")}, 0)

	cs, err := r.Collectors(context.Background(), WorkloadAssessment)
	require.NoError(t, err)
	assert.Equal(t, []models.Source{models.SourceCoreAPI, models.SourceNodeAgent}, sources(cs))
}

func TestCapabilitiesDegradeWhenDetectionHangs(t *testing.T) {
	detector := &capability.ClusterDetector{
		Clientset: fake.NewSimpleClientset(),
		QueryEngineProbe: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	cache := capability.NewCache(detector, time.Minute)
	cache.SetDetectTimeout(100 * time.Millisecond)
	r := New(fullFactory(), cache, 200*time.Millisecond)

	done := make(chan []collector.Collector, 1)
	go func() {
		cs, err := r.Collectors(context.Background(), WorkloadAssessment)
		assert.NoError(t, err)
		done <- cs
	}()

	select {
	case cs := <-done:
		assert.Equal(t, []models.Source{models.SourceCoreAPI, models.SourceNodeAgent}, sources(cs))
	case <-time.After(5 * time.Second):
		t.Fatal("collector selection blocked on capability detection")
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	f := &stubFactory{
		core:       &stubCollector{source: models.SourceCoreAPI, err: errors.New("forbidden")},
		aggregator: &stubCollector{source: models.SourceAggregator, cpu: 250},
		query:      &stubCollector{source: models.SourceQueryEngine, err: collector.Unavailable(models.SourceQueryEngine, "query", errors.New("connection refused"))},
	}
	caps := &capability.Capabilities{HasMetricsAggregator: true, HasQueryEngine: true}
	r := New(f, staticCaps{caps: caps}, time.Second)

	results, err := r.Dispatch(context.Background(), testID, testRange, WorkloadAssessment)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, models.SourceCoreAPI, results[0].Source)
	assert.True(t, cerrors.IsCode(results[0].Err, cerrors.ErrCodeCollectorUnavailable))

	assert.Equal(t, models.SourceAggregator, results[1].Source)
	require.False(t, results[1].Failed())
	assert.Equal(t, 250.0, results[1].CPUUsage.Average)
	assert.False(t, results[1].CollectedAt.IsZero())

	assert.Equal(t, models.SourceQueryEngine, results[2].Source)
	assert.True(t, cerrors.IsCode(results[2].Err, cerrors.ErrCodeCollectorUnavailable))
}

func TestDispatchTimeoutDoesNotStallOthers(t *testing.T) {
	slow := &stubCollector{source: models.SourceQueryEngine, delay: 5 * time.Second, ignoreCtx: true}
	f := &stubFactory{
		core:  &stubCollector{source: models.SourceCoreAPI, cpu: 100},
		query: slow,
	}
	r := New(f, staticCaps{caps: &capability.Capabilities{HasQueryEngine: true}}, 50*time.Millisecond)

	start := time.Now()
	results, err := r.Dispatch(context.Background(), testID, testRange, WorkloadAssessment)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	require.True(t, results[1].Failed())
	assert.True(t, cerrors.IsCode(results[1].Err, cerrors.ErrCodeCollectorUnavailable))
	assert.ErrorIs(t, results[1].Err, context.DeadlineExceeded)
}

func TestDispatchRecoversPanics(t *testing.T) {
	f := &stubFactory{
		core: &stubCollector{source: models.SourceCoreAPI, cpu: 1},
		node: &stubCollector{source: models.SourceNodeAgent, panicValue: "nil map"},
	}
	r := New(f, nil, time.Second)

	results, err := r.Dispatch(context.Background(), testID, testRange, WorkloadAssessment)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed())
	require.True(t, results[1].Failed())
	assert.Contains(t, results[1].Err.Error(), "panicked")
}

func TestDispatchCancellationReachesCollectors(t *testing.T) {
	core := &stubCollector{source: models.SourceCoreAPI, delay: 5 * time.Second}
	r := New(&stubFactory{core: core}, nil, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	results, err := r.Dispatch(ctx, testID, testRange, WorkloadAssessment)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Equal(t, int32(1), core.calls.Load())
}

func TestDispatchNeverRetries(t *testing.T) {
	core := &stubCollector{source: models.SourceCoreAPI, err: errors.New("boom")}
	r := New(&stubFactory{core: core}, nil, time.Second)

	_, err := r.Dispatch(context.Background(), testID, testRange, WorkloadAssessment)
	require.NoError(t, err)
	assert.Equal(t, int32(1), core.calls.Load())
}

func TestDefaultFactory(t *testing.T) {
	f := &DefaultFactory{Clientset: fake.NewSimpleClientset()}

	assert.NotNil(t, f.CreateCoreAPICollector())
	assert.Nil(t, f.CreateAggregatorCollector())
	assert.Nil(t, f.CreateQueryEngineCollector())
	assert.Nil(t, f.CreateNodeAgentCollector())
	assert.Nil(t, f.CreateCloudTelemetryCollector(capability.ProviderAWS))

	querier, err := collector.NewPromQuerier("http://prometheus.monitoring:9090", 5)
	require.NoError(t, err)
	f.Metrics = metricsfake.NewSimpleClientset()
	f.QueryEngine = querier
	f.CloudTelemetry = querier
	f.NodeAgent = true

	r := New(f, nil, 0)
	got := sources(r.Build(capability.Capabilities{
		HasMetricsAggregator: true, HasQueryEngine: true, CloudProvider: capability.ProviderAWS,
	}))
	assert.Equal(t, []models.Source{
		models.SourceCoreAPI, models.SourceAggregator, models.SourceQueryEngine,
		models.SourceNodeAgent, models.SourceCloudTelemetry,
	}, got)
	assert.Nil(t, f.CreateCloudTelemetryCollector(capability.ProviderNone))
}
