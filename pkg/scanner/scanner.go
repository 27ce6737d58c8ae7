// Package scanner assembles the assessment stack for a live cluster and
// assesses single workloads or whole namespaces.
package scanner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/opscart/k8s-workload-assessor/pkg/analyzer"
	"github.com/opscart/k8s-workload-assessor/pkg/attribution"
	"github.com/opscart/k8s-workload-assessor/pkg/billing"
	"github.com/opscart/k8s-workload-assessor/pkg/capability"
	"github.com/opscart/k8s-workload-assessor/pkg/classifier"
	"github.com/opscart/k8s-workload-assessor/pkg/collector"
	"github.com/opscart/k8s-workload-assessor/pkg/config"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/pipeline"
	"github.com/opscart/k8s-workload-assessor/pkg/recommender"
	"github.com/opscart/k8s-workload-assessor/pkg/registry"
	"golang.org/x/sync/errgroup"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// DefaultConcurrency bounds parallel assessments during a namespace scan
const DefaultConcurrency = 4

// Assessor runs one assessment; *pipeline.Orchestrator implements it
type Assessor interface {
	Assess(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange, ec pipeline.ExecutionContext) (*models.Assessment, error)
}

type Scanner struct {
	clientset    kubernetes.Interface
	capabilities *capability.Cache
	registry     *registry.Registry
	billing      billing.Client
	assessor     Assessor
	concurrency  int
	closers      []io.Closer
}

// New wires collectors, billing, classification and attribution from cfg
func New(ctx context.Context, cfg *config.Config, clients *Clients) (*Scanner, error) {
	s := &Scanner{clientset: clients.Kube, concurrency: DefaultConcurrency}

	var queryEngine, cloudTelemetry *collector.PromQuerier
	var err error
	if cfg.PrometheusURL != "" {
		if queryEngine, err = collector.NewPromQuerier(cfg.PrometheusURL, cfg.QueryRateLimit); err != nil {
			return nil, err
		}
	}
	if cfg.CloudTelemetryURL != "" {
		if cloudTelemetry, err = collector.NewPromQuerier(cfg.CloudTelemetryURL, cfg.QueryRateLimit); err != nil {
			return nil, err
		}
	}

	detector := &capability.ClusterDetector{Clientset: clients.Kube}
	if queryEngine != nil {
		detector.QueryEngineProbe = queryEngine.Ping
	}
	s.capabilities = capability.NewCache(detector, cfg.CapabilityTTL)
	s.capabilities.SetDetectTimeout(cfg.DetectTimeout)

	factory := &registry.DefaultFactory{
		Clientset:      clients.Kube,
		Metrics:        clients.Metrics,
		QueryEngine:    queryEngine,
		CloudTelemetry: cloudTelemetry,
		NodeAgent:      cfg.NodeAgentEnabled,
	}
	s.registry = registry.New(factory, s.capabilities, cfg.CollectorTimeout)

	rules, err := classifier.LoadRules(cfg.ClassifierRules)
	if err != nil {
		return nil, err
	}
	cls, err := classifier.New(rules)
	if err != nil {
		return nil, err
	}

	s.billing = s.newBilling(ctx, cfg)

	s.assessor = pipeline.New(pipeline.Options{
		Dispatcher:  s.registry,
		Classifier:  cls,
		Attribution: attribution.NewEngine(cfg.CPUWeight, cfg.MemoryWeight),
		Billing:     s.billing,
		Recommender: recommender.New(cfg.IdleBusinessRatio),
		Environment: func(ctx context.Context, namespace string) analyzer.Environment {
			return analyzer.ClassifyNamespace(ctx, clients.Kube, namespace)
		},
		BillingTimeout: cfg.BillingTimeout,
	})
	return s, nil
}

// Assess runs one assessment
func (s *Scanner) Assess(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange, ec pipeline.ExecutionContext) (*models.Assessment, error) {
	return s.assessor.Assess(ctx, id, tr, ec)
}

// Capabilities returns the cached cluster capabilities and the collectors
// they enable
func (s *Scanner) Capabilities(ctx context.Context) (*capability.Capabilities, []models.Source, error) {
	caps, err := s.registry.Capabilities(ctx)
	if err != nil {
		return nil, nil, err
	}
	var sources []models.Source
	for _, c := range s.registry.Build(caps) {
		sources = append(sources, c.Source())
	}
	return &caps, sources, nil
}

// ClusterCosts returns node costs summed over the cluster
func (s *Scanner) ClusterCosts(ctx context.Context, tr models.TimeRange) (*models.ClusterCostBreakdown, error) {
	return s.billing.GetClusterCosts(ctx, tr)
}

// Scan assesses every workload in namespace, or in all namespaces when
// namespace is empty. A workload whose assessment fails is logged and
// skipped; only cancellation aborts the scan.
func (s *Scanner) Scan(ctx context.Context, namespace string, tr models.TimeRange, ec pipeline.ExecutionContext) ([]*models.Assessment, error) {
	workloads, err := ListWorkloads(ctx, s.clientset, namespace)
	if err != nil {
		return nil, err
	}
	slog.Info("scanning workloads", slog.String("namespace", namespace), slog.Int("count", len(workloads)))

	results := make([]*models.Assessment, len(workloads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range workloads {
		g.Go(func() error {
			a, err := s.assessor.Assess(gctx, id, tr, ec)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("workload assessment failed", slog.String("workload", id.String()), slog.String("error", err.Error()))
				return nil
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	out := make([]*models.Assessment, 0, len(results))
	for _, a := range results {
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListWorkloads returns the Deployments, StatefulSets, DaemonSets and
// standalone pods of a namespace, sorted by identifier.
func ListWorkloads(ctx context.Context, client kubernetes.Interface, namespace string) ([]models.WorkloadIdentifier, error) {
	var ids []models.WorkloadIdentifier

	deployments, err := client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	for _, d := range deployments.Items {
		ids = append(ids, models.WorkloadIdentifier{Namespace: d.Namespace, Name: d.Name, Kind: models.KindDeployment})
	}

	statefulSets, err := client.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list statefulsets: %w", err)
	}
	for _, sts := range statefulSets.Items {
		ids = append(ids, models.WorkloadIdentifier{Namespace: sts.Namespace, Name: sts.Name, Kind: models.KindStatefulSet})
	}

	daemonSets, err := client.AppsV1().DaemonSets(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list daemonsets: %w", err)
	}
	for _, ds := range daemonSets.Items {
		ids = append(ids, models.WorkloadIdentifier{Namespace: ds.Namespace, Name: ds.Name, Kind: models.KindDaemonSet})
	}

	pods, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	for _, p := range pods.Items {
		if len(p.OwnerReferences) == 0 {
			ids = append(ids, models.WorkloadIdentifier{Namespace: p.Namespace, Name: p.Name, Kind: models.KindPod})
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Close releases cache connections
func (s *Scanner) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
