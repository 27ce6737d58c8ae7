// Package pipeline sequences one workload assessment: collection, merge,
// request classification and cost attribution.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/k8s-workload-assessor/pkg/analyzer"
	"github.com/opscart/k8s-workload-assessor/pkg/attribution"
	"github.com/opscart/k8s-workload-assessor/pkg/billing"
	"github.com/opscart/k8s-workload-assessor/pkg/classifier"
	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/extractor"
	"github.com/opscart/k8s-workload-assessor/pkg/merger"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/recommender"
	"github.com/opscart/k8s-workload-assessor/pkg/registry"
)

// DefaultBillingTimeout bounds the billing lookup during attribution
const DefaultBillingTimeout = 10 * time.Second

// ExecutionContext is supplied by the caller after authorization has passed
type ExecutionContext struct {
	ClusterID string
	Principal string
	RequestID string
}

// Dispatcher runs the applicable collectors for a workload
type Dispatcher interface {
	Dispatch(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange, need registry.Need) ([]models.RawCollectorResult, error)
}

// EnvironmentFunc classifies a namespace for recommendation risk
type EnvironmentFunc func(ctx context.Context, namespace string) analyzer.Environment

// Options wires the orchestrator. Dispatcher is required; nil stages get
// their defaults and a nil Billing client leaves every cost unavailable.
type Options struct {
	Dispatcher     Dispatcher
	Extractor      *extractor.Extractor
	Classifier     *classifier.Classifier
	Attribution    *attribution.Engine
	Billing        billing.Client
	Recommender    *recommender.Recommender
	Environment    EnvironmentFunc
	BillingTimeout time.Duration
}

// Orchestrator runs assessments. It holds no per-run state, so concurrent
// Assess calls are independent.
type Orchestrator struct {
	dispatcher     Dispatcher
	extractor      *extractor.Extractor
	classifier     *classifier.Classifier
	attribution    *attribution.Engine
	billing        billing.Client
	recommender    *recommender.Recommender
	environment    EnvironmentFunc
	billingTimeout time.Duration
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		dispatcher:     opts.Dispatcher,
		extractor:      opts.Extractor,
		classifier:     opts.Classifier,
		attribution:    opts.Attribution,
		billing:        opts.Billing,
		recommender:    opts.Recommender,
		environment:    opts.Environment,
		billingTimeout: opts.BillingTimeout,
	}
	if o.extractor == nil {
		o.extractor = extractor.New()
	}
	if o.classifier == nil {
		o.classifier = classifier.NewDefault()
	}
	if o.attribution == nil {
		o.attribution = attribution.NewEngine(0, 0)
	}
	if o.recommender == nil {
		o.recommender = recommender.New(0)
	}
	if o.environment == nil {
		o.environment = func(_ context.Context, ns string) analyzer.Environment {
			return analyzer.DetectEnvironmentFromName(ns)
		}
	}
	if o.billingTimeout <= 0 {
		o.billingTimeout = DefaultBillingTimeout
	}
	return o
}

// Assess runs one assessment. An invalid identifier or time range is the
// only error returned before any stage runs. Collector, billing and
// attribution failures degrade the record instead of failing it. If ctx is
// cancelled mid-run the partial record is returned in state Failed together
// with the error.
func (o *Orchestrator) Assess(ctx context.Context, id models.WorkloadIdentifier, tr models.TimeRange, ec ExecutionContext) (*models.Assessment, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if err := tr.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	a := &models.Assessment{
		ID:        uuid.NewString(),
		ClusterID: ec.ClusterID,
		Principal: ec.Principal,
		RequestID: ec.RequestID,
		Workload:  id,
		Range:     tr,
		CreatedAt: start,
	}
	transition(a, models.StateIdle)

	logger := slog.With(
		slog.String("assessment", a.ID),
		slog.String("workload", id.String()),
		slog.String("request_id", ec.RequestID))
	logger.Debug("assessment started", slog.Time("start", tr.Start), slog.Time("end", tr.End))

	err := o.run(ctx, a, logger)
	a.Duration = time.Since(start)
	assessmentDuration.Observe(a.Duration.Seconds())
	assessmentsTotal.WithLabelValues(string(a.State)).Inc()

	if err != nil {
		logger.Warn("assessment failed",
			slog.String("stage", string(lastStage(a))),
			slog.String("error", err.Error()))
		return a, err
	}

	logger.Info("assessment complete",
		slog.Bool("no_data", a.Metrics.NoData),
		slog.Bool("cost_available", a.Cost != nil),
		slog.Float64("confidence", a.Confidence),
		slog.Duration("duration", a.Duration))
	return a, nil
}

func (o *Orchestrator) run(ctx context.Context, a *models.Assessment, logger *slog.Logger) error {
	transition(a, models.StateCollecting)
	results, err := o.dispatcher.Dispatch(ctx, a.Workload, a.Range, registry.WorkloadAssessment)
	if err != nil {
		return fail(a, err)
	}

	if err := advance(ctx, a, models.StateMerging); err != nil {
		return err
	}
	a.Metrics = merger.Merge(a.Workload, a.Range, results)

	if err := advance(ctx, a, models.StateClassifying); err != nil {
		return err
	}
	records, stats := o.extractor.ExtractLogs(a.Metrics.Logs, a.Range)
	activity := o.classifier.Classify(records)
	a.Activity = &activity
	logger.Debug("requests classified",
		slog.Int("lines", stats.Lines),
		slog.Int("records", stats.Records),
		slog.Int("unmatched", stats.Unmatched),
		slog.Int("business", activity.BusinessRequests))

	if err := advance(ctx, a, models.StateAttributing); err != nil {
		return err
	}
	if err := o.attribute(ctx, a, logger); err != nil {
		return err
	}

	logSignal := len(a.Metrics.Logs) > 0
	in := recommender.Input{
		Metrics:     a.Metrics,
		Activity:    a.Activity,
		Cost:        a.Cost,
		Environment: o.environment(ctx, a.Workload.Namespace),
		LogSignal:   logSignal,
	}
	a.Recommendation = o.recommender.Recommend(in)
	a.Idle = o.recommender.Idle(in)
	a.Confidence = recommender.Confidence(a.Metrics, logSignal, a.Cost != nil)

	transition(a, models.StateDone)
	return nil
}

// attribute fills Cost or CostUnavailable. Only cancellation of the run
// itself is returned as an error.
func (o *Orchestrator) attribute(ctx context.Context, a *models.Assessment, logger *slog.Logger) error {
	unavailable := func(err error) {
		code := cerrors.CodeOf(err)
		if code == "" {
			code = cerrors.ErrCodeBillingUnreachable
		}
		a.CostUnavailable = &models.CostStatus{Code: string(code), Reason: err.Error()}
		costUnavailableTotal.WithLabelValues(string(code)).Inc()
		logger.Warn("cost unavailable", slog.String("code", string(code)), slog.String("error", err.Error()))
	}

	if a.Metrics.NoData {
		unavailable(cerrors.New(cerrors.ErrCodeNoDataAvailable, "no collector returned data"))
		return nil
	}
	if o.billing == nil {
		unavailable(cerrors.New(cerrors.ErrCodeBillingUnreachable, "no billing collaborator configured"))
		return nil
	}

	bctx, cancel := context.WithTimeout(ctx, o.billingTimeout)
	defer cancel()
	nodes, err := o.billing.GetNodeCosts(bctx, a.ClusterID, a.Range)
	if err != nil {
		if ctx.Err() != nil {
			return fail(a, ctx.Err())
		}
		if !cerrors.IsCode(err, cerrors.ErrCodeBillingUnreachable) {
			err = billing.Unreachable("get node costs", err)
		}
		unavailable(err)
		return nil
	}

	cost, err := o.attribution.Attribute(a.Metrics, nodes)
	if err != nil {
		unavailable(err)
		return nil
	}
	a.Cost = cost
	return nil
}

func advance(ctx context.Context, a *models.Assessment, next models.AssessmentState) error {
	if err := ctx.Err(); err != nil {
		return fail(a, err)
	}
	transition(a, next)
	return nil
}

func transition(a *models.Assessment, s models.AssessmentState) {
	a.State = s
	a.Transitions = append(a.Transitions, models.StateTransition{State: s, At: time.Now()})
}

func fail(a *models.Assessment, err error) error {
	stage := a.State
	transition(a, models.StateFailed)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return cerrors.WrapWithContext(cerrors.ErrCodeTimeout, "assessment cancelled", err,
			map[string]any{"stage": string(stage)})
	}
	return cerrors.WrapWithContext(cerrors.ErrCodeInternal, "assessment failed", err,
		map[string]any{"stage": string(stage)})
}

// lastStage is the state the run was in before it terminated
func lastStage(a *models.Assessment) models.AssessmentState {
	if n := len(a.Transitions); n >= 2 {
		return a.Transitions[n-2].State
	}
	return a.State
}
