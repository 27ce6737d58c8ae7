// Package classifier separates business traffic from probes, monitoring
// agents and internal service clients.
package classifier

import (
	"log/slog"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsClassified = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "workload_assessor_classified_requests_total",
		Help: "Requests classified, by outcome",
	},
	[]string{"outcome"}, // business or the excluding rule
)

// Classifier evaluates rules in order; the first rule that matches excludes
// the request. A request no rule excludes is business traffic.
type Classifier struct {
	Rules []Rule
}

// New builds a classifier from a rule config
func New(cfg RuleConfig) (*Classifier, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}
	return &Classifier{Rules: rules}, nil
}

// NewDefault builds a classifier from the built-in rules
func NewDefault() *Classifier {
	c, err := New(DefaultRuleConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// Evaluate returns whether rec is business traffic, and otherwise the name
// of the rule that excluded it
func (c *Classifier) Evaluate(rec models.RequestRecord) (bool, string) {
	for _, r := range c.Rules {
		if r.Excludes(rec) {
			return false, r.Name()
		}
	}
	return true, ""
}

// Classify summarizes records into per-path counts and the business ratio
func (c *Classifier) Classify(records []models.RequestRecord) models.BusinessActivity {
	activity := models.BusinessActivity{
		Paths:          make(map[string]models.PathStats),
		ExcludedByRule: make(map[string]int),
	}

	for _, rec := range records {
		business, rule := c.Evaluate(rec)

		stats := activity.Paths[rec.Path]
		if stats.Methods == nil {
			stats.Methods = make(map[string]int)
		}
		stats.Total++
		stats.Methods[rec.Method]++
		activity.TotalRequests++

		if business {
			stats.Business++
			activity.BusinessRequests++
			requestsClassified.WithLabelValues("business").Inc()
		} else {
			activity.ExcludedByRule[rule]++
			requestsClassified.WithLabelValues(rule).Inc()
		}
		activity.Paths[rec.Path] = stats
	}

	activity.BusinessRatio = models.BusinessRatio(activity.BusinessRequests, activity.TotalRequests)

	slog.Debug("classified requests",
		slog.Int("total", activity.TotalRequests),
		slog.Int("business", activity.BusinessRequests),
		slog.Float64("ratio", activity.BusinessRatio))
	return activity
}
