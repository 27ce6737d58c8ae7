package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// RuleConfig is the on-disk form of the exclusion lists
type RuleConfig struct {
	ReplaceDefaults        bool     `yaml:"replace_defaults"`
	ProbePaths             []string `yaml:"probe_paths"`
	MonitoringUserAgents   []string `yaml:"monitoring_user_agents"`
	InternalClientPatterns []string `yaml:"internal_client_patterns"`
}

// Rule excludes a request from business traffic
type Rule interface {
	Name() string
	Excludes(rec models.RequestRecord) bool
}

const (
	RuleProbePath      = "probe-path"
	RuleMonitoringUA   = "monitoring-agent"
	RuleInternalClient = "internal-client"
)

// ProbePathRule matches liveness, readiness and metrics endpoints exactly
type ProbePathRule struct {
	paths map[string]bool
}

func NewProbePathRule(paths []string) *ProbePathRule {
	r := &ProbePathRule{paths: make(map[string]bool, len(paths))}
	for _, p := range paths {
		r.paths[strings.ToLower(p)] = true
	}
	return r
}

func (r *ProbePathRule) Name() string { return RuleProbePath }

func (r *ProbePathRule) Excludes(rec models.RequestRecord) bool {
	path, _, _ := strings.Cut(rec.Path, "?")
	return r.paths[strings.ToLower(path)]
}

// UserAgentRule matches monitoring and load balancer health check agents by substring
type UserAgentRule struct {
	tokens []string
}

func NewUserAgentRule(tokens []string) *UserAgentRule {
	r := &UserAgentRule{}
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			r.tokens = append(r.tokens, t)
		}
	}
	return r
}

func (r *UserAgentRule) Name() string { return RuleMonitoringUA }

func (r *UserAgentRule) Excludes(rec models.RequestRecord) bool {
	ua := strings.ToLower(rec.UserAgentOrEmpty())
	if ua == "" {
		return false
	}
	for _, t := range r.tokens {
		if strings.Contains(ua, t) {
			return true
		}
	}
	return false
}

// InternalClientRule matches user agents of in-cluster service clients
type InternalClientRule struct {
	patterns []*regexp.Regexp
}

func NewInternalClientRule(patterns []string) (*InternalClientRule, error) {
	r := &InternalClientRule{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid internal client pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

func (r *InternalClientRule) Name() string { return RuleInternalClient }

func (r *InternalClientRule) Excludes(rec models.RequestRecord) bool {
	ua := rec.UserAgentOrEmpty()
	if ua == "" {
		return false
	}
	for _, re := range r.patterns {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}

// DefaultRuleConfig returns the built-in exclusion lists
func DefaultRuleConfig() RuleConfig {
	var cfg RuleConfig
	if err := yaml.Unmarshal(defaultRulesYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded classifier rules are invalid: %v", err))
	}
	return cfg
}

// LoadRules reads a rule file and merges it over the defaults. An empty
// path returns the defaults.
func LoadRules(path string) (RuleConfig, error) {
	cfg := DefaultRuleConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RuleConfig{}, fmt.Errorf("failed to read classifier rules: %w", err)
	}
	var override RuleConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return RuleConfig{}, fmt.Errorf("failed to parse classifier rules %s: %w", path, err)
	}
	return cfg.Merge(override), nil
}

// Merge returns c extended by o, or o alone when o replaces defaults
func (c RuleConfig) Merge(o RuleConfig) RuleConfig {
	if o.ReplaceDefaults {
		return o
	}
	return RuleConfig{
		ProbePaths:             union(c.ProbePaths, o.ProbePaths),
		MonitoringUserAgents:   union(c.MonitoringUserAgents, o.MonitoringUserAgents),
		InternalClientPatterns: union(c.InternalClientPatterns, o.InternalClientPatterns),
	}
}

// Rules builds the ordered rule list: probe paths, monitoring agents, internal clients
func (c RuleConfig) Rules() ([]Rule, error) {
	internal, err := NewInternalClientRule(c.InternalClientPatterns)
	if err != nil {
		return nil, err
	}
	return []Rule{
		NewProbePathRule(c.ProbePaths),
		NewUserAgentRule(c.MonitoringUserAgents),
		internal,
	}, nil
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
