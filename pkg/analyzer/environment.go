package analyzer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/opscart/k8s-workload-assessor/pkg/models"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
	EnvironmentUnknown     Environment = "unknown"
)

// EnvironmentConfig holds configuration for different environments
type EnvironmentConfig struct {
	SafetyBufferMultiplier float64 // Applied on top of the workload buffer
	Risk                   models.RiskLevel
	Description            string
	IsProduction           bool
}

var environmentConfigs = map[Environment]EnvironmentConfig{
	EnvironmentProduction: {
		SafetyBufferMultiplier: 1.3,
		Risk:                   models.RiskHigh,
		Description:            "Production environment - conservative optimization",
		IsProduction:           true,
	},
	EnvironmentStaging: {
		SafetyBufferMultiplier: 1.0,
		Risk:                   models.RiskMedium,
		Description:            "Staging environment - balanced optimization",
	},
	EnvironmentDevelopment: {
		SafetyBufferMultiplier: 0.85,
		Risk:                   models.RiskLow,
		Description:            "Development environment - aggressive optimization",
	},
	EnvironmentUnknown: {
		SafetyBufferMultiplier: 1.2,
		Risk:                   models.RiskMedium,
		Description:            "Unknown environment - cautious optimization",
	},
}

// GetEnvironmentConfig returns configuration for a given environment
func GetEnvironmentConfig(env Environment) EnvironmentConfig {
	if config, ok := environmentConfigs[env]; ok {
		return config
	}
	return environmentConfigs[EnvironmentUnknown]
}

// ClassifyNamespace determines the environment of a namespace from its
// "environment" or "tier" label, falling back to the namespace name.
func ClassifyNamespace(ctx context.Context, client kubernetes.Interface, namespace string) Environment {
	if namespace == "" {
		return EnvironmentUnknown
	}

	ns, err := client.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
	if err != nil {
		slog.Debug("namespace lookup failed, using name heuristics",
			slog.String("namespace", namespace), slog.String("error", err.Error()))
		return DetectEnvironmentFromName(namespace)
	}

	if env, ok := ns.Labels["environment"]; ok {
		return normalizeEnvironment(env)
	}
	if tier, ok := ns.Labels["tier"]; ok {
		if env := normalizeEnvironment(tier); env != EnvironmentUnknown {
			return env
		}
	}
	return DetectEnvironmentFromName(namespace)
}

func normalizeEnvironment(label string) Environment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "production", "prod", "prd":
		return EnvironmentProduction
	case "staging", "stage", "stg":
		return EnvironmentStaging
	case "development", "dev", "test", "testing":
		return EnvironmentDevelopment
	default:
		return EnvironmentUnknown
	}
}

// DetectEnvironmentFromName guesses the environment from substrings of the namespace name
func DetectEnvironmentFromName(namespace string) Environment {
	name := strings.ToLower(namespace)

	patterns := []struct {
		env    Environment
		tokens []string
	}{
		{EnvironmentProduction, []string{"prod", "prd"}},
		{EnvironmentStaging, []string{"staging", "stage", "stg", "uat"}},
		{EnvironmentDevelopment, []string{"dev", "test", "sandbox", "demo"}},
	}
	for _, p := range patterns {
		for _, token := range p.tokens {
			if strings.Contains(name, token) {
				return p.env
			}
		}
	}
	return EnvironmentUnknown
}

// GetCombinedSafetyBuffer combines workload and environment safety buffers, never below 1.2
func GetCombinedSafetyBuffer(kind models.WorkloadKind, environment Environment) float64 {
	combined := GetWorkloadConfig(kind).SafetyBuffer * GetEnvironmentConfig(environment).SafetyBufferMultiplier
	if combined < 1.2 {
		return 1.2
	}
	return combined
}
