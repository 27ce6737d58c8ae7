package analyzer

import "github.com/opscart/k8s-workload-assessor/pkg/models"

// WorkloadConfig holds tuning for one workload kind
type WorkloadConfig struct {
	SafetyBuffer    float64 // Multiplier applied to p95 usage before comparing with requests
	MinDataDays     int     // Minimum days of data for a confident right-size
	Description     string
	Risk            models.RiskLevel
	OptimizeEnabled bool
}

var workloadConfigs = map[models.WorkloadKind]WorkloadConfig{
	models.KindDeployment: {
		SafetyBuffer:    1.5,
		MinDataDays:     5,
		Description:     "Stateless application",
		Risk:            models.RiskLow,
		OptimizeEnabled: true,
	},
	models.KindStatefulSet: {
		SafetyBuffer:    2.0,
		MinDataDays:     7,
		Description:     "Stateful application (databases, queues)",
		Risk:            models.RiskMedium,
		OptimizeEnabled: true,
	},
	models.KindDaemonSet: {
		SafetyBuffer:    2.5,
		MinDataDays:     7,
		Description:     "Node-critical service (monitoring, logging)",
		Risk:            models.RiskHigh,
		OptimizeEnabled: false,
	},
	models.KindPod: {
		SafetyBuffer:    1.5,
		MinDataDays:     3,
		Description:     "Standalone pod",
		Risk:            models.RiskMedium,
		OptimizeEnabled: true,
	},
}

// GetWorkloadConfig returns tuning for kind. Unknown kinds, including
// cluster scope, get the conservative default.
func GetWorkloadConfig(kind models.WorkloadKind) WorkloadConfig {
	if config, ok := workloadConfigs[kind]; ok {
		return config
	}
	return WorkloadConfig{
		SafetyBuffer:    2.0,
		MinDataDays:     7,
		Description:     "Unknown workload type",
		Risk:            models.RiskHigh,
		OptimizeEnabled: false,
	}
}
