package models

import "time"

// RecommendationType represents the type of recommendation
type RecommendationType string

const (
	RecommendationRightSize RecommendationType = "RIGHT_SIZE"
	RecommendationScaleDown RecommendationType = "SCALE_DOWN"
	RecommendationNoAction  RecommendationType = "NO_ACTION"
)

// RiskLevel represents the risk of acting on a recommendation
type RiskLevel string

const (
	RiskNone   RiskLevel = "NONE"
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Recommendation is the suggested action for an assessed workload
type Recommendation struct {
	Type        RecommendationType `json:"type"`
	Reason      string             `json:"reason"`
	Environment string             `json:"environment,omitempty"`
	Risk        RiskLevel          `json:"risk"`

	// Requests in millicores / bytes. Recommended values are zero for NO_ACTION.
	CurrentCPU        int64 `json:"current_cpu_millis"`
	CurrentMemory     int64 `json:"current_memory_bytes"`
	RecommendedCPU    int64 `json:"recommended_cpu_millis,omitempty"`
	RecommendedMemory int64 `json:"recommended_memory_bytes,omitempty"`

	MonthlySavings float64 `json:"monthly_savings"`
	UsagePattern   string  `json:"usage_pattern,omitempty"`
}

// AssessmentState is a pipeline stage
type AssessmentState string

const (
	StateIdle        AssessmentState = "Idle"
	StateCollecting  AssessmentState = "Collecting"
	StateMerging     AssessmentState = "Merging"
	StateClassifying AssessmentState = "Classifying"
	StateAttributing AssessmentState = "Attributing"
	StateDone        AssessmentState = "Done"
	StateFailed      AssessmentState = "Failed"
)

// Terminal reports whether no further transition is possible
func (s AssessmentState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// StateTransition records when a run entered a state
type StateTransition struct {
	State AssessmentState `json:"state"`
	At    time.Time       `json:"at"`
}

// Assessment is the record handed to presentation and storage.
// Cost and CostUnavailable are mutually exclusive.
type Assessment struct {
	ID        string             `json:"id"`
	ClusterID string             `json:"cluster_id,omitempty"`
	Principal string             `json:"principal,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
	Workload  WorkloadIdentifier `json:"workload"`
	Range     TimeRange          `json:"range"`

	Metrics         *WorkloadMetrics  `json:"metrics"`
	Activity        *BusinessActivity `json:"activity,omitempty"`
	Cost            *CostBreakdown    `json:"cost,omitempty"`
	CostUnavailable *CostStatus       `json:"cost_unavailable,omitempty"`
	Recommendation  *Recommendation   `json:"recommendation,omitempty"`

	Confidence float64 `json:"confidence"`
	Idle       bool    `json:"idle"`

	State       AssessmentState   `json:"state"`
	Transitions []StateTransition `json:"transitions"`
	CreatedAt   time.Time         `json:"created_at"`
	Duration    time.Duration     `json:"duration"`
}
