package models

import "time"

// HoursPerMonth is the average number of hours in a month
const HoursPerMonth = 730.0

// CostInfo represents pricing information
type CostInfo struct {
	Provider             string    `json:"provider"`
	Region               string    `json:"region"`
	NodeType             string    `json:"node_type,omitempty"`
	CPUCostPerCoreHour   float64   `json:"cpu_cost_per_core_hour"`
	MemoryCostPerGiBHour float64   `json:"memory_cost_per_gib_hour"`
	Currency             string    `json:"currency"`
	LastUpdated          time.Time `json:"last_updated"`
}

// NodeCostInfo is the billing collaborator's view of one node for a window
type NodeCostInfo struct {
	NodeName          string  `json:"node_name"`
	HourlyCost        float64 `json:"hourly_cost"`
	AllocatableCPU    float64 `json:"allocatable_cpu"`    // cores
	AllocatableMemory int64   `json:"allocatable_memory"` // bytes
	InstanceType      string  `json:"instance_type,omitempty"`
	Region            string  `json:"region,omitempty"`
}

// ClusterCostBreakdown is the billing collaborator's cluster-level answer
type ClusterCostBreakdown struct {
	Provider     string         `json:"provider"`
	Currency     string         `json:"currency"`
	HourlyCost   float64        `json:"hourly_cost"`
	DailyCost    float64        `json:"daily_cost"`
	MonthlyCost  float64        `json:"monthly_cost"`
	Nodes        []NodeCostInfo `json:"nodes"`
	CalculatedAt time.Time      `json:"calculated_at"`
}

// CostDriver explains one resource's share of the allocation
type CostDriver struct {
	Resource    string  `json:"resource"`
	Requested   float64 `json:"requested"`
	Allocatable float64 `json:"allocatable"`
	Ratio       float64 `json:"ratio"`
	Weight      float64 `json:"weight"`
	HourlyCost  float64 `json:"hourly_cost"`
}

// CostBreakdown is the workload's attributed share of node cost
type CostBreakdown struct {
	Workload          WorkloadIdentifier `json:"workload"`
	NodeName          string             `json:"node_name"`
	AllocationRatio   float64            `json:"allocation_ratio"`
	HourlyCost        float64            `json:"hourly_cost"`
	DailyCost         float64            `json:"daily_cost"`
	MonthlyProjection float64            `json:"monthly_projection"`
	Currency          string             `json:"currency,omitempty"`
	CostDrivers       []CostDriver       `json:"cost_drivers"`
}

// CostStatus explains why no CostBreakdown is present
type CostStatus struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}
