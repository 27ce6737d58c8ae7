package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	// Cluster
	ClusterID string

	// Telemetry sources
	PrometheusURL     string
	CloudTelemetryURL string
	CollectorTimeout  time.Duration
	CapabilityTTL     time.Duration
	DetectTimeout     time.Duration
	QueryRateLimit    float64 // queries per second against the query engine
	NodeAgentEnabled  bool

	// Attribution
	CPUWeight    float64
	MemoryWeight float64

	// Billing
	PricingProvider string // aws, azure, gcp or default; empty follows the detected cloud
	RedisAddr       string
	BillingCacheTTL time.Duration
	BillingTimeout  time.Duration

	// Classification
	ClassifierRules   string // path to YAML rule file, empty for built-in rules
	IdleBusinessRatio float64

	// Storage
	StorageEnabled bool
	DatabaseURL    string

	// Analysis
	MetricsLookbackDays int
	MetricsDuration     time.Duration
	SafetyBuffer        float64 // e.g., 1.5 = 50% buffer on P95

	// Output
	OutputFormat string // text, json
	LogLevel     string
	Verbose      bool
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	lookback := getEnvInt("METRICS_LOOKBACK_DAYS", 7)
	return &Config{
		ClusterID:           getEnv("CLUSTER_ID", "default"),
		PrometheusURL:       getEnv("PROMETHEUS_URL", ""),
		CloudTelemetryURL:   getEnv("CLOUD_TELEMETRY_URL", ""),
		CollectorTimeout:    getEnvDuration("COLLECTOR_TIMEOUT", 10*time.Second),
		CapabilityTTL:       getEnvDuration("CAPABILITY_TTL", 5*time.Minute),
		DetectTimeout:       getEnvDuration("CAPABILITY_DETECT_TIMEOUT", 10*time.Second),
		QueryRateLimit:      getEnvFloat("QUERY_RATE_LIMIT", 10),
		NodeAgentEnabled:    getEnvBool("NODE_AGENT_ENABLED", true),
		CPUWeight:           getEnvFloat("CPU_WEIGHT", 0.6),
		MemoryWeight:        getEnvFloat("MEMORY_WEIGHT", 0.4),
		PricingProvider:     getEnv("PRICING_PROVIDER", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		BillingCacheTTL:     getEnvDuration("BILLING_CACHE_TTL", time.Hour),
		BillingTimeout:      getEnvDuration("BILLING_TIMEOUT", 10*time.Second),
		ClassifierRules:     getEnv("CLASSIFIER_RULES", ""),
		IdleBusinessRatio:   getEnvFloat("IDLE_BUSINESS_RATIO", 0.05),
		StorageEnabled:      getEnvBool("STORAGE_ENABLED", false),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost port=5432 user=assessor password=devpassword dbname=assessments sslmode=disable"),
		MetricsLookbackDays: lookback,
		MetricsDuration:     time.Duration(lookback) * 24 * time.Hour,
		SafetyBuffer:        getEnvFloat("SAFETY_BUFFER", 1.5),
		OutputFormat:        "text",
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Verbose:             false,
	}
}

// UseDevPreset configures a short lookback for fast iteration
func (c *Config) UseDevPreset() {
	c.setLookback(3)
	c.SafetyBuffer = 1.5
}

// UseProductionPreset configures a two week lookback with a wider buffer
func (c *Config) UseProductionPreset() {
	c.setLookback(14)
	c.SafetyBuffer = 2.0
}

// UseCriticalPreset configures a month of history for critical services
func (c *Config) UseCriticalPreset() {
	c.setLookback(30)
	c.SafetyBuffer = 2.5
}

func (c *Config) setLookback(days int) {
	c.MetricsLookbackDays = days
	c.MetricsDuration = time.Duration(days) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when storage is enabled")
	}
	if c.MetricsLookbackDays < 1 {
		return fmt.Errorf("metrics lookback must be at least 1 day")
	}
	if c.MetricsLookbackDays > 90 {
		return fmt.Errorf("metrics lookback cannot exceed 90 days")
	}
	if c.SafetyBuffer < 1.0 {
		return fmt.Errorf("safety buffer must be >= 1.0")
	}
	if c.CollectorTimeout <= 0 {
		return fmt.Errorf("COLLECTOR_TIMEOUT must be positive")
	}
	if c.CapabilityTTL <= 0 {
		return fmt.Errorf("CAPABILITY_TTL must be positive")
	}
	if c.DetectTimeout <= 0 {
		return fmt.Errorf("CAPABILITY_DETECT_TIMEOUT must be positive")
	}
	if c.CPUWeight < 0 || c.MemoryWeight < 0 {
		return fmt.Errorf("attribution weights must be non-negative")
	}
	if math.Abs(c.CPUWeight+c.MemoryWeight-1.0) > 1e-9 {
		return fmt.Errorf("CPU_WEIGHT + MEMORY_WEIGHT must equal 1.0, got %.3f", c.CPUWeight+c.MemoryWeight)
	}
	if c.IdleBusinessRatio < 0 || c.IdleBusinessRatio > 1 {
		return fmt.Errorf("IDLE_BUSINESS_RATIO must be within [0,1]")
	}
	if c.QueryRateLimit <= 0 {
		return fmt.Errorf("QUERY_RATE_LIMIT must be positive")
	}
	return nil
}
