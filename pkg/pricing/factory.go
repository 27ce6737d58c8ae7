package pricing

import "fmt"

// NewProvider creates a pricing provider for a detected or configured cloud.
// An empty name selects the default provider.
func NewProvider(config *Config) (Provider, error) {
	switch config.Provider {
	case "azure":
		return NewAzureProvider(config.Region), nil
	case "aws":
		return NewAWSProvider(config.Region), nil
	case "gcp":
		return NewGCPProvider(config.Region), nil
	case "", "default":
		return NewDefaultProvider(config.DefaultCPU, config.DefaultMemory), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", config.Provider)
	}
}
