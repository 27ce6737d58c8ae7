package scanner

import (
	"context"
	"log/slog"

	"github.com/opscart/k8s-workload-assessor/pkg/billing"
	"github.com/opscart/k8s-workload-assessor/pkg/config"
	"github.com/opscart/k8s-workload-assessor/pkg/pricing"
	redis "github.com/redis/go-redis/v9"
)

// newBilling prices nodes with the configured provider, or the one matching
// the detected cloud, behind a Redis or in-process cache.
func (s *Scanner) newBilling(ctx context.Context, cfg *config.Config) billing.Client {
	name, region := cfg.PricingProvider, ""
	if caps, err := s.capabilities.Get(ctx); err == nil {
		region = caps.Region
		if name == "" {
			name = string(caps.CloudProvider)
		}
	} else {
		slog.Warn("capability detection failed, using default pricing", slog.String("error", err.Error()))
	}

	provider, err := pricing.NewProvider(&pricing.Config{Provider: name, Region: region})
	if err != nil {
		slog.Warn("unknown pricing provider, using default rates", slog.String("provider", name))
		provider = pricing.NewDefaultProvider(0, 0)
	}
	slog.Info("billing configured", slog.String("provider", provider.Name()), slog.String("region", region))

	var store billing.Store = billing.NewMemoryStore(cfg.BillingCacheTTL)
	if cfg.RedisAddr != "" {
		rs, err := billing.NewRedisStore(ctx, &redis.Options{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("redis unavailable, caching billing in memory", slog.String("error", err.Error()))
		} else {
			store = rs
			s.closers = append(s.closers, rs)
		}
	}

	return &billing.CachedClient{
		Next:  &billing.PricingClient{Clientset: s.clientset, Provider: provider, Region: region},
		Store: store,
		TTL:   cfg.BillingCacheTTL,
	}
}
