package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cerrors "github.com/opscart/k8s-workload-assessor/pkg/errors"
	"github.com/opscart/k8s-workload-assessor/pkg/models"
	"github.com/opscart/k8s-workload-assessor/pkg/pricing"
	redis "github.com/redis/go-redis/v9"
)

// Store is a byte cache with per-entry TTL
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MemoryStore keeps entries in process
type MemoryStore struct {
	cache *pricing.Cache[[]byte]
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: pricing.NewCache[[]byte](ttl)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

// Set stores value for the cache's TTL; the per-call ttl is ignored
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.cache.Set(key, value)
	return nil
}

// RedisStore shares cached billing answers between assessor instances
type RedisStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return newRedisStore(client), nil
}

func newRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "workload-assessor:billing:", timeout: 250 * time.Millisecond}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// CachedClient memoizes another Client. Windows are bucketed to the hour so
// a rolling "last 24h" query reuses the answer. A failing store is logged
// and bypassed.
type CachedClient struct {
	Next  Client
	Store Store
	TTL   time.Duration
}

func (c *CachedClient) GetNodeCosts(ctx context.Context, clusterID string, tr models.TimeRange) ([]models.NodeCostInfo, error) {
	key := fmt.Sprintf("nodes:%s:%s", clusterID, windowKey(tr))
	var nodes []models.NodeCostInfo
	if c.load(ctx, key, &nodes) {
		return nodes, nil
	}

	nodes, err := c.Next.GetNodeCosts(ctx, clusterID, tr)
	if err != nil {
		return nil, asUnreachable("get node costs", err)
	}
	c.save(ctx, key, nodes)
	return nodes, nil
}

func (c *CachedClient) GetClusterCosts(ctx context.Context, tr models.TimeRange) (*models.ClusterCostBreakdown, error) {
	key := "cluster:" + windowKey(tr)
	var breakdown models.ClusterCostBreakdown
	if c.load(ctx, key, &breakdown) {
		return &breakdown, nil
	}

	result, err := c.Next.GetClusterCosts(ctx, tr)
	if err != nil {
		return nil, asUnreachable("get cluster costs", err)
	}
	c.save(ctx, key, result)
	return result, nil
}

func (c *CachedClient) load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.Store.Get(ctx, key)
	if err != nil {
		slog.Warn("billing cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("discarding undecodable billing cache entry", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	slog.Debug("billing cache hit", slog.String("key", key))
	return true
}

func (c *CachedClient) save(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Store.Set(ctx, key, raw, c.TTL); err != nil {
		slog.Warn("billing cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func windowKey(tr models.TimeRange) string {
	return fmt.Sprintf("%d-%d", tr.Start.Truncate(time.Hour).Unix(), tr.End.Truncate(time.Hour).Unix())
}

func asUnreachable(op string, err error) error {
	if cerrors.IsCode(err, cerrors.ErrCodeBillingUnreachable) {
		return err
	}
	return Unreachable(op, err)
}
