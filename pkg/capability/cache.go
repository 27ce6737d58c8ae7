package capability

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long detected capabilities are served before revalidation
const DefaultTTL = 5 * time.Minute

// DefaultDetectTimeout bounds a single detection, first load or refresh
const DefaultDetectTimeout = 30 * time.Second

type snapshot struct {
	caps      *Capabilities
	expiresAt time.Time
}

// Cache holds the one piece of state shared across assessments.
// Reads never wait for a revalidation: once a value exists, an expired
// read returns the stale value and starts a single background refresh.
type Cache struct {
	detector Detector
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	current    atomic.Pointer[snapshot]
	refreshing atomic.Bool
	group      singleflight.Group
}

func NewCache(detector Detector, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		detector: detector,
		ttl:      ttl,
		timeout:  DefaultDetectTimeout,
		now:      time.Now,
	}
}

// SetDetectTimeout bounds each detection. Non-positive values keep the default.
func (c *Cache) SetDetectTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Get returns the cached capabilities, detecting them on first use.
// Concurrent first callers share one detection, which gives up after the
// detect timeout.
func (c *Cache) Get(ctx context.Context) (*Capabilities, error) {
	if s := c.current.Load(); s != nil {
		if c.now().After(s.expiresAt) {
			c.refresh(ctx)
		}
		return s.caps, nil
	}

	v, err, _ := c.group.Do("capabilities", func() (any, error) {
		if s := c.current.Load(); s != nil {
			return s.caps, nil
		}
		dctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		caps, err := c.detector.Detect(dctx)
		if err != nil {
			return nil, err
		}
		c.store(caps)
		return caps, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Capabilities), nil
}

func (c *Cache) store(caps *Capabilities) {
	c.current.Store(&snapshot{caps: caps, expiresAt: c.now().Add(c.ttl)})
}

func (c *Cache) refresh(ctx context.Context) {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}

	// The refresh outlives the request that noticed the expiry.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	go func() {
		defer cancel()
		defer c.refreshing.Store(false)

		caps, err := c.detector.Detect(rctx)
		if err != nil {
			slog.Warn("capability refresh failed, serving stale value", slog.String("error", err.Error()))
			return
		}
		c.store(caps)
	}()
}
