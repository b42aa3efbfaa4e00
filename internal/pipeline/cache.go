package pipeline

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/timeutil"
)

// Snapshot is one immutable pipeline result. Readers holding a Snapshot never
// see it change.
type Snapshot struct {
	RunID      uuid.UUID
	Result     *agreement.Result
	ComputedAt time.Time
	Duration   time.Duration

	generation uint64
}

// Cache serves the latest Snapshot for up to TTL and recomputes it on demand.
// Concurrent callers that find the snapshot expired share a single run. A
// failed run leaves the previous snapshot in place.
type Cache struct {
	runner Runner
	ttl    time.Duration
	clock  timeutil.Clock

	group      singleflight.Group
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	onSnapshot func(*Snapshot)
}

// NewCache returns a cache around runner. A nil clock uses the real clock.
func NewCache(runner Runner, ttl time.Duration, clock timeutil.Clock) *Cache {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Cache{runner: runner, ttl: ttl, clock: clock}
}

// OnSnapshot registers fn to run after each successful recompute, on the
// goroutine that performed it. It must be set before the first Get.
func (c *Cache) OnSnapshot(fn func(*Snapshot)) {
	c.onSnapshot = fn
}

// Get returns a snapshot younger than the TTL, running the pipeline if none
// is available.
func (c *Cache) Get(ctx context.Context) (*Snapshot, error) {
	if s := c.current.Load(); c.fresh(s) {
		monitoring.ObserveCache("hit")
		return s, nil
	}
	monitoring.ObserveCache("miss")

	// Runs are shared per generation so a caller arriving after Invalidate
	// never joins a run that started before it.
	gen := c.generation.Load()
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		// Another caller may have finished a run while we waited for the key.
		if s := c.current.Load(); c.fresh(s) {
			return s, nil
		}
		return c.refresh(context.WithoutCancel(ctx), gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			monitoring.ObserveCache("error")
			return nil, r.Err
		}
		return r.Val.(*Snapshot), nil
	}
}

// Latest returns the last successful snapshot regardless of age, or nil.
func (c *Cache) Latest() *Snapshot {
	return c.current.Load()
}

// Invalidate makes the next Get recompute. A run already in flight still
// completes for the callers waiting on it, but later callers start a new run
// and its snapshot never replaces a newer one.
func (c *Cache) Invalidate() {
	c.generation.Add(1)
}

// RefreshEvery recomputes the snapshot each interval until ctx is done.
// Failures are logged and the previous snapshot is kept.
func (c *Cache) RefreshEvery(ctx context.Context, interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			c.Invalidate()
			if _, err := c.Get(ctx); err != nil && ctx.Err() == nil {
				monitoring.Logf("background refresh failed: %v", err)
			}
		}
	}
}

func (c *Cache) fresh(s *Snapshot) bool {
	if s == nil || s.generation != c.generation.Load() {
		return false
	}
	return c.clock.Since(s.ComputedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context, gen uint64) (*Snapshot, error) {
	start := c.clock.Now()
	res, err := c.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	s := &Snapshot{
		RunID:      uuid.New(),
		Result:     res,
		ComputedAt: c.clock.Now(),
		Duration:   c.clock.Since(start),
		generation: gen,
	}
	if !c.publish(s) {
		monitoring.Debugf("pipeline snapshot %s superseded before it finished", s.RunID)
		return s, nil
	}
	if c.onSnapshot != nil {
		c.onSnapshot(s)
	}
	monitoring.Logf("pipeline snapshot %s ready (%d kappa rows, %d skipped)",
		s.RunID, len(res.Kappas), len(res.Skipped))
	return s, nil
}

// publish stores s unless a snapshot of a later generation is already current.
func (c *Cache) publish(s *Snapshot) bool {
	for {
		cur := c.current.Load()
		if cur != nil && cur.generation > s.generation {
			return false
		}
		if c.current.CompareAndSwap(cur, s) {
			return true
		}
	}
}
