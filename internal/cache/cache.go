package cache

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/metrics"
)

// #endregion

// #region types

// BuildFunc produces the Canvas for a fingerprint on a miss.
type BuildFunc func(ctx context.Context) (*canvas.Canvas, error)

// Options tunes build retries.
type Options struct {
	Retries int           // extra attempts after the first
	Backoff time.Duration // doubled after each failed attempt
	Metrics *metrics.Metrics
}

// DefaultOptions returns two retries with a 100ms base backoff.
func DefaultOptions() Options {
	return Options{Retries: 2, Backoff: 100 * time.Millisecond}
}

// Stats counts cache activity since construction.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Builds   int64 `json:"builds"`
	Failures int64 `json:"failures"`
}

// Cache is a content-addressed canvas cache. Concurrent requests for the
// same fingerprint share one build; different fingerprints never wait on
// each other. Entries are never evicted.
type Cache struct {
	hot   *gocache.Cache
	store Store
	group singleflight.Group
	opts  Options

	mu       sync.Mutex
	building map[canvas.Fingerprint]struct{}
	stats    Stats
}

// New creates a Cache over store. A nil store keeps everything in process.
func New(store Store, opts Options) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Cache{
		hot:      gocache.New(gocache.NoExpiration, 0),
		store:    store,
		opts:     opts,
		building: make(map[canvas.Fingerprint]struct{}),
	}
}

// #endregion types

// #region get-or-build

type flightResult struct {
	canvas *canvas.Canvas
	built  bool
}

// GetOrBuild returns the canvas for fp, running build at most once across
// concurrent callers.
func (c *Cache) GetOrBuild(ctx context.Context, fp canvas.Fingerprint, build BuildFunc) (*canvas.Canvas, error) {
	cv, _, err := c.Fetch(ctx, fp, build)
	return cv, err
}

// Fetch is GetOrBuild that also reports whether the canvas was served
// without this call running build.
func (c *Cache) Fetch(ctx context.Context, fp canvas.Fingerprint, build BuildFunc) (*canvas.Canvas, bool, error) {
	if v, ok := c.hot.Get(string(fp)); ok {
		c.hit()
		return v.(*canvas.Canvas), true, nil
	}

	leader := false
	v, err, _ := c.group.Do(string(fp), func() (any, error) {
		leader = true
		return c.load(ctx, fp, build)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(flightResult)
	return res.canvas, !(leader && res.built), nil
}

// load runs inside the singleflight for fp.
func (c *Cache) load(ctx context.Context, fp canvas.Fingerprint, build BuildFunc) (flightResult, error) {
	if v, ok := c.hot.Get(string(fp)); ok {
		c.hit()
		return flightResult{canvas: v.(*canvas.Canvas)}, nil
	}

	data, found, err := c.store.Load(ctx, fp)
	if err != nil {
		return flightResult{}, fmt.Errorf("cache load: %w", err)
	}
	if found {
		cv, err := c.decode(fp, data)
		if err != nil {
			return flightResult{}, err
		}
		c.hit()
		return flightResult{canvas: cv}, nil
	}

	c.count(func(s *Stats) { s.Misses++ })
	c.opts.Metrics.RecordCache("miss")
	cv, built, err := c.build(ctx, fp, build)
	if err != nil {
		c.count(func(s *Stats) { s.Failures++ })
		c.opts.Metrics.RecordCache("build_error")
		return flightResult{}, err
	}
	return flightResult{canvas: cv, built: built}, nil
}

// decode unmarshals a stored entry and promotes it to the hot tier.
func (c *Cache) decode(fp canvas.Fingerprint, data []byte) (*canvas.Canvas, error) {
	cv, err := canvas.Unmarshal(fp, data)
	if err != nil {
		log.Printf("[CACHE] corrupt entry %s: %v", fp, err)
		c.opts.Metrics.RecordCache("corrupt")
		return nil, &CorruptionError{Fingerprint: fp, Err: err}
	}
	c.hot.Set(string(fp), cv, gocache.NoExpiration)
	return cv, nil
}

// hit counts a lookup served without building, in Stats and in metrics.
func (c *Cache) hit() {
	c.count(func(s *Stats) { s.Hits++ })
	c.opts.Metrics.RecordCache("hit")
}

// #endregion get-or-build

// #region build

// build runs build with retries. The bool is false when another process
// committed the entry while Begin waited.
func (c *Cache) build(ctx context.Context, fp canvas.Fingerprint, build BuildFunc) (*canvas.Canvas, bool, error) {
	c.mu.Lock()
	c.building[fp] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.building, fp)
		c.mu.Unlock()
	}()

	if err := c.store.Begin(ctx, fp); err != nil {
		if errors.Is(err, ErrBuiltElsewhere) {
			return c.loadCommitted(ctx, fp)
		}
		return nil, false, &BuildError{Fingerprint: fp, Err: err}
	}

	attempts := 0
	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.opts.Backoff<<(attempt-1)); err != nil {
				lastErr = err
				break
			}
		}
		attempts++
		c.count(func(s *Stats) { s.Builds++ })

		cv, err := build(ctx)
		if err == nil {
			err = checkBuilt(fp, cv)
		}
		if err != nil {
			lastErr = err
			log.Printf("[CACHE] build %s attempt %d failed: %v", fp, attempts, err)
			continue
		}

		data, err := canvas.Marshal(cv)
		if err != nil {
			lastErr = err
			break
		}
		if err := c.store.Commit(ctx, fp, data); err != nil {
			lastErr = err
			break
		}
		c.hot.Set(string(fp), cv, gocache.NoExpiration)
		log.Printf("[CACHE] built %s (size=%d, attempts=%d)", fp, cv.SizeEstimate, attempts)
		return cv, true, nil
	}

	// Abort must run even when ctx is already cancelled.
	if err := c.store.Abort(context.WithoutCancel(ctx), fp); err != nil {
		log.Printf("[CACHE] abort %s: %v", fp, err)
	}
	return nil, false, &BuildError{Fingerprint: fp, Attempts: attempts, Err: lastErr}
}

func (c *Cache) loadCommitted(ctx context.Context, fp canvas.Fingerprint) (*canvas.Canvas, bool, error) {
	data, found, err := c.store.Load(ctx, fp)
	if err != nil {
		return nil, false, fmt.Errorf("cache load: %w", err)
	}
	if !found {
		return nil, false, &BuildError{Fingerprint: fp, Err: errors.New("entry missing after remote build")}
	}
	cv, err := c.decode(fp, data)
	if err != nil {
		return nil, false, err
	}
	log.Printf("[CACHE] %s built by another process", fp)
	return cv, false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func checkBuilt(fp canvas.Fingerprint, cv *canvas.Canvas) error {
	if cv == nil {
		return errors.New("build returned no canvas")
	}
	if cv.Fingerprint == "" {
		cv.Fingerprint = fp
	}
	if cv.Fingerprint != fp {
		return fmt.Errorf("built canvas has fingerprint %s", cv.Fingerprint)
	}
	return nil
}

// #endregion build

// #region introspection

// Peek reports the in-process view of fp without touching the store.
func (c *Cache) Peek(fp canvas.Fingerprint) Entry {
	c.mu.Lock()
	_, building := c.building[fp]
	c.mu.Unlock()
	if building {
		return Entry{Fingerprint: fp, State: StateBuilding}
	}
	if v, ok := c.hot.Get(string(fp)); ok {
		return Entry{Fingerprint: fp, Canvas: v.(*canvas.Canvas), State: StateReady}
	}
	return Entry{Fingerprint: fp, State: StateAbsent}
}

// State reports building, ready or absent for fp.
func (c *Cache) State(fp canvas.Fingerprint) EntryState {
	return c.Peek(fp).State
}

// Stats returns a copy of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Cache) count(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}

// #endregion introspection
