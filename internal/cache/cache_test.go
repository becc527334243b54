package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/canvas"
	"github.com/danielpatrickdp/brain-cascade/go-controller/internal/metrics"
	_ "modernc.org/sqlite"
)

// #region helpers

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// one connection so every query sees the same in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func fastOptions() Options {
	return Options{Retries: 2, Backoff: time.Millisecond}
}

func buildOf(fp canvas.Fingerprint, calls *int32) BuildFunc {
	return func(ctx context.Context) (*canvas.Canvas, error) {
		atomic.AddInt32(calls, 1)
		time.Sleep(30 * time.Millisecond)
		return &canvas.Canvas{Fingerprint: fp, KeyPoints: []string{"k"}, SizeEstimate: 10}, nil
	}
}

// #endregion helpers

// #region dedup-tests

func TestGetOrBuild_ConcurrentDedup(t *testing.T) {
	c := New(NewMemoryStore(), fastOptions())
	fp := canvas.FingerprintOf("doc")
	var calls int32

	const n = 16
	results := make([]*canvas.Canvas, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			cv, err := c.GetOrBuild(context.Background(), fp, buildOf(fp, &calls))
			if err != nil {
				t.Errorf("caller %d: %v", i, err)
				return
			}
			results[i] = cv
		}(i)
	}
	close(start)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected 1 build, got %d", calls)
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different canvas pointer", i)
		}
	}
	if c.State(fp) != StateReady {
		t.Errorf("state = %q, want ready", c.State(fp))
	}
}

func TestGetOrBuild_DifferentKeysDoNotBlock(t *testing.T) {
	c := New(nil, fastOptions())
	slowFP := canvas.FingerprintOf("slow")
	fastFP := canvas.FingerprintOf("fast")
	release := make(chan struct{})

	go c.GetOrBuild(context.Background(), slowFP, func(ctx context.Context) (*canvas.Canvas, error) {
		<-release
		return &canvas.Canvas{}, nil
	})
	defer close(release)

	done := make(chan struct{})
	go func() {
		c.GetOrBuild(context.Background(), fastFP, func(ctx context.Context) (*canvas.Canvas, error) {
			return &canvas.Canvas{}, nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("build for a different fingerprint was blocked")
	}
}

func TestFetch_ReportsHit(t *testing.T) {
	c := New(nil, fastOptions())
	fp := canvas.FingerprintOf("doc")
	var calls int32

	_, hit, err := c.Fetch(context.Background(), fp, buildOf(fp, &calls))
	if err != nil || hit {
		t.Fatalf("first fetch: hit=%v err=%v", hit, err)
	}
	_, hit, err = c.Fetch(context.Background(), fp, buildOf(fp, &calls))
	if err != nil || !hit {
		t.Fatalf("second fetch: hit=%v err=%v", hit, err)
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Builds != 1 {
		t.Errorf("stats = %+v", s)
	}
}

// #endregion dedup-tests

// #region failure-tests

func TestGetOrBuild_FailureDoesNotPoison(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, fastOptions())
	fp := canvas.FingerprintOf("flaky")
	var calls int32

	_, err := c.GetOrBuild(context.Background(), fp, func(ctx context.Context) (*canvas.Canvas, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("encoder down")
	})
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
	if be.Attempts != 3 || calls != 3 {
		t.Errorf("attempts=%d calls=%d, want 3", be.Attempts, calls)
	}
	if c.State(fp) != StateAbsent {
		t.Errorf("state after failure = %q", c.State(fp))
	}
	if _, ok := store.entries[fp]; ok {
		t.Error("building marker left in store")
	}

	cv, err := c.GetOrBuild(context.Background(), fp, buildOf(fp, &calls))
	if err != nil || cv == nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestGetOrBuild_RetrySucceeds(t *testing.T) {
	c := New(nil, fastOptions())
	fp := canvas.FingerprintOf("second-time")
	var calls int32
	cv, err := c.GetOrBuild(context.Background(), fp, func(ctx context.Context) (*canvas.Canvas, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("transient")
		}
		return &canvas.Canvas{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cv.Fingerprint != fp {
		t.Errorf("fingerprint not stamped: %q", cv.Fingerprint)
	}
}

func TestGetOrBuild_CorruptEntry(t *testing.T) {
	store := NewMemoryStore()
	fp := canvas.FingerprintOf("doc")
	store.entries[fp] = memEntry{state: StateReady, data: []byte("{broken")}
	c := New(store, fastOptions())
	var calls int32

	_, err := c.GetOrBuild(context.Background(), fp, buildOf(fp, &calls))
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if calls != 0 {
		t.Errorf("corrupt entry was rebuilt")
	}
}

func TestGetOrBuild_MismatchedFingerprint(t *testing.T) {
	c := New(nil, Options{})
	fp := canvas.FingerprintOf("doc")
	_, err := c.GetOrBuild(context.Background(), fp, func(ctx context.Context) (*canvas.Canvas, error) {
		return &canvas.Canvas{Fingerprint: "other"}, nil
	})
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("expected BuildError, got %v", err)
	}
}

// #endregion failure-tests

// #region sqlite-tests

func TestSQLiteStore_Persistence(t *testing.T) {
	db := newTestDB(t)
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	fp := canvas.FingerprintOf("persisted")
	var calls int32

	first := New(store, fastOptions())
	if _, err := first.GetOrBuild(context.Background(), fp, buildOf(fp, &calls)); err != nil {
		t.Fatal(err)
	}

	// a fresh cache over the same store loads instead of rebuilding
	second := New(store, fastOptions())
	cv, hit, err := second.Fetch(context.Background(), fp, buildOf(fp, &calls))
	if err != nil {
		t.Fatal(err)
	}
	if !hit || calls != 1 {
		t.Errorf("hit=%v calls=%d", hit, calls)
	}
	if cv.KeyPoints[0] != "k" {
		t.Errorf("canvas lost content: %+v", cv)
	}

	infos, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].State != StateReady || infos[0].Bytes == 0 {
		t.Errorf("list = %+v", infos)
	}
}

func TestSQLiteStore_StaleBuildingReadsAbsent(t *testing.T) {
	db := newTestDB(t)
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	fp := canvas.FingerprintOf("crashed")
	if err := store.Begin(ctx, fp); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Load(ctx, fp); found {
		t.Fatal("building row reported as loadable")
	}

	var calls int32
	c := New(store, fastOptions())
	if _, err := c.GetOrBuild(ctx, fp, buildOf(fp, &calls)); err != nil {
		t.Fatalf("build over stale marker: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestSQLiteStore_AbortKeepsReady(t *testing.T) {
	db := newTestDB(t)
	store, _ := NewSQLiteStore(db)
	ctx := context.Background()
	fp := canvas.FingerprintOf("kept")
	store.Commit(ctx, fp, []byte(`{"fingerprint":"`+string(fp)+`"}`))
	store.Begin(ctx, fp)
	store.Abort(ctx, fp)
	if _, found, err := store.Load(ctx, fp); !found || err != nil {
		t.Errorf("ready row lost: found=%v err=%v", found, err)
	}
}

// #endregion sqlite-tests

// #region redis-tests

func TestRedisStore_RoundTrip(t *testing.T) {
	url := os.Getenv("BRAIN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BRAIN_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, url)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	fp := canvas.FingerprintOf("redis-" + time.Now().String())
	if err := store.Begin(ctx, fp); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Load(ctx, fp); found {
		t.Fatal("building entry visible")
	}
	if err := store.Commit(ctx, fp, []byte("data")); err != nil {
		t.Fatal(err)
	}
	data, found, err := store.Load(ctx, fp)
	if err != nil || !found || string(data) != "data" {
		t.Errorf("load = %q %v %v", data, found, err)
	}
	store.client.Del(ctx, readyKey(fp))
}

// newMiniredisStore connects a fresh client to mr, as a separate process would.
func newMiniredisStore(t *testing.T, mr *miniredis.Miniredis) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStoreFromClient(client)
	store.poll = 5 * time.Millisecond
	return store
}

func TestRedisStore_SharedBuildRunsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	caches := []*Cache{
		New(newMiniredisStore(t, mr), fastOptions()),
		New(newMiniredisStore(t, mr), fastOptions()),
	}
	fp := canvas.FingerprintOf("shared across processes")
	var calls int32
	build := buildOf(fp, &calls)

	var wg sync.WaitGroup
	results := make([]*canvas.Canvas, len(caches))
	errs := make([]error, len(caches))
	for i, c := range caches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.GetOrBuild(context.Background(), fp, build)
		}()
	}
	wg.Wait()

	for i := range caches {
		if errs[i] != nil {
			t.Fatalf("cache %d: %v", i, errs[i])
		}
		if results[i] == nil || results[i].Fingerprint != fp {
			t.Fatalf("cache %d: got %+v", i, results[i])
		}
	}
	if calls != 1 {
		t.Errorf("build ran %d times across processes, want 1", calls)
	}
	if mr.Exists(buildingKey(fp)) {
		t.Error("building marker left behind")
	}
	if !mr.Exists(readyKey(fp)) {
		t.Error("ready entry missing")
	}
}

func TestRedisStore_MarkerOwnership(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newMiniredisStore(t, mr), newMiniredisStore(t, mr)
	ctx := context.Background()
	fp := canvas.FingerprintOf("owned")

	if err := a.Begin(ctx, fp); err != nil {
		t.Fatal(err)
	}
	// b never claimed the marker, so its abort must not clear a's.
	if err := b.Abort(ctx, fp); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(buildingKey(fp)) {
		t.Fatal("foreign abort removed the marker")
	}

	// a's marker expires and b takes over; a's late abort leaves b's marker.
	mr.FastForward(buildingTTL + time.Second)
	if err := b.Begin(ctx, fp); err != nil {
		t.Fatalf("begin after expiry: %v", err)
	}
	if err := a.Abort(ctx, fp); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists(buildingKey(fp)) {
		t.Fatal("stale abort removed the new owner's marker")
	}
	if err := b.Commit(ctx, fp, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(buildingKey(fp)) {
		t.Error("owner commit left the marker")
	}
	if data, found, err := a.Load(ctx, fp); err != nil || !found || string(data) != "data" {
		t.Errorf("load = %q %v %v", data, found, err)
	}
}

func TestRedisStore_BeginWaitsForForeignBuild(t *testing.T) {
	mr := miniredis.RunT(t)
	a, b := newMiniredisStore(t, mr), newMiniredisStore(t, mr)
	ctx := context.Background()
	fp := canvas.FingerprintOf("waited")

	if err := a.Begin(ctx, fp); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		a.Commit(ctx, fp, []byte("data"))
	}()
	if err := b.Begin(ctx, fp); !errors.Is(err, ErrBuiltElsewhere) {
		t.Fatalf("expected ErrBuiltElsewhere, got %v", err)
	}

	// waiting ends with ctx when the foreign build never finishes
	other := canvas.FingerprintOf("stuck")
	if err := a.Begin(ctx, other); err != nil {
		t.Fatal(err)
	}
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := b.Begin(short, other); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

// #endregion redis-tests

// #region metrics-tests

func TestCache_HitsMatchMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	opts := fastOptions()
	opts.Metrics = m
	c := New(nil, opts)
	fp := canvas.FingerprintOf("counted")
	var calls int32
	build := buildOf(fp, &calls)

	var wg sync.WaitGroup
	for range 3 {
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := c.GetOrBuild(context.Background(), fp, build); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
	}

	st := c.Stats()
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); int64(got) != st.Hits {
		t.Errorf("hit metric = %v, Stats.Hits = %d", got, st.Hits)
	}
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")); int64(got) != st.Misses {
		t.Errorf("miss metric = %v, Stats.Misses = %d", got, st.Misses)
	}
}

func TestCache_StoreHitRecordsMetric(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store := NewMemoryStore()
	fp := canvas.FingerprintOf("warm")
	data, _ := canvas.Marshal(&canvas.Canvas{Fingerprint: fp, KeyPoints: []string{"k"}, SizeEstimate: 3})
	store.Commit(context.Background(), fp, data)

	c := New(store, Options{Metrics: m})
	var calls int32
	for range 2 {
		if _, err := c.GetOrBuild(context.Background(), fp, buildOf(fp, &calls)); err != nil {
			t.Fatal(err)
		}
	}
	// once from the store, once from the hot tier
	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")); got != 2 || c.Stats().Hits != 2 {
		t.Errorf("hit metric = %v, Stats.Hits = %d", got, c.Stats().Hits)
	}
	if calls != 0 {
		t.Errorf("build ran %d times", calls)
	}
}

// #endregion metrics-tests
