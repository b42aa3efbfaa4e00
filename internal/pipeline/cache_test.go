package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// fakeRunner returns a distinct Result per call, or err when set.
type fakeRunner struct {
	calls atomic.Int32
	gate  chan struct{}

	mu  sync.Mutex
	err error
}

func (f *fakeRunner) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeRunner) Run(ctx context.Context) (*agreement.Result, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &agreement.Result{Kappas: make([]agreement.KappaRow, n)}, nil
}

func newTestCache(r Runner) (*Cache, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	return NewCache(r, time.Minute, clock), clock
}

func TestCache_ServesSnapshotWithinTTL(t *testing.T) {
	r := &fakeRunner{}
	c, clock := newTestCache(r)
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	clock.Advance(59 * time.Second)
	second, err := c.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestCache_RecomputesAfterExpiry(t *testing.T) {
	r := &fakeRunner{}
	c, clock := newTestCache(r)
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := c.Get(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, second.Result.Kappas, 2)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestCache_FailureKeepsPreviousSnapshot(t *testing.T) {
	r := &fakeRunner{}
	c, clock := newTestCache(r)
	ctx := context.Background()

	good, err := c.Get(ctx)
	require.NoError(t, err)

	boom := errors.New("malformed input")
	r.setErr(boom)
	clock.Advance(2 * time.Minute)

	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Same(t, good, c.Latest())

	r.setErr(nil)
	recovered, err := c.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, good, recovered)
}

func TestCache_FirstRunFailure(t *testing.T) {
	boom := errors.New("no data")
	r := &fakeRunner{err: boom}
	c, _ := newTestCache(r)

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, c.Latest())
}

func TestCache_Invalidate(t *testing.T) {
	r := &fakeRunner{}
	c, _ := newTestCache(r)
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	c.Invalidate()
	second, err := c.Get(ctx)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestCache_ConcurrentCallersShareOneRun(t *testing.T) {
	r := &fakeRunner{gate: make(chan struct{})}
	c, _ := newTestCache(r)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	snaps := make([]*Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := c.Get(ctx)
			assert.NoError(t, err)
			snaps[i] = s
		}(i)
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight run.
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for _, s := range snaps {
		assert.Same(t, snaps[0], s)
	}
}

func TestCache_CallerCancellation(t *testing.T) {
	r := &fakeRunner{gate: make(chan struct{})}
	c, _ := newTestCache(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The shared run still completes and becomes the snapshot.
	close(r.gate)
	require.Eventually(t, func() bool { return c.Latest() != nil }, time.Second, time.Millisecond)
}

func TestCache_RefreshEvery(t *testing.T) {
	r := &fakeRunner{}
	c, clock := newTestCache(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		c.RefreshEvery(ctx, 10*time.Second)
		close(stopped)
	}()

	// Wait for the loop to register its ticker before advancing.
	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Second)
		return r.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)
	require.NotNil(t, c.Latest())

	cancel()
	<-stopped
}

func TestCache_OnSnapshot(t *testing.T) {
	r := &fakeRunner{}
	c, clock := newTestCache(r)
	var seen []*Snapshot
	c.OnSnapshot(func(s *Snapshot) { seen = append(seen, s) })
	ctx := context.Background()

	first, err := c.Get(ctx)
	require.NoError(t, err)
	_, err = c.Get(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := c.Get(ctx)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Same(t, first, seen[0])
	assert.Same(t, second, seen[1])
}

func TestCache_GetAfterInvalidateSkipsInFlightRun(t *testing.T) {
	r := &fakeRunner{gate: make(chan struct{})}
	c, _ := newTestCache(r)
	ctx := context.Background()

	firstCh := make(chan *Snapshot, 1)
	go func() {
		s, err := c.Get(ctx)
		assert.NoError(t, err)
		firstCh <- s
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Invalidate()
	secondCh := make(chan *Snapshot, 1)
	go func() {
		s, err := c.Get(ctx)
		assert.NoError(t, err)
		secondCh <- s
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, time.Millisecond)
	close(r.gate)

	first, second := <-firstCh, <-secondCh
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Greater(t, second.generation, first.generation)
	// Whichever run finishes last, the newer generation stays current.
	assert.Same(t, second, c.Latest())
}
