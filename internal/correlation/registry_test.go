package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitResult[T any](t *testing.T, p *Pending[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "entry was never resolved")
	return v, err
}

func TestRegisterAndResolve(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))

	id, p := r.Register(time.Minute)
	require.NotEmpty(t, id)
	assert.Equal(t, id, p.ID())
	assert.True(t, r.Contains(id))
	assert.Equal(t, time.Minute, p.Deadline().Sub(p.CreatedAt()))

	assert.True(t, r.Resolve(id, "ok"))

	v, err := waitResult(t, p)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.False(t, r.Contains(id))
	assert.Equal(t, 0, r.Len())
}

func TestFirstResolutionWins(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	id, p := r.Register(time.Minute)

	require.True(t, r.Resolve(id, "first"))
	assert.False(t, r.Resolve(id, "second"))
	assert.False(t, r.Expire(id))
	assert.False(t, r.Fail(id, errors.New("late failure")))

	v, err := waitResult(t, p)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestExpireThenResolveIsIgnored(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	id, p := r.Register(time.Minute)

	require.True(t, r.Expire(id))
	assert.False(t, r.Resolve(id, "late"))

	_, err := waitResult(t, p)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTimerExpiresEntry(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	id, p := r.Register(20 * time.Millisecond)

	_, err := waitResult(t, p)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, r.Contains(id))
	assert.False(t, r.Resolve(id, "late"))
}

func TestResolveAfterDeadlineObservesTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry[string](zaptest.NewLogger(t), WithClock[string](clock.Now))

	id, p := r.Register(time.Hour)
	clock.Advance(2 * time.Hour)

	assert.False(t, r.Resolve(id, "late"))
	_, err := waitResult(t, p)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, r.Len())
}

func TestUnknownIDIsNoop(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	assert.False(t, r.Resolve("missing", "x"))
	assert.False(t, r.Expire("missing"))
	assert.False(t, r.Fail("missing", ErrCancelled))
}

func TestFail(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	id, p := r.Register(time.Minute)
	boom := errors.New("boom")

	require.True(t, r.Fail(id, boom))
	_, err := waitResult(t, p)
	assert.ErrorIs(t, err, boom)
}

func TestShutdownFailsPendingEntries(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	_, p1 := r.Register(time.Minute)
	_, p2 := r.Register(time.Minute)

	r.Shutdown()

	for _, p := range []*Pending[string]{p1, p2} {
		_, err := waitResult(t, p)
		assert.ErrorIs(t, err, ErrShutdown)
	}
	assert.Equal(t, 0, r.Len())

	id, p3 := r.Register(time.Minute)
	assert.False(t, r.Contains(id))
	_, err := waitResult(t, p3)
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestWaitHonoursContext(t *testing.T) {
	r := NewRegistry[string](zaptest.NewLogger(t))
	id, p := r.Register(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, r.Contains(id), "waiting with a dead context must not resolve the entry")
}

func TestCustomIDGenerator(t *testing.T) {
	var n atomic.Int64
	r := NewRegistry[int](zaptest.NewLogger(t), WithIDGenerator[int](func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}))

	id, _ := r.Register(time.Minute)
	assert.Equal(t, "id-1", id)
}

func TestConcurrentRegisterAndResolve(t *testing.T) {
	r := NewRegistry[int](zaptest.NewLogger(t))
	const n = 200

	var wg sync.WaitGroup
	var wins atomic.Int64
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, p := r.Register(time.Minute)

			var resolvers sync.WaitGroup
			for j := 0; j < 3; j++ {
				resolvers.Add(1)
				go func(j int) {
					defer resolvers.Done()
					if r.Resolve(id, i*10+j) {
						wins.Add(1)
					}
				}(j)
			}
			resolvers.Wait()

			v, err := p.Wait(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, i, v/10)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(n), wins.Load())
	assert.Equal(t, 0, r.Len())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r := NewRegistry[string](zaptest.NewLogger(t), WithMetrics[string](m))
	id1, _ := r.Register(time.Minute)
	id2, _ := r.Register(time.Minute)
	_, _ = r.Register(time.Minute)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.pending))

	r.Resolve(id1, "ok")
	r.Expire(id2)
	r.Shutdown()

	assert.Equal(t, float64(0), testutil.ToFloat64(m.pending))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolves.WithLabelValues(string(OutcomeReply))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolves.WithLabelValues(string(OutcomeTimeout))))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.resolves.WithLabelValues(string(OutcomeShutdown))))

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, m.resolves, again.resolves)
}

// floorGauge records the lowest value the pending gauge ever held.
type floorGauge struct {
	prometheus.Gauge
	mu    sync.Mutex
	value float64
	floor float64
}

func (g *floorGauge) Inc() { g.Add(1) }
func (g *floorGauge) Dec() { g.Add(-1) }

func (g *floorGauge) Add(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value += v
	g.floor = min(g.floor, g.value)
	g.Gauge.Add(v)
}

func TestPendingGaugeNeverNegative(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	gauge := &floorGauge{Gauge: m.pending}
	m.pending = gauge

	r := NewRegistry[string](zaptest.NewLogger(t), WithMetrics[string](m))
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register(0)
		}()
	}
	wg.Wait()
	timeouts := m.resolves.WithLabelValues(string(OutcomeTimeout))
	require.Eventually(t, func() bool { return testutil.ToFloat64(timeouts) == 200 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, r.Len())

	gauge.mu.Lock()
	defer gauge.mu.Unlock()
	assert.Equal(t, float64(0), gauge.floor)
	assert.Equal(t, float64(0), gauge.value)
}
