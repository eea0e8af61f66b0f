package vsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	lastNs atomic.Int64
	calls  atomic.Int32
	block  bool
	err    error
}

func (f *fakeSource) WaitVsync(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if f.err != nil {
		return 0, f.err
	}
	return f.lastNs.Add(16_666_667), nil
}

type fakeGauge struct {
	mu    sync.Mutex
	value float64
}

func (g *fakeGauge) Set(value float64, _ ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = value
}

func (g *fakeGauge) get() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func TestSampler_SamplesWhileObserved(t *testing.T) {
	source := &fakeSource{}
	s := NewSampler(source, WithSampleInterval(5*time.Millisecond))
	defer s.Close()

	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())

	s.AddObserver()
	assert.Eventually(t, func() bool { return s.SampledVsyncTimeNs() != 0 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return s.Status().Samples >= 3 }, time.Second, time.Millisecond,
		"sampler should re-arm after each sample")

	s.RemoveObserver()
	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())
	assert.False(t, s.Status().Subscribed)
}

func TestSampler_ReferenceCounting(t *testing.T) {
	const n = 16
	source := &fakeSource{}
	gauge := &fakeGauge{}
	s := NewSampler(source, WithSampleInterval(5*time.Millisecond), WithObserverGauge(gauge))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddObserver()
		}()
	}
	wg.Wait()
	assert.Equal(t, n, s.ObserverCount())
	assert.Equal(t, float64(n), gauge.get())

	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RemoveObserver()
		}()
	}
	wg.Wait()

	status := s.Status()
	assert.Equal(t, 1, status.ObserverCount)
	assert.True(t, status.Subscribed)
	assert.Eventually(t, func() bool { return s.SampledVsyncTimeNs() != 0 }, time.Second, time.Millisecond)

	s.RemoveObserver()
	status = s.Status()
	assert.Equal(t, 0, status.ObserverCount)
	assert.False(t, status.Subscribed)
	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())
	assert.Equal(t, float64(0), gauge.get())
}

func TestSampler_RemoveWithoutObserversIgnored(t *testing.T) {
	s := NewSampler(&fakeSource{})
	defer s.Close()

	s.RemoveObserver()
	assert.Equal(t, 0, s.ObserverCount())

	s.AddObserver()
	assert.Equal(t, 1, s.ObserverCount())
	s.RemoveObserver()
}

func TestSampler_UnsubscribeCancelsPendingRequest(t *testing.T) {
	source := &fakeSource{block: true}
	s := NewSampler(source)

	s.AddObserver()
	assert.Eventually(t, func() bool { return source.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.RemoveObserver()
	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
}

func TestSampler_RetriesAfterSourceError(t *testing.T) {
	source := &fakeSource{err: errors.New("no display")}
	s := NewSampler(source, WithSampleInterval(2*time.Millisecond))
	defer s.Close()

	s.AddObserver()
	assert.Eventually(t, func() bool { return source.calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())
	assert.Equal(t, int64(0), s.Status().Samples)
}

func TestSampler_ClosedIgnoresObservers(t *testing.T) {
	s := NewSampler(&fakeSource{})
	s.AddObserver()
	s.Close()
	s.Close()

	assert.Equal(t, int64(0), s.SampledVsyncTimeNs())
	s.AddObserver()
	s.RemoveObserver()
	assert.True(t, s.Status().Closed)
	assert.Equal(t, 0, s.ObserverCount())
}

func TestSoftwareSource(t *testing.T) {
	_, err := NewSoftwareSource(0)
	require.ErrorIs(t, err, ErrInvalidRefreshRate)
	_, err = NewSoftwareSource(-60)
	require.ErrorIs(t, err, ErrInvalidRefreshRate)

	src, err := NewSoftwareSource(1000)
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, src.Period())

	first, err := src.WaitVsync(context.Background())
	require.NoError(t, err)
	second, err := src.WaitVsync(context.Background())
	require.NoError(t, err)

	assert.Greater(t, second, first)
	assert.Zero(t, (first-src.epochNs)%src.periodNs)
	assert.Zero(t, (second-src.epochNs)%src.periodNs)
}

func TestSoftwareSource_Next(t *testing.T) {
	src := &SoftwareSource{periodNs: 100, epochNs: 1000}

	assert.Equal(t, int64(1100), src.next(1000))
	assert.Equal(t, int64(1100), src.next(1050))
	assert.Equal(t, int64(1200), src.next(1100))
	assert.Equal(t, int64(1000), src.next(900))
}

func TestSoftwareSource_Cancelled(t *testing.T) {
	src, err := NewSoftwareSource(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.WaitVsync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
