package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
	"github.com/open-beagle/bdwind-framerelease/internal/framerelease"
	"github.com/open-beagle/bdwind-framerelease/internal/scheduler"
)

type countingRecorder struct {
	mu          sync.Mutex
	adjustments int
	resyncs     int
	released    int
	dropped     int
}

func (r *countingRecorder) ObserveAdjustment(_, _ int64, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjustments++
}

func (r *countingRecorder) ObserveResync(framerelease.SyncReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resyncs++
}

func (r *countingRecorder) ObserveRelease(int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func (r *countingRecorder) ObserveDrop(int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped++
}

func TestNewReleaseFactory_RequiresSampler(t *testing.T) {
	_, err := NewReleaseFactory(ReleaseOptions{})
	assert.ErrorIs(t, err, framerelease.ErrNilSampler)
}

func TestReleaseService_ReleasesFrames(t *testing.T) {
	recorder := &countingRecorder{}
	var streamID string
	factory, err := NewReleaseFactory(ReleaseOptions{
		FrameRelease: &config.FrameReleaseConfig{AlignVsync: false, LogResyncs: true},
		Scheduler:    config.DefaultSchedulerConfig(),
		Recorder: func(id string) ReleaseRecorder {
			streamID = id
			return recorder
		},
	})
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.Register(ReleaseServiceName, factory))
	session, err := r.Open(ReleaseServiceName, nil)
	require.NoError(t, err)
	defer session.Close()
	assert.Equal(t, session.ID(), streamID)

	var first releaseResponse
	for i := int64(0); i < 3; i++ {
		resp, err := session.Receive(EncodeFrame(1_000_000+i*10_000, []byte{0xde, 0xad}))
		require.NoError(t, err)

		var decoded releaseResponse
		require.NoError(t, json.Unmarshal(resp, &decoded))
		assert.Empty(t, decoded.Error)
		assert.False(t, decoded.Dropped)
		assert.Equal(t, 1_000_000+i*10_000, decoded.PresentationTimeUs)
		if i == 0 {
			first = decoded
		} else {
			assert.Equal(t, first.UnadjustedReleaseNs+i*10_000_000, decoded.UnadjustedReleaseNs)
		}
	}

	resp, err := session.Receive(nil)
	require.NoError(t, err)
	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(resp, &stats))
	assert.Equal(t, session.ID(), stats.StreamID)
	assert.Equal(t, int64(3), stats.Released)
	assert.True(t, stats.Started)

	recorder.mu.Lock()
	assert.Equal(t, 3, recorder.adjustments)
	assert.Equal(t, 1, recorder.resyncs)
	assert.Equal(t, 3, recorder.released)
	recorder.mu.Unlock()

	r.Suspend()
	resp, err = session.Receive(nil)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(resp, &stats))
	assert.False(t, stats.Started)
}

func TestReleaseService_AlignedObservesSampler(t *testing.T) {
	sampler := &fakeSampler{}
	factory, err := NewReleaseFactory(ReleaseOptions{
		FrameRelease: config.DefaultFrameReleaseConfig(),
		Sampler:      sampler,
	})
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.Register(ReleaseServiceName, factory))
	session, err := r.Open(ReleaseServiceName, nil)
	require.NoError(t, err)

	_, err = session.Receive(EncodeFrame(0, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, sampler.observers)

	session.Close()
	assert.Equal(t, 0, sampler.observers)
}

func openReleaseSession(t *testing.T, r *Registry) *Session {
	t.Helper()

	schedulerCfg := config.DefaultSchedulerConfig()
	schedulerCfg.MaxWait = 5 * time.Second
	factory, err := NewReleaseFactory(ReleaseOptions{
		FrameRelease: &config.FrameReleaseConfig{AlignVsync: false},
		Scheduler:    schedulerCfg,
	})
	require.NoError(t, err)
	require.NoError(t, r.Register(ReleaseServiceName, factory))

	session, err := r.Open(ReleaseServiceName, nil)
	require.NoError(t, err)
	_, err = session.Receive(EncodeFrame(0, nil))
	require.NoError(t, err)
	return session
}

// receiveAsync 在后台发送一帧，返回解码后的响应
func receiveAsync(session *Session, ptsUs int64) <-chan releaseResponse {
	out := make(chan releaseResponse, 1)
	go func() {
		var decoded releaseResponse
		resp, err := session.Receive(EncodeFrame(ptsUs, nil))
		if err != nil {
			decoded.Error = err.Error()
		} else if err := json.Unmarshal(resp, &decoded); err != nil {
			decoded.Error = err.Error()
		}
		out <- decoded
	}()
	return out
}

func TestReleaseSession_CloseInterruptsPendingFrame(t *testing.T) {
	r := NewRegistry()
	session := openReleaseSession(t, r)

	pending := receiveAsync(session, 3_000_000)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	session.Close()
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case resp := <-pending:
		assert.NotEmpty(t, resp.Error)
	case <-time.After(time.Second):
		t.Fatal("pending frame was not interrupted by Close")
	}
	assert.Empty(t, r.Sessions())
}

func TestReleaseSession_SuspendInterruptsAndRejectsFrames(t *testing.T) {
	r := NewRegistry()
	session := openReleaseSession(t, r)
	defer session.Close()

	pending := receiveAsync(session, 3_000_000)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	r.Suspend()
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case resp := <-pending:
		assert.Equal(t, context.Canceled.Error(), resp.Error)
	case <-time.After(time.Second):
		t.Fatal("pending frame was not interrupted by Suspend")
	}

	resp, err := session.Receive(EncodeFrame(3_033_000, nil))
	require.NoError(t, err)
	var decoded releaseResponse
	require.NoError(t, json.Unmarshal(resp, &decoded))
	assert.Equal(t, ErrSuspended.Error(), decoded.Error)

	resp, err = session.Receive(nil)
	require.NoError(t, err)
	var stats scheduler.Stats
	require.NoError(t, json.Unmarshal(resp, &stats))
	assert.False(t, stats.Started)

	r.StartOrResume()
	resp, err = session.Receive(EncodeFrame(3_066_000, nil))
	require.NoError(t, err)
	decoded = releaseResponse{}
	require.NoError(t, json.Unmarshal(resp, &decoded))
	assert.Empty(t, decoded.Error)
	assert.False(t, decoded.Dropped)
}

type fakeSampler struct {
	observers int
}

func (f *fakeSampler) AddObserver()              { f.observers++ }
func (f *fakeSampler) RemoveObserver()           { f.observers-- }
func (f *fakeSampler) SampledVsyncTimeNs() int64 { return 0 }

func TestEncodeFrame(t *testing.T) {
	msg := EncodeFrame(0x0102030405060708, []byte{0xff})
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xff}, msg)
}
