package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/testutil"
)

type feedRecorder struct {
	mu      sync.Mutex
	samples []domain.GazeSample
	nudges  []bool
}

func (r *feedRecorder) funcs() FeedObserverFuncs {
	return FeedObserverFuncs{
		RemoteSample: func(s domain.GazeSample) {
			r.mu.Lock()
			r.samples = append(r.samples, s)
			r.mu.Unlock()
		},
		ComeCloser: func(active bool) {
			r.mu.Lock()
			r.nudges = append(r.nudges, active)
			r.mu.Unlock()
		},
	}
}

func (r *feedRecorder) Samples() []domain.GazeSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GazeSample(nil), r.samples...)
}

func (r *feedRecorder) Nudges() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.nudges...)
}

type feedPair struct {
	alice, bob       *GestureFeed
	aliceCh, bobCh   *testutil.ChannelEnd
	aliceObs, bobObs *feedRecorder
	bobAttention     *AttentionTracker
}

func newFeedPair(t *testing.T, timeout time.Duration) *feedPair {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	p := &feedPair{aliceObs: &feedRecorder{}, bobObs: &feedRecorder{}}
	p.aliceCh, p.bobCh = testutil.NewChannelPair()
	p.bobAttention = NewAttentionTracker(DefaultAttentionConfig())

	p.alice = NewGestureFeed("alice", p.aliceCh, NewAttentionTracker(DefaultAttentionConfig()), p.aliceObs.funcs(), timeout, logger)
	p.bob = NewGestureFeed("bob", p.bobCh, p.bobAttention, p.bobObs.funcs(), timeout, logger)
	p.alice.Start()
	p.bob.Start()
	t.Cleanup(func() {
		p.alice.Close()
		p.bob.Close()
	})
	return p
}

func lookingSample(ts time.Time) domain.GazeSample {
	return domain.GazeSample{GazeX: 0.1, GazeY: -0.2, IsLooking: true, Confidence: 0.9, Timestamp: ts}
}

func TestGestureFeed_SampleReachesRemote(t *testing.T) {
	p := newFeedPair(t, time.Second)

	sample := lookingSample(t0)
	sample.Flags.Set(domain.GestureEvent{Type: domain.GestureWink, Side: domain.EyeRight})
	require.NoError(t, p.alice.PublishSample(sample))

	published := p.aliceCh.Published()
	require.Len(t, published, 1)
	assert.Equal(t, domain.GestureTopic, published[0].Topic)
	assert.False(t, published[0].Reliable)

	got := p.bobObs.Samples()
	require.Len(t, got, 1)
	assert.True(t, got[0].Flags.IsWinking)
	assert.Equal(t, domain.EyeRight, got[0].Flags.WinkEye)
	assert.True(t, got[0].Timestamp.Equal(t0))

	remote, ok := p.bob.RemoteSample()
	require.True(t, ok)
	assert.InDelta(t, 0.9, remote.Confidence, 1e-9)
	assert.Equal(t, 1.0, p.bobAttention.Metrics().RemoteScore)

	_, ok = p.alice.RemoteSample()
	assert.False(t, ok)
}

func TestGestureFeed_MalformedPayloadsAreDropped(t *testing.T) {
	p := newFeedPair(t, time.Second)

	outOfRange, err := json.Marshal(domain.FeedMessage{
		Kind:   domain.FeedSample,
		From:   "alice",
		Sample: &domain.GazeSample{GazeX: 2, Confidence: 0.5, Timestamp: t0},
		SentAt: t0,
	})
	require.NoError(t, err)
	nudgeWithSample, err := json.Marshal(domain.FeedMessage{
		Kind:   domain.FeedComeCloser,
		From:   "alice",
		Sample: &domain.GazeSample{Timestamp: t0},
		SentAt: t0,
	})
	require.NoError(t, err)

	payloads := [][]byte{
		[]byte("not json"),
		[]byte(`{"kind":"sample","from":"alice","sentAt":"2026-03-14T12:00:00Z"}`),
		[]byte(`{"kind":"dance","from":"alice","sentAt":"2026-03-14T12:00:00Z"}`),
		[]byte(`{"kind":"come-closer","from":"alice","sentAt":"2026-03-14T12:00:00Z","extra":1}`),
		[]byte(`{"kind":"come-closer","from":"alice","sentAt":"2026-03-14T12:00:00Z"} {}`),
		outOfRange,
		nudgeWithSample,
	}
	for _, raw := range payloads {
		assert.NotPanics(t, func() { p.bobCh.Inject(domain.GestureTopic, raw) })
	}

	assert.Empty(t, p.bobObs.Samples())
	assert.Empty(t, p.bobObs.Nudges())
	_, ok := p.bob.RemoteSample()
	assert.False(t, ok)
}

func TestGestureFeed_ComeCloserAutoDismisses(t *testing.T) {
	p := newFeedPair(t, 40*time.Millisecond)

	require.NoError(t, p.alice.SendComeCloser())
	assert.True(t, p.aliceCh.Published()[0].Reliable)
	assert.True(t, p.bob.ComeCloserActive())
	assert.Equal(t, []bool{true}, p.bobObs.Nudges())

	require.Eventually(t, func() bool { return !p.bob.ComeCloserActive() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, p.bobObs.Nudges())
	assert.Empty(t, p.aliceObs.Nudges())
}

func TestGestureFeed_RepeatedNudgeExtendsTimeout(t *testing.T) {
	p := newFeedPair(t, 80*time.Millisecond)

	require.NoError(t, p.alice.SendComeCloser())
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.alice.SendComeCloser())
	time.Sleep(50 * time.Millisecond)

	assert.True(t, p.bob.ComeCloserActive(), "second nudge restarts the timer")
	assert.Equal(t, []bool{true}, p.bobObs.Nudges())

	require.Eventually(t, func() bool { return !p.bob.ComeCloserActive() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []bool{true, false}, p.bobObs.Nudges())
}

func TestGestureFeed_DismissCancelsTimer(t *testing.T) {
	p := newFeedPair(t, 30*time.Millisecond)

	require.NoError(t, p.alice.SendComeCloser())
	p.bob.DismissComeCloser()
	p.bob.DismissComeCloser()

	assert.False(t, p.bob.ComeCloserActive())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, p.bobObs.Nudges())
}

func TestGestureFeed_Close(t *testing.T) {
	p := newFeedPair(t, time.Second)
	require.Equal(t, 1, p.bobCh.Subscribers(domain.GestureTopic))

	require.NoError(t, p.alice.SendComeCloser())
	p.bob.Close()
	p.bob.Close()

	assert.Equal(t, 0, p.bobCh.Subscribers(domain.GestureTopic))
	assert.False(t, p.bob.ComeCloserActive())
	assert.ErrorIs(t, p.bob.SendComeCloser(), domain.ErrDataChannelUnavailable)

	require.NoError(t, p.alice.PublishSample(lookingSample(t0)))
	assert.Empty(t, p.bobObs.Samples())
}

func TestGestureFeed_PublishErrorIsWrapped(t *testing.T) {
	p := newFeedPair(t, time.Second)
	broken := errors.New("sctp association closed")
	p.aliceCh.PublishErr = broken

	err := p.alice.PublishSample(lookingSample(t0))
	assert.ErrorIs(t, err, broken)
}
