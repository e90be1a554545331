package webrtc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/internal/testutil"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(Config{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return f
}

func newTestPeer(t *testing.T, f *Factory) *PeerConnection {
	t.Helper()
	pc, err := f.NewPeerConnection(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc.(*PeerConnection)
}

// gathered closes once the connection reports the end of candidates.
func gathered(pc *PeerConnection) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	pc.OnICECandidate(func(c *domain.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	return done
}

func wait(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// negotiate runs a non-trickle offer/answer between a and b.
func negotiate(t *testing.T, a, b *PeerConnection) {
	t.Helper()
	aDone, bDone := gathered(a), gathered(b)

	offer, err := a.CreateOffer(ports.OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, a.SetLocalDescription(offer))
	assert.Equal(t, domain.SignalingStateHaveLocalOffer, a.SignalingState())
	wait(t, aDone, "offerer candidates")

	require.NoError(t, b.SetRemoteDescription(*a.LocalDescription()))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, b.SetLocalDescription(answer))
	wait(t, bDone, "answerer candidates")

	require.NoError(t, a.SetRemoteDescription(*b.LocalDescription()))
}

func TestPeerConnection_ConnectsAndCarriesMedia(t *testing.T) {
	f := newTestFactory(t)
	logger := zaptest.NewLogger(t).Sugar()
	alice, bob := newTestPeer(t, f), newTestPeer(t, f)

	stream, err := NewSyntheticDevice(logger).GetUserMedia(context.Background(), domain.DefaultConstraints(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, tr := range stream.Tracks() {
			tr.Stop()
		}
	})
	for _, tr := range stream.Tracks() {
		require.NoError(t, alice.AddTrack(tr))
	}

	connected := make(chan struct{})
	var once sync.Once
	bob.OnConnectionStateChange(func(s domain.ConnectionState) {
		if s == domain.ConnectionStateConnected {
			once.Do(func() { close(connected) })
		}
	})
	received := make(chan ports.MediaTrack, 2)
	bob.OnTrack(func(tr ports.MediaTrack) { received <- tr })

	negotiate(t, alice, bob)
	wait(t, connected, "connected state")
	assert.Equal(t, domain.SignalingStateStable, alice.SignalingState())
	assert.Equal(t, domain.SDPTypeAnswer, alice.RemoteDescription().Type)

	var video *RemoteTrack
	for video == nil {
		select {
		case tr := <-received:
			if tr.Kind() == ports.TrackKindVideo {
				video = tr.(*RemoteTrack)
			}
		case <-time.After(10 * time.Second):
			t.Fatal("no remote video track")
		}
	}
	require.Eventually(t, func() bool {
		s := video.Stats()
		return s.Packets > 0 && s.Keyframes > 0
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, bob.Close())
	require.NoError(t, bob.Close())
	assert.True(t, video.Stopped())
	assert.Equal(t, domain.SignalingStateClosed, bob.SignalingState())
}

func TestPeerConnection_DataChannelTopics(t *testing.T) {
	f := newTestFactory(t)
	alice, bob := newTestPeer(t, f), newTestPeer(t, f)

	err := alice.DataChannel().Publish(domain.GestureTopic, []byte(`{}`), true)
	assert.True(t, errors.Is(err, domain.ErrDataChannelUnavailable), "publish before open: %v", err)

	var mu sync.Mutex
	var got []string
	unsubscribe := bob.DataChannel().Subscribe(domain.GestureTopic, func(p []byte) {
		mu.Lock()
		got = append(got, string(p))
		mu.Unlock()
	})
	bob.DataChannel().Subscribe("other", func([]byte) { t.Error("wrong topic delivered") })

	negotiate(t, alice, bob)

	require.Eventually(t, func() bool {
		return alice.DataChannel().Publish(domain.GestureTopic, []byte(`{"seq":1}`), true) == nil
	}, 10*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, `{"seq":1}`, got[0])
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	mu.Lock()
	before := len(got)
	mu.Unlock()
	require.NoError(t, alice.DataChannel().Publish(domain.GestureTopic, []byte(`{"seq":2}`), true))
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, before, len(got))
	mu.Unlock()
}

func TestPeerConnection_RollbackAndRejectedTracks(t *testing.T) {
	f := newTestFactory(t)
	pc := newTestPeer(t, f)

	offer, err := pc.CreateOffer(ports.OfferOptions{})
	require.NoError(t, err)
	require.NoError(t, pc.SetLocalDescription(offer))
	require.NoError(t, pc.SetLocalDescription(domain.SessionDescription{Type: domain.SDPTypeRollback}))
	assert.Equal(t, domain.SignalingStateStable, pc.SignalingState())

	err = pc.AddTrack(testutil.NewFakeTrack("fake", ports.TrackKindAudio))
	assert.ErrorIs(t, err, ErrUnsupportedTrack)

	_, err = pc.CreateAnswer()
	assert.Error(t, err, "no remote offer to answer")
}

func TestSyntheticDevice(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	stream, err := NewSyntheticDevice(logger).GetUserMedia(context.Background(), domain.DefaultConstraints(false))
	require.NoError(t, err)
	require.Len(t, stream.Tracks(), 2)
	audio, video := stream.Tracks()[0], stream.Tracks()[1]
	assert.Equal(t, ports.TrackKindAudio, audio.Kind())
	assert.Equal(t, ports.TrackKindVideo, video.Kind())
	assert.NotEqual(t, audio.ID(), video.ID())

	video.SetEnabled(false)
	assert.False(t, video.Enabled())
	video.Stop()
	video.Stop()
	audio.Stop()
	assert.True(t, video.Stopped())

	_, err = NewSyntheticDevice(logger, WithDeviceError(domain.ErrPermissionDenied)).
		GetUserMedia(context.Background(), domain.DefaultConstraints(false))
	var access *domain.MediaAccessError
	require.ErrorAs(t, err, &access)
	assert.Equal(t, domain.MediaPermissionDenied, access.Kind)
}
