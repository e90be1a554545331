package webrtc

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

const pliInterval = time.Second

// TrackStats counts what a remote track has received so far.
type TrackStats struct {
	Packets    uint64
	Bytes      uint64
	Keyframes  uint64
	LastPacket time.Time
}

// RemoteTrack drains a received pion track and keeps counters. Video tracks
// request a keyframe with PLI until the first one arrives.
type RemoteTrack struct {
	remote *webrtc.TrackRemote
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu      sync.Mutex
	enabled bool
	stopped bool
	stats   TrackStats
	done    chan struct{}
}

var _ ports.MediaTrack = (*RemoteTrack)(nil)

func newRemoteTrack(remote *webrtc.TrackRemote, pc *webrtc.PeerConnection, logger *zap.SugaredLogger) *RemoteTrack {
	t := &RemoteTrack{
		remote:  remote,
		pc:      pc,
		logger:  logger,
		enabled: true,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	if t.Kind() == ports.TrackKindVideo {
		go t.requestKeyframes()
	}
	return t
}

func (t *RemoteTrack) readLoop() {
	mime := t.remote.Codec().MimeType
	for {
		pkt, _, err := t.remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.Stopped() {
				t.logger.Debugw("remote track read ended", "track", t.ID(), "error", err)
			}
			t.Stop()
			return
		}
		key := isKeyframe(mime, pkt)

		t.mu.Lock()
		t.stats.Packets++
		t.stats.Bytes += uint64(len(pkt.Payload))
		t.stats.LastPacket = time.Now()
		if key {
			t.stats.Keyframes++
		}
		t.mu.Unlock()
	}
}

func (t *RemoteTrack) requestKeyframes() {
	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		if t.Stats().Keyframes > 0 {
			return
		}
		err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(t.remote.SSRC())}})
		if err != nil {
			t.logger.Debugw("pli failed", "track", t.ID(), "error", err)
		}
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}
	}
}

func (t *RemoteTrack) ID() string { return t.remote.ID() }

func (t *RemoteTrack) Kind() ports.TrackKind {
	if t.remote.Kind() == webrtc.RTPCodecTypeAudio {
		return ports.TrackKindAudio
	}
	return ports.TrackKindVideo
}

// Enabled only reflects local playback; the sender keeps sending.
func (t *RemoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *RemoteTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *RemoteTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.done)
}

func (t *RemoteTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *RemoteTrack) Stats() TrackStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
