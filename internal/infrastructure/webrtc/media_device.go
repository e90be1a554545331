package webrtc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

const audioFrame = 20 * time.Millisecond

var (
	// 16x16 VP8 keyframe header; enough for receivers to see a video keyframe.
	syntheticVP8 = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
	// Opus DTX silence.
	syntheticOpus = []byte{0xf8, 0xff, 0xfe}
)

// LocalTrack is a capture track backed by a pion sample track. While enabled
// it emits a synthetic frame every interval; disabled tracks stay negotiated
// but send nothing.
type LocalTrack struct {
	kind     ports.TrackKind
	track    *webrtc.TrackLocalStaticSample
	interval time.Duration
	frame    []byte
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	enabled bool
	stopped bool
	done    chan struct{}
}

var _ ports.MediaTrack = (*LocalTrack)(nil)

func newLocalTrack(kind ports.TrackKind, streamID string, interval time.Duration, logger *zap.SugaredLogger) (*LocalTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	frame := syntheticOpus
	if kind == ports.TrackKindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
		frame = syntheticVP8
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, fmt.Sprintf("%s-%s", streamID, kind), streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	t := &LocalTrack{
		kind:     kind,
		track:    track,
		interval: interval,
		frame:    frame,
		logger:   logger,
		enabled:  true,
		done:     make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

func (t *LocalTrack) pump() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := t.track.WriteSample(media.Sample{Data: t.frame, Duration: t.interval}); err != nil {
				t.logger.Debugw("write sample failed", "track", t.ID(), "error", err)
			}
		}
	}
}

func (t *LocalTrack) ID() string            { return t.track.ID() }
func (t *LocalTrack) Kind() ports.TrackKind { return t.kind }

func (t *LocalTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *LocalTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.enabled = false
	close(t.done)
}

func (t *LocalTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// pionTrack is what AddTrack attaches to the connection.
func (t *LocalTrack) pionTrack() webrtc.TrackLocal { return t.track }

type localStream struct {
	id     string
	tracks []ports.MediaTrack
}

func (s *localStream) ID() string                 { return s.id }
func (s *localStream) Tracks() []ports.MediaTrack { return s.tracks }

// SyntheticDevice stands in for a camera and microphone on headless peers.
type SyntheticDevice struct {
	logger *zap.SugaredLogger
	fail   error
}

var _ ports.MediaDevice = (*SyntheticDevice)(nil)

type DeviceOption func(*SyntheticDevice)

// WithDeviceError makes every request fail with err, for example
// domain.ErrPermissionDenied.
func WithDeviceError(err error) DeviceOption {
	return func(d *SyntheticDevice) { d.fail = err }
}

func NewSyntheticDevice(logger *zap.SugaredLogger, opts ...DeviceOption) *SyntheticDevice {
	d := &SyntheticDevice{logger: logger.With("component", "media")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *SyntheticDevice) GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (ports.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.fail != nil {
		return nil, domain.NewMediaAccessError(d.fail)
	}

	fps := constraints.Video.FrameRate
	if fps <= 0 {
		fps = 30
	}
	streamID := uuid.NewString()

	audio, err := newLocalTrack(ports.TrackKindAudio, streamID, audioFrame, d.logger)
	if err != nil {
		return nil, err
	}
	video, err := newLocalTrack(ports.TrackKindVideo, streamID, time.Second/time.Duration(fps), d.logger)
	if err != nil {
		audio.Stop()
		return nil, err
	}

	d.logger.Infow("synthetic capture started",
		"stream_id", streamID,
		"width", constraints.Video.Width,
		"height", constraints.Video.Height,
		"fps", fps)
	return &localStream{id: streamID, tracks: []ports.MediaTrack{audio, video}}, nil
}
