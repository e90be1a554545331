package testutil

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

type FakeTrack struct {
	id   string
	kind ports.TrackKind

	mu      sync.Mutex
	enabled bool
	stops   int
}

func NewFakeTrack(id string, kind ports.TrackKind) *FakeTrack {
	return &FakeTrack{id: id, kind: kind, enabled: true}
}

func (t *FakeTrack) ID() string            { return t.id }
func (t *FakeTrack) Kind() ports.TrackKind { return t.kind }

func (t *FakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *FakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop counts every call so tests can assert a track is stopped once.
func (t *FakeTrack) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *FakeTrack) Stopped() bool { return t.StopCalls() > 0 }

func (t *FakeTrack) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type FakeStream struct {
	id     string
	tracks []ports.MediaTrack
}

func NewFakeStream(id string, tracks ...ports.MediaTrack) *FakeStream {
	return &FakeStream{id: id, tracks: tracks}
}

func (s *FakeStream) ID() string                 { return s.id }
func (s *FakeStream) Tracks() []ports.MediaTrack { return s.tracks }

// NewAVStream builds a stream with one audio and one video FakeTrack.
func NewAVStream(id string) (*FakeStream, *FakeTrack, *FakeTrack) {
	audio := NewFakeTrack(id+"-audio", ports.TrackKindAudio)
	video := NewFakeTrack(id+"-video", ports.TrackKindVideo)
	return NewFakeStream(id, audio, video), audio, video
}

type MockMediaDevice struct {
	mock.Mock
}

func (m *MockMediaDevice) GetUserMedia(ctx context.Context, c domain.MediaConstraints) (ports.MediaStream, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.MediaStream), args.Error(1)
}
