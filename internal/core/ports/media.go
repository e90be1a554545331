package ports

import (
	"context"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// MediaTrack is a local capture track or a received remote track. Stop is idempotent.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

type MediaStream interface {
	ID() string
	Tracks() []MediaTrack
}

// MediaDevice acquires a capture stream. Failures wrap domain.ErrPermissionDenied,
// domain.ErrDeviceNotFound or domain.ErrDeviceBusy.
type MediaDevice interface {
	GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (MediaStream, error)
}
