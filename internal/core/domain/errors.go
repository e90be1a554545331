package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied       = errors.New("media permission denied")
	ErrDeviceNotFound         = errors.New("media device not found")
	ErrDeviceBusy             = errors.New("media device busy")
	ErrNotInRoom              = errors.New("not in a room")
	ErrAlreadyInRoom          = errors.New("already in a room")
	ErrInvalidRoom            = errors.New("invalid room id")
	ErrNoLocalStream          = errors.New("local stream not initialized")
	ErrModelReleased          = errors.New("landmark model released")
	ErrModelNotReady          = errors.New("landmark model not ready")
	ErrMalformedPayload       = errors.New("malformed payload")
	ErrTransportClosed        = errors.New("signaling transport closed")
	ErrDataChannelUnavailable = errors.New("data channel not available")
)

type MediaAccessKind string

const (
	MediaPermissionDenied MediaAccessKind = "permission-denied"
	MediaDeviceNotFound   MediaAccessKind = "not-found"
	MediaDeviceBusy       MediaAccessKind = "busy"
	MediaAccessUnknown    MediaAccessKind = "unknown"
)

// MediaAccessError reports a failed camera/microphone request. Kind keeps
// permission denial, missing device and busy device apart.
type MediaAccessError struct {
	Kind  MediaAccessKind
	Cause error
}

// NewMediaAccessError classifies cause by the media sentinels it wraps.
func NewMediaAccessError(cause error) *MediaAccessError {
	kind := MediaAccessUnknown
	switch {
	case errors.Is(cause, ErrPermissionDenied):
		kind = MediaPermissionDenied
	case errors.Is(cause, ErrDeviceNotFound):
		kind = MediaDeviceNotFound
	case errors.Is(cause, ErrDeviceBusy):
		kind = MediaDeviceBusy
	}
	return &MediaAccessError{Kind: kind, Cause: cause}
}

func (e *MediaAccessError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("media access failed: %s", e.Kind)
	}
	return fmt.Sprintf("media access failed (%s): %v", e.Kind, e.Cause)
}

func (e *MediaAccessError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's kind even when Cause does not wrap it.
func (e *MediaAccessError) Is(target error) bool {
	switch e.Kind {
	case MediaPermissionDenied:
		return target == ErrPermissionDenied
	case MediaDeviceNotFound:
		return target == ErrDeviceNotFound
	case MediaDeviceBusy:
		return target == ErrDeviceBusy
	}
	return false
}
