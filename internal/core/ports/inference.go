package ports

import (
	"context"
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// ReadyState values follow HTMLMediaElement; frames below HaveCurrentData carry no pixels.
const (
	HaveNothing     = 0
	HaveMetadata    = 1
	HaveCurrentData = 2
)

type Frame struct {
	ReadyState int
	Width      int
	Height     int
	Data       []byte
}

type FrameSource interface {
	CurrentFrame() Frame
}

type LandmarkModel interface {
	Detect(ctx context.Context, frame Frame, ts time.Time) (domain.Landmarks, error)
	Close() error
}

type ModelLoader func(ctx context.Context) (LandmarkModel, error)
