package inference

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

type replayFile struct {
	Frames []domain.Landmarks `yaml:"frames"`
}

// ReplayModel returns recorded landmarks in order and wraps around at the end.
type ReplayModel struct {
	mu     sync.Mutex
	frames []domain.Landmarks
	next   int
	closed bool
}

var _ ports.LandmarkModel = (*ReplayModel)(nil)

func NewReplayModel(frames []domain.Landmarks) *ReplayModel {
	return &ReplayModel{frames: frames}
}

// LoadReplay reads a YAML file with a top-level frames list.
func LoadReplay(path string) (*ReplayModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	var f replayFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse replay file: %w", err)
	}
	if len(f.Frames) == 0 {
		return nil, fmt.Errorf("replay file %s has no frames", path)
	}
	return NewReplayModel(f.Frames), nil
}

// ReplayLoader adapts LoadReplay to the engine's loader signature.
func ReplayLoader(path string) ports.ModelLoader {
	return func(ctx context.Context) (ports.LandmarkModel, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return LoadReplay(path)
	}
}

func (m *ReplayModel) Detect(ctx context.Context, frame ports.Frame, ts time.Time) (domain.Landmarks, error) {
	if err := ctx.Err(); err != nil {
		return domain.Landmarks{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.Landmarks{}, domain.ErrModelReleased
	}
	if len(m.frames) == 0 {
		return domain.Landmarks{}, nil
	}
	l := m.frames[m.next]
	m.next = (m.next + 1) % len(m.frames)
	return l, nil
}

func (m *ReplayModel) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// StaticFrameSource always reports a decoded frame of a fixed size.
type StaticFrameSource struct {
	Width  int
	Height int
}

func (s StaticFrameSource) CurrentFrame() ports.Frame {
	return ports.Frame{ReadyState: ports.HaveCurrentData, Width: s.Width, Height: s.Height}
}
