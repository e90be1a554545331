package services

import (
	"math"
	"sync"
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// DebounceConfig tunes the hold-then-release detector of one facial gesture.
type DebounceConfig struct {
	Onset    float64
	Release  float64
	MinHold  time.Duration
	MaxHold  time.Duration
	Cooldown time.Duration
}

const (
	DefaultGlobalCooldown = 10 * time.Second
	winkAsymmetry         = 0.3
)

func DefaultWinkConfig() DebounceConfig {
	return DebounceConfig{
		Onset:    0.5,
		Release:  0.3,
		MinHold:  150 * time.Millisecond,
		MaxHold:  800 * time.Millisecond,
		Cooldown: 800 * time.Millisecond,
	}
}

func DefaultTongueConfig() DebounceConfig {
	return DefaultWinkConfig()
}

// GlobalCooldown is the cross-gesture gate shared by every detector of one engine.
type GlobalCooldown struct {
	mu      sync.Mutex
	period  time.Duration
	last    time.Time
	emitted bool
}

func NewGlobalCooldown(period time.Duration) *GlobalCooldown {
	return &GlobalCooldown{period: period}
}

func (g *GlobalCooldown) Ready(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.emitted || now.Sub(g.last) >= g.period
}

// TryAcquire marks an emission at now if the gate is open.
func (g *GlobalCooldown) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.emitted && now.Sub(g.last) < g.period {
		return false
	}
	g.emitted = true
	g.last = now
	return true
}

type debounceState struct {
	active      bool
	side        domain.EyeSide
	start       time.Time
	lastEmitted time.Time
	emitted     bool
}

// GestureDebouncer emits at most one event per qualifying hold-then-release cycle.
type GestureDebouncer struct {
	gesture domain.GestureType
	cfg     DebounceConfig
	global  *GlobalCooldown
	state   debounceState
}

func NewGestureDebouncer(gesture domain.GestureType, cfg DebounceConfig, global *GlobalCooldown) *GestureDebouncer {
	return &GestureDebouncer{gesture: gesture, cfg: cfg, global: global}
}

func (d *GestureDebouncer) Active() bool {
	return d.state.active
}

// Observe feeds one frame. score is the gesture strength; confirmed is the
// secondary condition needed to enter the candidate state. An unconfirmed
// frame above onset while active cancels the candidate (a full blink during a
// wink, say).
func (d *GestureDebouncer) Observe(now time.Time, score float64, confirmed bool, side domain.EyeSide) (domain.GestureEvent, bool) {
	s := &d.state

	if !s.active {
		if score >= d.cfg.Onset && confirmed {
			s.active = true
			s.start = now
			s.side = side
		}
		return domain.GestureEvent{}, false
	}

	if score >= d.cfg.Release {
		if !confirmed && score >= d.cfg.Onset {
			s.active = false
		}
		return domain.GestureEvent{}, false
	}

	s.active = false
	held := now.Sub(s.start)
	if held < d.cfg.MinHold || held > d.cfg.MaxHold {
		return domain.GestureEvent{}, false
	}
	if s.emitted && now.Sub(s.lastEmitted) < d.cfg.Cooldown {
		return domain.GestureEvent{}, false
	}
	if !d.global.TryAcquire(now) {
		return domain.GestureEvent{}, false
	}

	s.emitted = true
	s.lastEmitted = now
	return domain.GestureEvent{Type: d.gesture, Side: s.side, At: now, HeldFor: held}, true
}

// Reset drops any candidate but keeps cooldown history.
func (d *GestureDebouncer) Reset() {
	d.state.active = false
}

// WinkReading derives the wink score, asymmetry check and side from per-eye
// blink scores.
func WinkReading(left, right float64) (score float64, confirmed bool, side domain.EyeSide) {
	score = math.Max(left, right)
	confirmed = math.Abs(left-right) >= winkAsymmetry
	side = domain.EyeLeft
	if right > left {
		side = domain.EyeRight
	}
	return score, confirmed, side
}

// TongueScore reads the tongueOut blendshape, falling back to an open jaw with
// a funneled mouth when the model does not produce one.
func TongueScore(l domain.Landmarks) float64 {
	if v, ok := l.Blendshape("tongueOut"); ok {
		return clamp01(v)
	}
	jaw, _ := l.Blendshape("jawOpen")
	funnel, _ := l.Blendshape("mouthFunnel")
	return clamp01(math.Min(jaw, funnel+0.25))
}

// FaceGestures owns the debouncers of one engine instance.
type FaceGestures struct {
	global  *GlobalCooldown
	wink    *GestureDebouncer
	tongue  *GestureDebouncer
	vTongue *GestureDebouncer
}

func NewFaceGestures(wink, tongue, vTongue DebounceConfig, global *GlobalCooldown) *FaceGestures {
	return &FaceGestures{
		global:  global,
		wink:    NewGestureDebouncer(domain.GestureWink, wink, global),
		tongue:  NewGestureDebouncer(domain.GestureTongueOut, tongue, global),
		vTongue: NewGestureDebouncer(domain.GestureVTongue, vTongue, global),
	}
}

// TongueActive reports whether a tongue candidate is being held.
func (f *FaceGestures) TongueActive() bool {
	return f.tongue.Active() || f.vTongue.Active()
}

// Observe runs every facial detector for one frame. peace tells whether a
// peace sign is visible; V-tongue is evaluated before plain tongue-out so the
// combined gesture wins the shared cooldown.
func (f *FaceGestures) Observe(now time.Time, l domain.Landmarks, peace bool) []domain.GestureEvent {
	var events []domain.GestureEvent

	if left, right, ok := EyeBlinkScores(l); ok {
		score, confirmed, side := WinkReading(left, right)
		if ev, ok := f.wink.Observe(now, score, confirmed, side); ok {
			events = append(events, ev)
		}
	}

	tongue := TongueScore(l)
	if ev, ok := f.vTongue.Observe(now, tongue, peace, ""); ok {
		events = append(events, ev)
	}
	if ev, ok := f.tongue.Observe(now, tongue, true, ""); ok {
		events = append(events, ev)
	}
	return events
}

func (f *FaceGestures) Reset() {
	f.wink.Reset()
	f.tongue.Reset()
	f.vTongue.Reset()
}
