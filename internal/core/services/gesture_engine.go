package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/scheduler"
)

type EngineConfig struct {
	DetectionInterval time.Duration
	CloseGrace        time.Duration
	InferenceTimeout  time.Duration
	LookThreshold     float64
	GlobalCooldown    time.Duration
	Wink              DebounceConfig
	TongueOut         DebounceConfig
	VTongue           DebounceConfig
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DetectionInterval: 100 * time.Millisecond,
		CloseGrace:        150 * time.Millisecond,
		InferenceTimeout:  500 * time.Millisecond,
		LookThreshold:     0.6,
		GlobalCooldown:    DefaultGlobalCooldown,
		Wink:              DefaultWinkConfig(),
		TongueOut:         DefaultTongueConfig(),
		VTongue:           DefaultTongueConfig(),
	}
}

type EngineOption func(*GestureEngine)

// WithSampleSink forwards every sample, e.g. to a GestureFeed.
func WithSampleSink(sink ports.SampleSink) EngineOption {
	return func(e *GestureEngine) { e.sink = sink }
}

func WithEngineMetrics(m ports.CallMetrics) EngineOption {
	return func(e *GestureEngine) { e.metrics = m }
}

// GestureEngine runs landmark inference once per scheduler frame, throttled to
// the detection interval, and turns the output into gaze samples and debounced
// gesture events.
type GestureEngine struct {
	cfg      EngineConfig
	source   ports.FrameSource
	loader   ports.ModelLoader
	sched    scheduler.Scheduler
	observer ports.GestureObserver
	sink     ports.SampleSink
	metrics  ports.CallMetrics
	logger   *zap.SugaredLogger

	limiter *rate.Limiter

	// stateMu serializes the debouncers between ticks and Close.
	stateMu sync.Mutex
	face    *FaceGestures
	global  *GlobalCooldown

	ctx    context.Context
	cancel context.CancelFunc

	// modelMu is held for reading across Detect so Close waits for in-flight calls.
	modelMu  sync.RWMutex
	model    ports.LandmarkModel
	released bool

	tickMu     sync.Mutex
	cancelTick func()

	started    atomic.Bool
	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
	ticks      atomic.Int64
	detections atomic.Int64
}

func NewGestureEngine(
	cfg EngineConfig,
	source ports.FrameSource,
	loader ports.ModelLoader,
	sched scheduler.Scheduler,
	observer ports.GestureObserver,
	logger *zap.SugaredLogger,
	opts ...EngineOption,
) *GestureEngine {
	if observer == nil {
		observer = GestureObserverFuncs{}
	}
	global := NewGlobalCooldown(cfg.GlobalCooldown)
	e := &GestureEngine{
		cfg:      cfg,
		source:   source,
		loader:   loader,
		sched:    sched,
		observer: observer,
		metrics:  NopMetrics{},
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Every(cfg.DetectionInterval), 1),
		face:     NewFaceGestures(cfg.Wink, cfg.TongueOut, cfg.VTongue, global),
		global:   global,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads the model in the background and schedules the first tick.
// A failed load is logged; the loop keeps running and emits nothing.
func (e *GestureEngine) Start(ctx context.Context) {
	if !e.started.CompareAndSwap(false, true) || e.closed.Load() {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	go e.loadModel()
	e.reschedule()
}

func (e *GestureEngine) loadModel() {
	model, err := e.loader(e.ctx)
	if err != nil {
		e.metrics.InferenceFailed()
		e.logger.Warnw("landmark model failed to load, gestures disabled", "error", err)
		return
	}

	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	if e.released {
		if err := model.Close(); err != nil {
			e.logger.Debugw("closing late-loaded model failed", "error", err)
		}
		return
	}
	e.model = model
	e.logger.Infow("landmark model loaded")
}

// Ready reports whether a model is loaded and not yet released.
func (e *GestureEngine) Ready() bool {
	e.modelMu.RLock()
	defer e.modelMu.RUnlock()
	return e.model != nil
}

func (e *GestureEngine) Ticks() int64 {
	return e.ticks.Load()
}

func (e *GestureEngine) Detections() int64 {
	return e.detections.Load()
}

func (e *GestureEngine) reschedule() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	if e.closed.Load() {
		return
	}
	e.cancelTick = e.sched.Schedule(e.tick)
}

func (e *GestureEngine) tick(now time.Time) {
	if e.closed.Load() {
		return
	}
	e.ticks.Add(1)
	defer e.reschedule()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("detection tick panicked", "panic", r)
		}
	}()

	if err := e.detect(now); err != nil {
		e.metrics.InferenceFailed()
		e.logger.Warnw("detection tick failed", "error", err)
	}
}

func (e *GestureEngine) detect(now time.Time) error {
	landmarks, ran, err := e.runModel(now)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if !ran {
		return nil
	}

	e.stateMu.Lock()
	if e.closed.Load() {
		e.stateMu.Unlock()
		return nil
	}
	res := e.process(now, landmarks)
	e.stateMu.Unlock()

	e.publish(res)
	return nil
}

// runModel calls Detect under the model read lock. ran is false when the tick
// was skipped: no model, no decoded frame, or throttled.
func (e *GestureEngine) runModel(now time.Time) (landmarks domain.Landmarks, ran bool, err error) {
	e.modelMu.RLock()
	defer e.modelMu.RUnlock()

	if e.model == nil || e.closed.Load() {
		return landmarks, false, nil
	}
	frame := e.source.CurrentFrame()
	if frame.ReadyState < ports.HaveCurrentData || frame.Width == 0 || frame.Height == 0 {
		return landmarks, false, nil
	}
	if !e.limiter.AllowN(now, 1) {
		return landmarks, false, nil
	}

	ctx, cancel := context.WithTimeout(e.ctx, e.cfg.InferenceTimeout)
	defer cancel()
	started := time.Now()
	landmarks, err = e.model.Detect(ctx, frame, now)
	if err != nil {
		return landmarks, true, err
	}
	e.detections.Add(1)
	e.metrics.DetectionObserved(time.Since(started))
	return landmarks, true, nil
}

type tickResult struct {
	sample domain.GazeSample
	events []domain.GestureEvent
}

func (e *GestureEngine) process(now time.Time, l domain.Landmarks) tickResult {
	gaze := ScoreGaze(l, e.cfg.LookThreshold)
	hands := ClassifyHands(l.Hands)

	var events []domain.GestureEvent
	if l.HasFace() {
		events = e.face.Observe(now, l, hands.Peace)
	}

	for _, g := range hands.Gestures() {
		// a visible peace sign is part of a pending V-tongue
		if g == domain.GesturePeace && e.face.TongueActive() {
			continue
		}
		if e.global.TryAcquire(now) {
			events = append(events, domain.GestureEvent{Type: g, At: now})
		}
		break
	}

	sample := domain.GazeSample{
		GazeX:      gaze.GazeX,
		GazeY:      gaze.GazeY,
		IsLooking:  gaze.IsLooking,
		Confidence: gaze.Confidence,
		Timestamp:  now,
	}
	for _, ev := range events {
		sample.Flags.Set(ev)
	}
	return tickResult{sample: sample, events: events}
}

func (e *GestureEngine) publish(res tickResult) {
	for _, ev := range res.events {
		e.metrics.GestureEmitted(ev.Type)
		e.logger.Debugw("gesture detected", "gesture", ev.Type, "side", ev.Side, "held_ms", ev.HeldFor.Milliseconds())
		e.observer.OnGesture(ev)
	}
	e.observer.OnSample(res.sample)
	if e.sink != nil {
		if err := e.sink.PublishSample(res.sample); err != nil {
			e.logger.Debugw("sample not published", "error", err)
		}
	}
}

// Close stops the loop, waits the grace delay and any in-flight inference,
// then releases the model. Safe to call more than once.
func (e *GestureEngine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)

		e.tickMu.Lock()
		if e.cancelTick != nil {
			e.cancelTick()
			e.cancelTick = nil
		}
		e.tickMu.Unlock()

		if e.cfg.CloseGrace > 0 {
			time.Sleep(e.cfg.CloseGrace)
		}

		e.modelMu.Lock()
		e.released = true
		if e.model != nil {
			e.closeErr = e.model.Close()
			e.model = nil
		}
		e.modelMu.Unlock()

		if e.cancel != nil {
			e.cancel()
		}
		e.stateMu.Lock()
		e.face.Reset()
		e.stateMu.Unlock()
		e.logger.Infow("gesture engine closed", "ticks", e.ticks.Load(), "detections", e.detections.Load())
	})
	return e.closeErr
}
