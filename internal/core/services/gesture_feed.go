package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

const DefaultComeCloserTimeout = 5 * time.Second

type FeedObserver interface {
	OnRemoteSample(sample domain.GazeSample)
	OnComeCloser(active bool)
}

type FeedObserverFuncs struct {
	RemoteSample func(sample domain.GazeSample)
	ComeCloser   func(active bool)
}

func (f FeedObserverFuncs) OnRemoteSample(sample domain.GazeSample) {
	if f.RemoteSample != nil {
		f.RemoteSample(sample)
	}
}

func (f FeedObserverFuncs) OnComeCloser(active bool) {
	if f.ComeCloser != nil {
		f.ComeCloser(active)
	}
}

// GestureFeed ships local samples to the remote peer over the data channel and
// surfaces what the remote peer sends back.
type GestureFeed struct {
	self      domain.ParticipantID
	channel   ports.DataChannel
	attention *AttentionTracker
	observer  FeedObserver
	timeout   time.Duration
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	unsubscribe func()
	nudgeActive bool
	nudgeGen    uint64
	nudgeTimer  *time.Timer
	remote      *domain.GazeSample
	closed      bool
}

func NewGestureFeed(
	self domain.ParticipantID,
	channel ports.DataChannel,
	attention *AttentionTracker,
	observer FeedObserver,
	comeCloserTimeout time.Duration,
	logger *zap.SugaredLogger,
) *GestureFeed {
	if observer == nil {
		observer = FeedObserverFuncs{}
	}
	if comeCloserTimeout <= 0 {
		comeCloserTimeout = DefaultComeCloserTimeout
	}
	return &GestureFeed{
		self:      self,
		channel:   channel,
		attention: attention,
		observer:  observer,
		timeout:   comeCloserTimeout,
		now:       time.Now,
		logger:    logger,
	}
}

// Start subscribes to the gesture topic.
func (f *GestureFeed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unsubscribe != nil || f.closed {
		return
	}
	f.unsubscribe = f.channel.Subscribe(domain.GestureTopic, f.handle)
}

// PublishSample sends one tick's sample best-effort and feeds local attention.
func (f *GestureFeed) PublishSample(sample domain.GazeSample) error {
	if f.attention != nil {
		f.attention.RecordLocal(sample.IsLooking)
		f.attention.Advance(sample.Timestamp)
	}
	return f.send(domain.FeedMessage{
		Kind:   domain.FeedSample,
		From:   f.self,
		Sample: &sample,
		SentAt: sample.Timestamp,
	}, false)
}

// SendComeCloser asks the remote peer to move closer, reliably.
func (f *GestureFeed) SendComeCloser() error {
	return f.send(domain.FeedMessage{
		Kind:   domain.FeedComeCloser,
		From:   f.self,
		SentAt: f.now(),
	}, true)
}

func (f *GestureFeed) send(msg domain.FeedMessage, reliable bool) error {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return domain.ErrDataChannelUnavailable
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Kind, err)
	}
	if err := f.channel.Publish(domain.GestureTopic, payload, reliable); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

func (f *GestureFeed) handle(payload []byte) {
	msg, err := DecodeFeedMessage(payload)
	if err != nil {
		f.logger.Warnw("dropping malformed gesture payload", "error", err, "bytes", len(payload))
		return
	}

	switch msg.Kind {
	case domain.FeedSample:
		sample := *msg.Sample
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		f.remote = &sample
		f.mu.Unlock()

		if f.attention != nil {
			f.attention.RecordRemote(sample.IsLooking, f.now())
		}
		f.observer.OnRemoteSample(sample)
	case domain.FeedComeCloser:
		f.showNudge()
	}
}

// RemoteSample returns the most recent valid sample from the remote peer.
func (f *GestureFeed) RemoteSample() (domain.GazeSample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return domain.GazeSample{}, false
	}
	return *f.remote, true
}

func (f *GestureFeed) ComeCloserActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nudgeActive
}

func (f *GestureFeed) showNudge() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.nudgeGen++
	gen := f.nudgeGen
	if f.nudgeTimer != nil {
		f.nudgeTimer.Stop()
	}
	f.nudgeTimer = time.AfterFunc(f.timeout, func() { f.expireNudge(gen) })
	raised := !f.nudgeActive
	f.nudgeActive = true
	f.mu.Unlock()

	if raised {
		f.observer.OnComeCloser(true)
	}
}

func (f *GestureFeed) expireNudge(gen uint64) {
	f.mu.Lock()
	if gen != f.nudgeGen || !f.nudgeActive {
		f.mu.Unlock()
		return
	}
	f.nudgeActive = false
	f.nudgeTimer = nil
	f.mu.Unlock()

	f.observer.OnComeCloser(false)
}

// DismissComeCloser clears the nudge before its timeout.
func (f *GestureFeed) DismissComeCloser() {
	f.mu.Lock()
	if !f.nudgeActive {
		f.mu.Unlock()
		return
	}
	f.nudgeActive = false
	f.nudgeGen++
	if f.nudgeTimer != nil {
		f.nudgeTimer.Stop()
		f.nudgeTimer = nil
	}
	f.mu.Unlock()

	f.observer.OnComeCloser(false)
}

func (f *GestureFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	if f.unsubscribe != nil {
		f.unsubscribe()
		f.unsubscribe = nil
	}
	if f.nudgeTimer != nil {
		f.nudgeTimer.Stop()
		f.nudgeTimer = nil
	}
	f.nudgeActive = false
	f.nudgeGen++
}
