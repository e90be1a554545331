package services

import (
	"sync"
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/pkg/utils"
)

type AttentionConfig struct {
	HistorySize    int
	FullAttention  float64
	MediumInterest float64
	HighInterest   float64
	// RemoteStaleAfter stops mutual credit when the remote feed goes quiet.
	RemoteStaleAfter time.Duration
	// MaxStep caps the mutual time one Advance can credit.
	MaxStep time.Duration
}

const (
	DefaultRemoteStaleAfter = time.Second
	DefaultMaxStep          = 300 * time.Millisecond
)

func DefaultAttentionConfig() AttentionConfig {
	return AttentionConfig{
		HistorySize:      100,
		FullAttention:    0.8,
		MediumInterest:   0.2,
		HighInterest:     0.5,
		RemoteStaleAfter: DefaultRemoteStaleAfter,
		MaxStep:          DefaultMaxStep,
	}
}

// lookHistory is a fixed-size ring of isLooking values.
type lookHistory struct {
	buf   []bool
	next  int
	count int
	trues int
}

func newLookHistory(size int) lookHistory {
	if size < 1 {
		size = 1
	}
	return lookHistory{buf: make([]bool, size)}
}

func (h *lookHistory) push(v bool) {
	if h.count == len(h.buf) {
		if h.buf[h.next] {
			h.trues--
		}
	} else {
		h.count++
	}
	h.buf[h.next] = v
	if v {
		h.trues++
	}
	h.next = (h.next + 1) % len(h.buf)
}

func (h *lookHistory) score() float64 {
	if h.count == 0 {
		return 0
	}
	return float64(h.trues) / float64(h.count)
}

// AttentionTracker keeps rolling look histories for both sides of a call and
// accumulates time spent in mutual full attention.
type AttentionTracker struct {
	mu     sync.Mutex
	cfg    AttentionConfig
	local  lookHistory
	remote lookHistory

	mutual     time.Duration
	total      time.Duration
	last       time.Time
	lastRemote time.Time
	running    bool
}

func NewAttentionTracker(cfg AttentionConfig) *AttentionTracker {
	if cfg.RemoteStaleAfter <= 0 {
		cfg.RemoteStaleAfter = DefaultRemoteStaleAfter
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = DefaultMaxStep
	}
	return &AttentionTracker{
		cfg:    cfg,
		local:  newLookHistory(cfg.HistorySize),
		remote: newLookHistory(cfg.HistorySize),
	}
}

func (t *AttentionTracker) RecordLocal(looking bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.local.push(looking)
}

// RecordRemote adds a remote sample received at the given local time.
func (t *AttentionTracker) RecordRemote(looking bool, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote.push(looking)
	if at.After(t.lastRemote) {
		t.lastRemote = at
	}
}

// Advance moves the call clock to now. Elapsed time always counts toward the
// total. It counts as mutual, up to MaxStep, only while both rolling scores
// reach full attention and the remote feed is fresh.
func (t *AttentionTracker) Advance(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running || now.Before(t.last) {
		t.running = true
		t.last = now
		return
	}
	dt := now.Sub(t.last)
	t.last = now
	t.total += dt
	if !t.bothAttentive() || !t.remoteFresh(now) {
		return
	}
	if dt > t.cfg.MaxStep {
		dt = t.cfg.MaxStep
	}
	t.mutual += dt
}

func (t *AttentionTracker) remoteFresh(now time.Time) bool {
	return !t.lastRemote.IsZero() && now.Sub(t.lastRemote) <= t.cfg.RemoteStaleAfter
}

// Pause stops the call clock; the next Advance restarts it without counting the gap.
func (t *AttentionTracker) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

func (t *AttentionTracker) bothAttentive() bool {
	return t.local.score() >= t.cfg.FullAttention && t.remote.score() >= t.cfg.FullAttention
}

func (t *AttentionTracker) interest() domain.InterestLevel {
	ratio := utils.Ratio(t.mutual, t.total)
	switch {
	case ratio >= t.cfg.HighInterest:
		return domain.InterestHigh
	case ratio >= t.cfg.MediumInterest:
		return domain.InterestMedium
	default:
		return domain.InterestLow
	}
}

func (t *AttentionTracker) InterestLevel() domain.InterestLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interest()
}

func (t *AttentionTracker) Metrics() domain.AttentionMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.AttentionMetrics{
		LocalScore:          t.local.score(),
		RemoteScore:         t.remote.score(),
		LocalSamples:        t.local.count,
		RemoteSamples:       t.remote.count,
		MutualAttentionTime: t.mutual,
		TotalCallTime:       t.total,
		InterestLevel:       t.interest(),
	}
}
