// Package scheduler provides a cooperative per-frame callback loop, the
// headless analogue of requestAnimationFrame. Callbacks scheduled during a
// frame run on the next frame, never the current one.
package scheduler

import (
	"sync"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display.
const DefaultFrameInterval = time.Second / 60

type FrameFunc func(now time.Time)

type Scheduler interface {
	// Schedule queues fn for the next frame. cancel removes it if it has not run.
	Schedule(fn FrameFunc) (cancel func())
}

type entry struct {
	id uint64
	fn FrameFunc
}

// queue holds callbacks waiting for the next frame.
type queue struct {
	mu      sync.Mutex
	nextID  uint64
	pending []entry
}

func (q *queue) add(fn FrameFunc) func() {
	q.mu.Lock()
	q.nextID++
	id := q.nextID
	q.pending = append(q.pending, entry{id: id, fn: fn})
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for i, e := range q.pending {
			if e.id == id {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				return
			}
		}
	}
}

func (q *queue) take() []entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Manual advances frames only when told to. Tests drive engines with it.
type Manual struct {
	q        queue
	interval time.Duration

	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time, interval time.Duration) *Manual {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Manual{now: start, interval: interval}
}

func (m *Manual) Schedule(fn FrameFunc) func() {
	return m.q.add(fn)
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Frame advances the clock by one interval and runs the queued callbacks.
// It returns how many ran.
func (m *Manual) Frame() int {
	m.mu.Lock()
	m.now = m.now.Add(m.interval)
	now := m.now
	m.mu.Unlock()

	batch := m.q.take()
	for _, e := range batch {
		e.fn(now)
	}
	return len(batch)
}

// Advance runs frames until d has elapsed.
func (m *Manual) Advance(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += m.interval {
		m.Frame()
	}
}

func (m *Manual) Pending() int {
	return m.q.len()
}

// Ticker runs frames on a single goroutine at a fixed interval until Stop.
type Ticker struct {
	q        queue
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := &Ticker{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go t.loop()
	return t
}

func (t *Ticker) Schedule(fn FrameFunc) func() {
	return t.q.add(fn)
}

func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

func (t *Ticker) loop() {
	defer close(t.done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, e := range t.q.take() {
				e.fn(now)
			}
		case <-t.stop:
			return
		}
	}
}
