package testutil

import (
	"sync"
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// RecordingMetrics implements ports.CallMetrics by counting calls.
type RecordingMetrics struct {
	mu          sync.Mutex
	States      []domain.ConnectionState
	PoliteGlare int
	ImpoliteIgn int
	Drained     []int
	Gestures    []domain.GestureType
	Detections  int
	Failures    int
}

func (m *RecordingMetrics) ConnectionStateChanged(s domain.ConnectionState) {
	m.mu.Lock()
	m.States = append(m.States, s)
	m.mu.Unlock()
}

func (m *RecordingMetrics) GlareResolved(polite bool) {
	m.mu.Lock()
	if polite {
		m.PoliteGlare++
	} else {
		m.ImpoliteIgn++
	}
	m.mu.Unlock()
}

func (m *RecordingMetrics) CandidatesDrained(n int) {
	m.mu.Lock()
	m.Drained = append(m.Drained, n)
	m.mu.Unlock()
}

func (m *RecordingMetrics) GestureEmitted(g domain.GestureType) {
	m.mu.Lock()
	m.Gestures = append(m.Gestures, g)
	m.mu.Unlock()
}

func (m *RecordingMetrics) DetectionObserved(time.Duration) {
	m.mu.Lock()
	m.Detections++
	m.mu.Unlock()
}

func (m *RecordingMetrics) InferenceFailed() {
	m.mu.Lock()
	m.Failures++
	m.mu.Unlock()
}

// Snapshot returns a copy safe to inspect without the lock.
func (m *RecordingMetrics) Snapshot() RecordingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RecordingMetrics{
		States:      append([]domain.ConnectionState(nil), m.States...),
		PoliteGlare: m.PoliteGlare,
		ImpoliteIgn: m.ImpoliteIgn,
		Drained:     append([]int(nil), m.Drained...),
		Gestures:    append([]domain.GestureType(nil), m.Gestures...),
		Detections:  m.Detections,
		Failures:    m.Failures,
	}
}

// CallRecorder implements ports.CallObserver by recording every callback.
type CallRecorder struct {
	mu      sync.Mutex
	states  []domain.ConnectionState
	joined  []domain.ParticipantID
	left    []domain.ParticipantID
	errs    []error
	streams []ports.MediaStream
}

func (r *CallRecorder) OnRemoteStream(s ports.MediaStream) {
	r.mu.Lock()
	r.streams = append(r.streams, s)
	r.mu.Unlock()
}

func (r *CallRecorder) OnConnectionStateChange(s domain.ConnectionState) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *CallRecorder) OnUserJoined(id domain.ParticipantID) {
	r.mu.Lock()
	r.joined = append(r.joined, id)
	r.mu.Unlock()
}

func (r *CallRecorder) OnUserLeft(id domain.ParticipantID) {
	r.mu.Lock()
	r.left = append(r.left, id)
	r.mu.Unlock()
}

func (r *CallRecorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *CallRecorder) States() []domain.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionState(nil), r.states...)
}

func (r *CallRecorder) Joined() []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ParticipantID(nil), r.joined...)
}

func (r *CallRecorder) Left() []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ParticipantID(nil), r.left...)
}

func (r *CallRecorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *CallRecorder) Streams() []ports.MediaStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.MediaStream(nil), r.streams...)
}
