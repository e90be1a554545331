package services

import (
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/ports"
)

// CallObserverFuncs adapts plain funcs to ports.CallObserver; nil funcs are skipped.
type CallObserverFuncs struct {
	RemoteStream          func(stream ports.MediaStream)
	ConnectionStateChange func(state domain.ConnectionState)
	UserJoined            func(id domain.ParticipantID)
	UserLeft              func(id domain.ParticipantID)
	Error                 func(err error)
}

func (f CallObserverFuncs) OnRemoteStream(stream ports.MediaStream) {
	if f.RemoteStream != nil {
		f.RemoteStream(stream)
	}
}

func (f CallObserverFuncs) OnConnectionStateChange(state domain.ConnectionState) {
	if f.ConnectionStateChange != nil {
		f.ConnectionStateChange(state)
	}
}

func (f CallObserverFuncs) OnUserJoined(id domain.ParticipantID) {
	if f.UserJoined != nil {
		f.UserJoined(id)
	}
}

func (f CallObserverFuncs) OnUserLeft(id domain.ParticipantID) {
	if f.UserLeft != nil {
		f.UserLeft(id)
	}
}

func (f CallObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// GestureObserverFuncs adapts plain funcs to ports.GestureObserver.
type GestureObserverFuncs struct {
	Sample  func(sample domain.GazeSample)
	Gesture func(event domain.GestureEvent)
}

func (f GestureObserverFuncs) OnSample(sample domain.GazeSample) {
	if f.Sample != nil {
		f.Sample(sample)
	}
}

func (f GestureObserverFuncs) OnGesture(event domain.GestureEvent) {
	if f.Gesture != nil {
		f.Gesture(event)
	}
}

// NopMetrics discards every measurement.
type NopMetrics struct{}

func (NopMetrics) ConnectionStateChanged(domain.ConnectionState) {}
func (NopMetrics) GlareResolved(bool)                            {}
func (NopMetrics) CandidatesDrained(int)                         {}
func (NopMetrics) GestureEmitted(domain.GestureType)             {}
func (NopMetrics) DetectionObserved(time.Duration)               {}
func (NopMetrics) InferenceFailed()                              {}
