package ports

import (
	"time"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

type CallObserver interface {
	OnRemoteStream(stream MediaStream)
	OnConnectionStateChange(state domain.ConnectionState)
	OnUserJoined(id domain.ParticipantID)
	OnUserLeft(id domain.ParticipantID)
	OnError(err error)
}

type GestureObserver interface {
	OnSample(sample domain.GazeSample)
	OnGesture(event domain.GestureEvent)
}

type SampleSink interface {
	PublishSample(sample domain.GazeSample) error
}

type CallMetrics interface {
	ConnectionStateChanged(state domain.ConnectionState)
	GlareResolved(polite bool)
	CandidatesDrained(n int)
	GestureEmitted(gesture domain.GestureType)
	DetectionObserved(d time.Duration)
	InferenceFailed()
}
