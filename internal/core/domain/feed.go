package domain

import "time"

type FeedKind string

const (
	FeedSample     FeedKind = "sample"
	FeedComeCloser FeedKind = "come-closer"
)

const GestureTopic = "gestures"

// FeedMessage is the tagged payload peers exchange on the gesture topic.
type FeedMessage struct {
	Kind   FeedKind      `json:"kind" validate:"required,oneof=sample come-closer"`
	From   ParticipantID `json:"from,omitempty"`
	Sample *GazeSample   `json:"sample,omitempty" validate:"required_if=Kind sample"`
	SentAt time.Time     `json:"sentAt" validate:"required"`
}
