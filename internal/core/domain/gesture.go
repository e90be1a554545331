package domain

import "time"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is one frame of model output. Face uses the 478-point face mesh
// layout, each hand the 21-point hand layout. Coordinates are normalized with Y
// growing downward.
type Landmarks struct {
	Face        []Point            `json:"face,omitempty"`
	Blendshapes map[string]float64 `json:"blendshapes,omitempty"`
	Hands       [][]Point          `json:"hands,omitempty"`
}

func (l Landmarks) HasFace() bool {
	return len(l.Face) > 0
}

// Blendshape returns a named score and whether the model produced it.
func (l Landmarks) Blendshape(name string) (float64, bool) {
	if l.Blendshapes == nil {
		return 0, false
	}
	v, ok := l.Blendshapes[name]
	return v, ok
}

type GestureType string

const (
	GestureWink      GestureType = "wink"
	GestureTongueOut GestureType = "tongue-out"
	GestureVTongue   GestureType = "v-tongue"
	GesturePeace     GestureType = "peace"
	GestureThumbsUp  GestureType = "thumbs-up"
	GestureOK        GestureType = "ok"
	GestureRockOn    GestureType = "rock-on"
)

type EyeSide string

const (
	EyeLeft  EyeSide = "left"
	EyeRight EyeSide = "right"
)

type GestureEvent struct {
	Type    GestureType   `json:"type"`
	Side    EyeSide       `json:"side,omitempty"`
	At      time.Time     `json:"at"`
	HeldFor time.Duration `json:"heldFor,omitempty"`
}

// GestureFlags are true only on the tick a debounced event fires.
type GestureFlags struct {
	IsWinking   bool    `json:"isWinking"`
	WinkEye     EyeSide `json:"winkEye,omitempty" validate:"omitempty,oneof=left right"`
	IsTongueOut bool    `json:"isTongueOut"`
	IsVTongue   bool    `json:"isVTongue"`
	IsPeaceSign bool    `json:"isPeaceSign"`
	IsThumbsUp  bool    `json:"isThumbsUp"`
	IsOKSign    bool    `json:"isOKSign"`
	IsRockOn    bool    `json:"isRockOn"`
}

// Set raises the flag matching ev.
func (f *GestureFlags) Set(ev GestureEvent) {
	switch ev.Type {
	case GestureWink:
		f.IsWinking = true
		f.WinkEye = ev.Side
	case GestureTongueOut:
		f.IsTongueOut = true
	case GestureVTongue:
		f.IsVTongue = true
	case GesturePeace:
		f.IsPeaceSign = true
	case GestureThumbsUp:
		f.IsThumbsUp = true
	case GestureOK:
		f.IsOKSign = true
	case GestureRockOn:
		f.IsRockOn = true
	}
}

type GazeSample struct {
	GazeX      float64      `json:"gazeX" validate:"gte=-1,lte=1"`
	GazeY      float64      `json:"gazeY" validate:"gte=-1,lte=1"`
	IsLooking  bool         `json:"isLooking"`
	Confidence float64      `json:"confidence" validate:"gte=0,lte=1"`
	Flags      GestureFlags `json:"gestureFlags"`
	Timestamp  time.Time    `json:"timestamp" validate:"required"`
}
