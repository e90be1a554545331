package services

import (
	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// Hand landmark indices.
const (
	wrist     = 0
	thumbMCP  = 2
	thumbIP   = 3
	thumbTip  = 4
	indexPIP  = 6
	indexTip  = 8
	middleMCP = 9
	middlePIP = 10
	middleTip = 12
	ringPIP   = 14
	ringTip   = 16
	pinkyPIP  = 18
	pinkyTip  = 20

	handLandmarkCount = 21

	okPinchRatio = 0.25
)

// HandPose is the set of poses one hand matches in a frame.
type HandPose struct {
	Peace    bool
	ThumbsUp bool
	OK       bool
	RockOn   bool
}

func (p HandPose) Any() bool {
	return p.Peace || p.ThumbsUp || p.OK || p.RockOn
}

// Gestures lists matched poses in a fixed priority order.
func (p HandPose) Gestures() []domain.GestureType {
	var out []domain.GestureType
	if p.OK {
		out = append(out, domain.GestureOK)
	}
	if p.RockOn {
		out = append(out, domain.GestureRockOn)
	}
	if p.ThumbsUp {
		out = append(out, domain.GestureThumbsUp)
	}
	if p.Peace {
		out = append(out, domain.GesturePeace)
	}
	return out
}

func extended(h []domain.Point, tip, pip int) bool {
	return h[tip].Y < h[pip].Y
}

// ClassifyHand applies per-frame geometric rules to one 21-point hand.
func ClassifyHand(h []domain.Point) HandPose {
	if len(h) < handLandmarkCount {
		return HandPose{}
	}

	index := extended(h, indexTip, indexPIP)
	middle := extended(h, middleTip, middlePIP)
	ring := extended(h, ringTip, ringPIP)
	pinky := extended(h, pinkyTip, pinkyPIP)

	var pose HandPose
	pose.Peace = index && middle && !ring && !pinky
	pose.RockOn = index && pinky && !middle && !ring

	thumbUp := h[thumbTip].Y < h[thumbIP].Y && h[thumbIP].Y < h[thumbMCP].Y
	thumbHighest := h[thumbTip].Y < h[indexTip].Y && h[thumbTip].Y < h[middleTip].Y &&
		h[thumbTip].Y < h[ringTip].Y && h[thumbTip].Y < h[pinkyTip].Y
	pose.ThumbsUp = thumbUp && thumbHighest && !index && !middle && !ring && !pinky

	palm := dist(h[wrist], h[middleMCP])
	if palm > 1e-6 {
		pinch := dist(h[thumbTip], h[indexTip]) < okPinchRatio*palm
		pose.OK = pinch && middle && ring && pinky
	}
	return pose
}

// ClassifyHands merges the poses of every visible hand.
func ClassifyHands(hands [][]domain.Point) HandPose {
	var merged HandPose
	for _, h := range hands {
		p := ClassifyHand(h)
		merged.Peace = merged.Peace || p.Peace
		merged.ThumbsUp = merged.ThumbsUp || p.ThumbsUp
		merged.OK = merged.OK || p.OK
		merged.RockOn = merged.RockOn || p.RockOn
	}
	return merged
}
