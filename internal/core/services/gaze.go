package services

import (
	"math"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// Face mesh indices. "Left" and "right" follow the image, not the subject.
const (
	leftIrisCenter  = 468
	rightIrisCenter = 473

	leftEyeOuter  = 33
	leftEyeInner  = 133
	rightEyeInner = 362
	rightEyeOuter = 263

	irisLandmarkCount = 478
)

// Eye aspect ratio points, ordered p1..p6.
var (
	leftEAR  = [6]int{33, 160, 158, 133, 153, 144}
	rightEAR = [6]int{362, 385, 387, 263, 373, 380}
)

const (
	centeredWeight = 0.60
	opennessWeight = 0.25
	frontalWeight  = 0.15

	// offset magnitude at which the centered score reaches zero
	centeredRange = 0.5
	// iris vertical travel relative to half the eye width
	eyeHeightRatio = 1.0 / 3.0

	earClosed = 0.15
	earOpen   = 0.30

	maxFrontalTiltDeg = 20.0

	// used when the model returns no iris points
	unknownCentered = 0.5
)

type GazeScore struct {
	GazeX      float64
	GazeY      float64
	Confidence float64
	IsLooking  bool
	Centered   float64
	Openness   float64
	Frontal    float64
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func dist(a, b domain.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func hasPoints(face []domain.Point, idx ...int) bool {
	for _, i := range idx {
		if i >= len(face) {
			return false
		}
	}
	return true
}

// ScoreGaze turns one frame of face landmarks into a looking-at-camera score.
// Without a face the zero score is returned.
func ScoreGaze(l domain.Landmarks, lookThreshold float64) GazeScore {
	if !l.HasFace() {
		return GazeScore{}
	}

	gx, gy, ok := pupilOffset(l.Face)
	centered := unknownCentered
	if ok {
		centered = clamp01(1 - math.Hypot(gx, gy)/centeredRange)
	}

	openness := eyeOpenness(l)
	frontal := headFrontal(l.Face)

	confidence := clamp01(centeredWeight*centered + opennessWeight*openness + frontalWeight*frontal)
	return GazeScore{
		GazeX:      gx,
		GazeY:      gy,
		Confidence: confidence,
		IsLooking:  confidence > lookThreshold,
		Centered:   centered,
		Openness:   openness,
		Frontal:    frontal,
	}
}

// pupilOffset averages each iris center's displacement from its eye's corner
// midpoint, normalized by half the eye width, and clamps it to [-1, 1].
func pupilOffset(face []domain.Point) (float64, float64, bool) {
	if len(face) < irisLandmarkCount {
		return 0, 0, false
	}

	var sx, sy float64
	n := 0
	for _, eye := range [][3]int{
		{leftIrisCenter, leftEyeOuter, leftEyeInner},
		{rightIrisCenter, rightEyeInner, rightEyeOuter},
	} {
		iris, a, b := face[eye[0]], face[eye[1]], face[eye[2]]
		half := dist(a, b) / 2
		if half < 1e-6 {
			continue
		}
		cx, cy := (a.X+b.X)/2, (a.Y+b.Y)/2
		sx += (iris.X - cx) / half
		sy += (iris.Y - cy) / (half * eyeHeightRatio)
		n++
	}
	if n == 0 {
		return 0, 0, false
	}
	return clamp(sx/float64(n), -1, 1), clamp(sy/float64(n), -1, 1), true
}

// EyeBlinkScores returns per-eye closure in [0, 1], from blendshapes when the
// model produced them and from the eye aspect ratio otherwise.
func EyeBlinkScores(l domain.Landmarks) (left, right float64, ok bool) {
	bl, okL := l.Blendshape("eyeBlinkLeft")
	br, okR := l.Blendshape("eyeBlinkRight")
	if okL && okR {
		return clamp01(bl), clamp01(br), true
	}

	earL, okL := eyeAspectRatio(l.Face, leftEAR)
	earR, okR := eyeAspectRatio(l.Face, rightEAR)
	if !okL || !okR {
		return 0, 0, false
	}
	return 1 - earOpenness(earL), 1 - earOpenness(earR), true
}

func eyeOpenness(l domain.Landmarks) float64 {
	left, right, ok := EyeBlinkScores(l)
	if !ok {
		return 0
	}
	return clamp01(1 - math.Max(left, right))
}

func eyeAspectRatio(face []domain.Point, idx [6]int) (float64, bool) {
	if !hasPoints(face, idx[:]...) {
		return 0, false
	}
	p := func(i int) domain.Point { return face[idx[i]] }
	width := dist(p(0), p(3))
	if width < 1e-6 {
		return 0, false
	}
	return (dist(p(1), p(5)) + dist(p(2), p(4))) / (2 * width), true
}

func earOpenness(ear float64) float64 {
	return clamp01((ear - earClosed) / (earOpen - earClosed))
}

// headFrontal scores roll from the angle of the line through both outer eye corners.
func headFrontal(face []domain.Point) float64 {
	if !hasPoints(face, leftEyeOuter, rightEyeOuter) {
		return 0
	}
	a, b := face[leftEyeOuter], face[rightEyeOuter]
	angle := math.Atan2(b.Y-a.Y, math.Abs(b.X-a.X)) * 180 / math.Pi
	return clamp01(1 - math.Abs(angle)/maxFrontalTiltDeg)
}
