package services

import (
	"math"

	"github.com/YelllowSunray/xsimwink-sub000/internal/core/domain"
)

// testFace builds a frontal 478-point face with open eyes. The iris centers
// are displaced by dx, dy in units of half an eye width.
func testFace(dx, dy float64) []domain.Point {
	face := make([]domain.Point, irisLandmarkCount)
	for i := range face {
		face[i] = domain.Point{X: 0.5, Y: 0.5}
	}
	setEye := func(idx [6]int, x0 float64) {
		face[idx[0]] = domain.Point{X: x0, Y: 0.40}
		face[idx[1]] = domain.Point{X: x0 + 0.02, Y: 0.39}
		face[idx[2]] = domain.Point{X: x0 + 0.04, Y: 0.39}
		face[idx[3]] = domain.Point{X: x0 + 0.06, Y: 0.40}
		face[idx[4]] = domain.Point{X: x0 + 0.04, Y: 0.41}
		face[idx[5]] = domain.Point{X: x0 + 0.02, Y: 0.41}
	}
	setEye(leftEAR, 0.40)
	setEye(rightEAR, 0.54)

	const half = 0.03
	face[leftIrisCenter] = domain.Point{X: 0.43 + dx*half, Y: 0.40 + dy*half*eyeHeightRatio}
	face[rightIrisCenter] = domain.Point{X: 0.57 + dx*half, Y: 0.40 + dy*half*eyeHeightRatio}
	return face
}

// tiltFace rolls every point by deg degrees around the face center.
func tiltFace(face []domain.Point, deg float64) []domain.Point {
	sin, cos := math.Sincos(deg * math.Pi / 180)
	const cx, cy = 0.5, 0.4
	for i, p := range face {
		x, y := p.X-cx, p.Y-cy
		face[i] = domain.Point{X: cx + x*cos - y*sin, Y: cy + x*sin + y*cos}
	}
	return face
}

func landmarks(face []domain.Point, blend map[string]float64, hands ...[]domain.Point) domain.Landmarks {
	return domain.Landmarks{Face: face, Blendshapes: blend, Hands: hands}
}

func blinks(left, right float64) map[string]float64 {
	return map[string]float64{"eyeBlinkLeft": left, "eyeBlinkRight": right}
}

type fingers struct {
	index, middle, ring, pinky bool
}

// testHand builds a 21-point upright hand. Extended fingers point up.
func testHand(f fingers) []domain.Point {
	h := make([]domain.Point, handLandmarkCount)
	for i := range h {
		h[i] = domain.Point{X: 0.5, Y: 0.9}
	}
	h[wrist] = domain.Point{X: 0.5, Y: 0.9}
	h[middleMCP] = domain.Point{X: 0.5, Y: 0.7}

	h[thumbMCP] = domain.Point{X: 0.40, Y: 0.75}
	h[thumbIP] = domain.Point{X: 0.38, Y: 0.72}
	h[thumbTip] = domain.Point{X: 0.36, Y: 0.74}

	finger := func(pip, tip int, x float64, ext bool) {
		h[pip] = domain.Point{X: x, Y: 0.6}
		tipY := 0.7
		if ext {
			tipY = 0.5
		}
		h[tip] = domain.Point{X: x, Y: tipY}
	}
	finger(indexPIP, indexTip, 0.45, f.index)
	finger(middlePIP, middleTip, 0.50, f.middle)
	finger(ringPIP, ringTip, 0.55, f.ring)
	finger(pinkyPIP, pinkyTip, 0.60, f.pinky)
	return h
}

func peaceHand() []domain.Point {
	return testHand(fingers{index: true, middle: true})
}

func thumbsUpHand() []domain.Point {
	h := testHand(fingers{})
	h[thumbMCP] = domain.Point{X: 0.40, Y: 0.60}
	h[thumbIP] = domain.Point{X: 0.40, Y: 0.50}
	h[thumbTip] = domain.Point{X: 0.40, Y: 0.30}
	return h
}

func okHand() []domain.Point {
	h := testHand(fingers{middle: true, ring: true, pinky: true})
	h[indexTip] = domain.Point{X: 0.45, Y: 0.65}
	h[thumbTip] = domain.Point{X: 0.46, Y: 0.66}
	return h
}

func rockOnHand() []domain.Point {
	return testHand(fingers{index: true, pinky: true})
}
