package testfeed

import (
	"crypto/rand"
	"math"
	"math/big"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/skeleton"
)

const randomFloatDivisor = 1000000

// standing pose in BlazePose order, normalized to the person's box
var basePose = [skeleton.BlazePoseLandmarks][2]float64{
	{0.50, 0.08}, // nose
	{0.48, 0.06}, {0.47, 0.06}, {0.46, 0.06},
	{0.52, 0.06}, {0.53, 0.06}, {0.54, 0.06},
	{0.43, 0.07}, {0.57, 0.07},
	{0.48, 0.11}, {0.52, 0.11},
	{0.38, 0.22}, {0.62, 0.22}, // shoulders
	{0.33, 0.37}, {0.67, 0.37}, // elbows
	{0.31, 0.50}, {0.69, 0.50}, // wrists
	{0.30, 0.53}, {0.70, 0.53}, {0.30, 0.53}, {0.70, 0.53}, {0.31, 0.52}, {0.69, 0.52},
	{0.42, 0.52}, {0.58, 0.52}, // hips
	{0.41, 0.73}, {0.59, 0.73}, // knees
	{0.40, 0.93}, {0.60, 0.93}, // ankles
	{0.39, 0.96}, {0.61, 0.96}, {0.43, 0.98}, {0.57, 0.98},
}

// getRandomFloat returns a random float64 in [0, 1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// Frame builds synthetic frame i: persons side by side swaying over time.
func (c Config) Frame(i int) model.FrameRecord {
	rate := c.FPS
	if rate <= 0 {
		rate = 25
	}
	ts := float64(i) / rate

	persons := make([]model.PersonDetection, c.Persons)
	for p := range persons {
		persons[p] = c.person(p, ts)
	}
	return model.FrameRecord{FrameIndex: i, Timestamp: ts, Persons: persons}
}

func (c Config) person(p int, ts float64) model.PersonDetection {
	slot := 1.0 / float64(max(c.Persons, 1))
	sway := 0.02 * math.Sin(2*math.Pi*0.5*ts+float64(p))
	x1 := float64(p)*slot + slot*0.2 + sway
	box := model.BBox{x1, 0.1, x1 + slot*0.6, 0.95}

	lms := make([]model.Landmark, len(basePose))
	for j, pt := range basePose {
		vis := 0.8 + 0.2*getRandomFloat()
		lms[j] = model.Landmark{
			X:          box[0] + pt[0]*box.Width() + c.noise(),
			Y:          box[1] + pt[1]*box.Height() + c.noise(),
			Z:          -0.1 + c.noise(),
			Visibility: &vis,
		}
	}
	return model.PersonDetection{
		PersonID:   p,
		BBox:       &box,
		Landmarks:  lms,
		Confidence: 0.85 + 0.1*getRandomFloat(),
	}
}

func (c Config) noise() float64 {
	if c.Jitter == 0 {
		return 0
	}
	return (getRandomFloat()*2 - 1) * c.Jitter
}
