package skeleton

import "math"

// Keypoint is a joint position in some pixel space with a confidence score.
type Keypoint struct {
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Size is a rectangle's dimensions.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Letterbox is the uniform scale and centering offsets that fit a source
// rectangle inside a target without stretching.
type Letterbox struct {
	Scale   float64
	XOffset float64
	YOffset float64
}

// Fit computes the letterbox placing src inside dst.
func Fit(src, dst Size) Letterbox {
	if src.W <= 0 || src.H <= 0 {
		return Letterbox{Scale: 1}
	}
	s := math.Min(dst.W/src.W, dst.H/src.H)
	return Letterbox{
		Scale:   s,
		XOffset: (dst.W - src.W*s) / 2,
		YOffset: (dst.H - src.H*s) / 2,
	}
}

// Apply maps a source point into the target.
func (l Letterbox) Apply(x, y float64) (float64, float64) {
	return x*l.Scale + l.XOffset, y*l.Scale + l.YOffset
}

// ScaleKeypoints maps keypoints from src space into dst with aspect-preserving
// letterboxing, then appends the synthesized neck when both shoulders are present.
// The input is not modified.
func ScaleKeypoints(kps []Keypoint, src, dst Size) []Keypoint {
	lb := Fit(src, dst)
	out := make([]Keypoint, 0, len(kps)+1)
	for _, kp := range kps {
		if kp.Index == Neck {
			continue
		}
		kp.X, kp.Y = lb.Apply(kp.X, kp.Y)
		out = append(out, kp)
	}
	if neck, ok := SynthesizeNeck(out); ok {
		out = append(out, neck)
	}
	return out
}

// SynthesizeNeck derives joint 17 as the shoulder midpoint scored with the
// weaker shoulder. ok is false unless both shoulders are present.
func SynthesizeNeck(kps []Keypoint) (Keypoint, bool) {
	var l, r *Keypoint
	for i := range kps {
		switch kps[i].Index {
		case LeftShoulder:
			l = &kps[i]
		case RightShoulder:
			r = &kps[i]
		}
	}
	if l == nil || r == nil {
		return Keypoint{}, false
	}
	return Keypoint{
		Index: Neck,
		X:     (l.X + r.X) / 2,
		Y:     (l.Y + r.Y) / 2,
		Score: math.Min(l.Score, r.Score),
	}, true
}
