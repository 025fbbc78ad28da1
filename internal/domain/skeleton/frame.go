package skeleton

import (
	"github.com/okian/crease/internal/domain/model"
)

// Bone is a drawable segment between two present joints.
type Bone struct {
	A     Keypoint `json:"a"`
	B     Keypoint `json:"b"`
	Color Color    `json:"color"`
}

// Person is one render-ready skeleton.
type Person struct {
	PersonID   int        `json:"personId"`
	Confidence float64    `json:"confidence"`
	Joints     []Keypoint `json:"joints"`
	Bones      []Bone     `json:"bones"`
}

// Frame is a render-ready frame in display coordinates.
type Frame struct {
	FrameIndex int      `json:"frameIndex"`
	Timestamp  float64  `json:"timestamp"`
	Display    Size     `json:"display"`
	People     []Person `json:"people"`
}

// FromLandmarks converts normalized landmarks into body keypoints in the pixel
// space of a source frame. 17-point and 33-point estimates are both accepted.
func FromLandmarks(lms []model.Landmark, src Size) []Keypoint {
	out := make([]Keypoint, 0, BodyJoints)
	for pos, lm := range lms {
		idx := bodyIndex(len(lms), pos)
		if idx < 0 {
			continue
		}
		out = append(out, Keypoint{Index: idx, X: lm.X * src.W, Y: lm.Y * src.H, Score: lm.Score()})
	}
	return out
}

// Normalize turns a frame record into display-space skeletons. Persons without
// landmarks are kept with no joints so indices stay aligned with the record.
func Normalize(fr model.FrameRecord, src, dst Size) Frame {
	out := Frame{
		FrameIndex: fr.FrameIndex,
		Timestamp:  fr.Timestamp,
		Display:    dst,
		People:     make([]Person, 0, len(fr.Persons)),
	}
	for _, p := range fr.Persons {
		sp := Person{PersonID: p.PersonID, Confidence: p.Confidence}
		if p.HasLandmarks() {
			sp.Joints = ScaleKeypoints(FromLandmarks(p.Landmarks, src), src, dst)
			sp.Bones = Bones(sp.Joints)
		}
		out.People = append(out.People, sp)
	}
	return out
}

// Bones connects every topology edge whose endpoints are both present.
func Bones(kps []Keypoint) []Bone {
	var byIdx [JointCount]*Keypoint
	for i := range kps {
		if kps[i].Index >= 0 && kps[i].Index < JointCount {
			byIdx[kps[i].Index] = &kps[i]
		}
	}
	var out []Bone
	for _, e := range edges {
		a, b := byIdx[e.A], byIdx[e.B]
		if a == nil || b == nil {
			continue
		}
		out = append(out, Bone{A: *a, B: *b, Color: e.Color()})
	}
	return out
}
