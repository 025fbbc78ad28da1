// Package skeleton is the canonical coordinate model shared by every renderer:
// joint indices, the fixed bone topology, letterbox scaling and derived joints.
// Everything here is pure and safe for concurrent use.
package skeleton

// Joint indices. 0-16 follow the standard 17-point body layout; Neck is derived.
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	Neck

	// BodyJoints is the number of joints a pose estimate carries.
	BodyJoints = Neck
	// JointCount includes the synthesized neck.
	JointCount = Neck + 1
)

var jointNames = [JointCount]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle", "neck",
}

// JointName returns the joint's name, or "" for an unknown index.
func JointName(idx int) string {
	if idx < 0 || idx >= JointCount {
		return ""
	}
	return jointNames[idx]
}

// blazePoseToBody maps a 33-point full-body estimate onto the 17-point layout.
var blazePoseToBody = [BodyJoints]int{0, 2, 5, 7, 8, 11, 12, 13, 14, 15, 16, 23, 24, 25, 26, 27, 28}

// BlazePoseLandmarks is the landmark count of full-body estimators that carry
// hand and foot detail beyond the 17-point layout.
const BlazePoseLandmarks = 33

// bodyIndex maps a landmark position in an estimate of n points to a body joint.
// It returns -1 when the position has no body joint.
func bodyIndex(n, pos int) int {
	switch {
	case n == BlazePoseLandmarks:
		for j, src := range blazePoseToBody {
			if src == pos {
				return j
			}
		}
		return -1
	case pos < BodyJoints:
		return pos
	default:
		return -1
	}
}
