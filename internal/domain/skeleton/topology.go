package skeleton

// Region groups bones anatomically.
type Region string

const (
	RegionTorso    Region = "torso"
	RegionLeftArm  Region = "left_arm"
	RegionRightArm Region = "right_arm"
	RegionLeftLeg  Region = "left_leg"
	RegionRightLeg Region = "right_leg"
	RegionHead     Region = "head"
)

// Color is a render colour tag in #rrggbb form.
type Color string

// NotDrawn marks joints that renderers skip.
const NotDrawn Color = ""

var regionColors = map[Region]Color{
	RegionTorso:    "#ffd400",
	RegionLeftArm:  "#00c853",
	RegionRightArm: "#2979ff",
	RegionLeftLeg:  "#76ff03",
	RegionRightLeg: "#00b0ff",
	RegionHead:     "#ff4081",
}

// Edge is one bone of the fixed topology.
type Edge struct {
	A, B   int
	Region Region
}

// Color returns the edge's region colour.
func (e Edge) Color() Color { return regionColors[e.Region] }

var edges = [...]Edge{
	{Nose, Neck, RegionHead},
	{LeftShoulder, RightShoulder, RegionTorso},
	{LeftShoulder, LeftHip, RegionTorso},
	{RightShoulder, RightHip, RegionTorso},
	{LeftHip, RightHip, RegionTorso},
	{LeftShoulder, LeftElbow, RegionLeftArm},
	{LeftElbow, LeftWrist, RegionLeftArm},
	{RightShoulder, RightElbow, RegionRightArm},
	{RightElbow, RightWrist, RegionRightArm},
	{LeftHip, LeftKnee, RegionLeftLeg},
	{LeftKnee, LeftAnkle, RegionLeftLeg},
	{RightHip, RightKnee, RegionRightLeg},
	{RightKnee, RightAnkle, RegionRightLeg},
}

var jointRegions = map[int]Region{
	Nose:          RegionHead,
	Neck:          RegionTorso,
	LeftShoulder:  RegionLeftArm,
	LeftElbow:     RegionLeftArm,
	LeftWrist:     RegionLeftArm,
	RightShoulder: RegionRightArm,
	RightElbow:    RegionRightArm,
	RightWrist:    RegionRightArm,
	LeftHip:       RegionLeftLeg,
	LeftKnee:      RegionLeftLeg,
	LeftAnkle:     RegionLeftLeg,
	RightHip:      RegionRightLeg,
	RightKnee:     RegionRightLeg,
	RightAnkle:    RegionRightLeg,
}

// Edges returns a copy of the bone topology.
func Edges() []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges[:])
	return out
}

// JointColor returns the region colour for a joint. Eyes, ears and unknown
// indices return NotDrawn and ok=false.
func JointColor(idx int) (Color, bool) {
	r, ok := jointRegions[idx]
	if !ok {
		return NotDrawn, false
	}
	return regionColors[r], true
}
