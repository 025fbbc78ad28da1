package model_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/okian/crease/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDecodeFrame(t *testing.T) {
	Convey("Given a keypoints payload", t, func() {
		Convey("When it is a well-formed frame", func() {
			payload := `{"frameIndex":3,"timestamp":0.12,"persons":[
				{"personId":0,"bbox":[10,10,50,50],"landmarks":[{"x":0.5,"y":0.5,"z":-0.1,"visibility":0.8}],"confidence":1},
				{"personId":1,"bbox":[60,10,90,70],"confidence":0}]}`
			fr, err := model.DecodeFrame([]byte(payload))

			Convey("Then every field is populated", func() {
				So(err, ShouldBeNil)
				So(fr.FrameIndex, ShouldEqual, 3)
				So(fr.Timestamp, ShouldEqual, 0.12)
				So(fr.Persons, ShouldHaveLength, 2)
				So(fr.Persons[0].BBox.Width(), ShouldEqual, 40)
				So(fr.Persons[0].Landmarks[0].Score(), ShouldEqual, 0.8)
				So(fr.Persons[1].HasLandmarks(), ShouldBeFalse)
			})
		})

		Convey("When it is not JSON", func() {
			_, err := model.DecodeFrame([]byte("not json"))
			So(errors.Is(err, model.ErrInvalidFrame), ShouldBeTrue)
		})

		Convey("When it is empty", func() {
			_, err := model.DecodeFrame(nil)
			So(errors.Is(err, model.ErrInvalidFrame), ShouldBeTrue)
		})

		Convey("When a box is inverted", func() {
			_, err := model.DecodeFrame([]byte(`{"frameIndex":0,"timestamp":0,"persons":[{"bbox":[50,10,10,50]}]}`))
			So(errors.Is(err, model.ErrInvalidBBox), ShouldBeTrue)
		})
	})
}

func TestLandmarkScore(t *testing.T) {
	Convey("A landmark without visibility scores 1", t, func() {
		So(model.Landmark{X: 0.1}.Score(), ShouldEqual, 1)
	})
}

func TestLoadDetections(t *testing.T) {
	Convey("Given a detection sequence document", t, func() {
		Convey("When it is YAML", func() {
			doc := `
- frameIndex: 0
  timestamp: 0
  persons:
    - bbox: [10, 10, 50, 50]
    - bbox: [100, 20, 160, 200]
- persons: []
`
			frames, err := model.LoadDetections(strings.NewReader(doc))

			Convey("Then frames and boxes are decoded", func() {
				So(err, ShouldBeNil)
				So(frames, ShouldHaveLength, 2)
				So(*frames[0].FrameIndex, ShouldEqual, 0)
				So(frames[0].Persons, ShouldHaveLength, 2)
				So(*frames[0].Persons[1].BBox, ShouldResemble, model.BBox{100, 20, 160, 200})
				So(frames[1].FrameIndex, ShouldBeNil)
				So(frames[1].Persons, ShouldBeEmpty)
			})
		})

		Convey("When it is JSON", func() {
			frames, err := model.LoadDetections(strings.NewReader(`[{"persons":[{"bbox":[1,2,3,4]}]}]`))
			So(err, ShouldBeNil)
			So(frames, ShouldHaveLength, 1)
			So(frames[0].Persons[0].BBox.Height(), ShouldEqual, 2)
		})

		Convey("When a box has no extent", func() {
			_, err := model.LoadDetections(strings.NewReader(`[{"persons":[{"bbox":[5,5,5,9]}]}]`))
			So(errors.Is(err, model.ErrInvalidBBox), ShouldBeTrue)
		})

		Convey("When the document is empty", func() {
			frames, err := model.LoadDetections(strings.NewReader(""))
			So(err, ShouldBeNil)
			So(frames, ShouldBeEmpty)
		})
	})
}

func TestDetectionFromRecord(t *testing.T) {
	Convey("A received frame becomes a detection hint", t, func() {
		box := model.BBox{0, 0, 10, 10}
		d := model.DetectionFromRecord(model.FrameRecord{FrameIndex: 7, Timestamp: 0.28, Persons: []model.PersonDetection{{BBox: &box}}})
		So(*d.FrameIndex, ShouldEqual, 7)
		So(*d.Timestamp, ShouldEqual, 0.28)
		So(d.Persons, ShouldHaveLength, 1)
	})
}
