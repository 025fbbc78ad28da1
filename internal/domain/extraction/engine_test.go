package extraction_test

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"sync"
	"testing"
	"time"

	"github.com/okian/crease/internal/domain/extraction"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/internal/domain/sampler/samplertest"
	"github.com/okian/crease/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeEstimator struct {
	mu     sync.Mutex
	calls  int
	sizes  []image.Point
	closed int
	fn     func(call int) ([]model.Landmark, error)
}

func (f *fakeEstimator) Estimate(_ context.Context, img image.Image) ([]model.Landmark, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.sizes = append(f.sizes, img.Bounds().Size())
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(call)
	}
	return []model.Landmark{{X: 0.5, Y: 0.5, Z: -0.2}}, nil
}

func (f *fakeEstimator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

type fakeProvider struct {
	est      *fakeEstimator
	acquired int
	err      error
}

func (p *fakeProvider) Acquire(context.Context) (extraction.Estimator, error) {
	p.acquired++
	if p.err != nil {
		return nil, p.err
	}
	return p.est, nil
}

func box(x1, y1, x2, y2 float64) *model.BBox {
	b := model.BBox{x1, y1, x2, y2}
	return &b
}

func detections(frames, persons int) []model.DetectionFrame {
	out := make([]model.DetectionFrame, frames)
	for i := range out {
		for p := 0; p < persons; p++ {
			x := float64(10 + p*100)
			out[i].Persons = append(out[i].Persons, model.PersonDetection{BBox: box(x, 10, x+50, 60)})
		}
	}
	return out
}

func newEngine(p extraction.Provider, opts ...extraction.Option) *extraction.Engine {
	base := []extraction.Option{
		extraction.WithLogger(logger.Nop()),
		extraction.WithSamplerOptions(sampler.WithYield(func() {})),
	}
	return extraction.New(p, append(base, opts...)...)
}

func TestCropRect(t *testing.T) {
	Convey("Given fractional boxes", t, func() {
		Convey("Origins floor and extents ceil", func() {
			r := extraction.CropRect(model.BBox{10.7, 20.2, 50.1, 60.9})
			So(r.Min, ShouldResemble, image.Pt(10, 20))
			So(r.Dx(), ShouldEqual, 40)
			So(r.Dy(), ShouldEqual, 41)
		})

		Convey("Extents are at least one pixel", func() {
			r := extraction.CropRect(model.BBox{5, 5, 5.0001, 5.0001})
			So(r.Dx(), ShouldEqual, 1)
			So(r.Dy(), ShouldEqual, 1)
		})
	})
}

func TestRemap(t *testing.T) {
	Convey("Given a 50x50 crop at (10,10) of a 640x360 frame", t, func() {
		vis := 0.7
		local := []model.Landmark{{X: 0.5, Y: 0.5, Z: -0.3, Visibility: &vis}}

		out := extraction.Remap(local, image.Rect(10, 10, 60, 60), image.Pt(640, 360))

		Convey("Then the centre maps into full-frame coordinates", func() {
			So(out[0].X, ShouldAlmostEqual, (0.5*50+10)/640.0)
			So(out[0].Y, ShouldAlmostEqual, (0.5*50+10)/360.0)
		})

		Convey("Then depth and visibility pass through", func() {
			So(out[0].Z, ShouldEqual, -0.3)
			So(*out[0].Visibility, ShouldEqual, 0.7)
		})

		Convey("Then the result stays within the unit square", func() {
			So(out[0].X, ShouldBeBetweenOrEqual, 0, 1)
			So(out[0].Y, ShouldBeBetweenOrEqual, 0, 1)
		})
	})
}

func TestExtractPersons(t *testing.T) {
	ctx := context.Background()

	Convey("Given a 640x360 video and a 10-frame, 3-person detection sequence", t, func() {
		src := samplertest.New(10*time.Second, 640, 360)
		est := &fakeEstimator{}
		prov := &fakeProvider{est: est}
		dets := detections(10, 3)

		Convey("When every estimate succeeds", func() {
			var streamed []int
			var progress []int
			recs, err := newEngine(prov).ExtractPersons(ctx, src, dets, extraction.Hooks{
				OnFrame:    func(r model.FrameRecord) { streamed = append(streamed, r.FrameIndex) },
				OnProgress: func(p, _, _ int) { progress = append(progress, p) },
			})

			Convey("Then frame indices are exactly 0..N-1", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 10)
				for i, r := range recs {
					So(r.FrameIndex, ShouldEqual, i)
					So(r.Persons, ShouldHaveLength, 3)
				}
				So(streamed, ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
				So(progress[0], ShouldEqual, 0)
				So(progress[9], ShouldEqual, 90)
			})

			Convey("Then timestamps follow the detection cadence", func() {
				So(recs[4].Timestamp, ShouldAlmostEqual, 4.0)
			})

			Convey("Then each person is estimated on its own crop", func() {
				So(est.calls, ShouldEqual, 30)
				for _, s := range est.sizes {
					So(s, ShouldResemble, image.Pt(50, 50))
				}
			})

			Convey("Then person ids are positional and landmarks are full-frame", func() {
				p := recs[0].Persons[1]
				So(p.PersonID, ShouldEqual, 1)
				So(p.Confidence, ShouldEqual, 1)
				So(p.Landmarks[0].X, ShouldAlmostEqual, (0.5*50+110)/640.0)
				So(p.Landmarks[0].Z, ShouldEqual, -0.2)
			})

			Convey("Then the estimator is acquired and closed once", func() {
				So(prov.acquired, ShouldEqual, 1)
				So(est.closed, ShouldEqual, 1)
			})
		})

		Convey("When the model fails for person 1 of frame 4", func() {
			est.fn = func(call int) ([]model.Landmark, error) {
				if call == 4*3+1 {
					return nil, errors.New("inference failed")
				}
				return []model.Landmark{{X: 0.1, Y: 0.1}}, nil
			}

			recs, err := newEngine(prov).ExtractPersons(ctx, src, dets, extraction.Hooks{})

			Convey("Then only that person loses its landmarks", func() {
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 10)
				failed := recs[4].Persons[1]
				So(failed.Landmarks, ShouldBeNil)
				So(failed.Confidence, ShouldEqual, 0)
				for f, r := range recs {
					for p, person := range r.Persons {
						if f == 4 && p == 1 {
							continue
						}
						So(person.Landmarks, ShouldNotBeNil)
						So(person.Confidence, ShouldEqual, 1)
					}
				}
				So(est.closed, ShouldEqual, 1)
			})
		})

		Convey("When the model finds nobody in a crop", func() {
			est.fn = func(int) ([]model.Landmark, error) { return nil, nil }
			recs, err := newEngine(prov).ExtractPersons(ctx, src, dets[:1], extraction.Hooks{})
			So(err, ShouldBeNil)
			So(recs[0].Persons[0].Confidence, ShouldEqual, 0)
		})

		Convey("When a crop surface cannot be allocated", func() {
			surface := func(int, int) (draw.Image, error) { return nil, errors.New("out of memory") }
			recs, err := newEngine(prov, extraction.WithSurface(surface)).ExtractPersons(ctx, src, dets, extraction.Hooks{})

			Convey("Then the run fails and the estimator is still released once", func() {
				So(errors.Is(err, extraction.ErrSurface), ShouldBeTrue)
				So(recs, ShouldBeNil)
				So(est.closed, ShouldEqual, 1)
			})
		})

		Convey("When a person has no box", func() {
			dets[0].Persons[2].BBox = nil
			recs, err := newEngine(prov).ExtractPersons(ctx, src, dets[:1], extraction.Hooks{})
			So(err, ShouldBeNil)
			So(recs[0].Persons[2].Landmarks, ShouldBeNil)
			So(est.calls, ShouldEqual, 2)
		})

		Convey("When the sequence is empty", func() {
			_, err := newEngine(prov).ExtractPersons(ctx, src, nil, extraction.Hooks{})
			So(errors.Is(err, extraction.ErrNoDetections), ShouldBeTrue)
			So(prov.acquired, ShouldEqual, 0)
		})

		Convey("When the estimator cannot be acquired", func() {
			prov.err = errors.New("model missing")
			_, err := newEngine(prov).ExtractPersons(ctx, src, dets, extraction.Hooks{})
			So(err, ShouldNotBeNil)
			So(est.closed, ShouldEqual, 0)
		})

		Convey("When the video is not ready", func() {
			src.ReadyErr = errors.New("codec")
			_, err := newEngine(prov).ExtractPersons(ctx, src, dets, extraction.Hooks{})
			So(errors.Is(err, sampler.ErrNotReady), ShouldBeTrue)
			So(prov.acquired, ShouldEqual, 0)
		})
	})
}

func TestExtractSingle(t *testing.T) {
	Convey("Given a 2.5s video", t, func() {
		src := samplertest.New(2500*time.Millisecond, 320, 180)
		est := &fakeEstimator{}
		prov := &fakeProvider{est: est}

		recs, err := newEngine(prov).ExtractSingle(context.Background(), src, extraction.Hooks{})

		Convey("Then floor(duration*25) frames are produced on full frames", func() {
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 62)
			So(recs[61].FrameIndex, ShouldEqual, 61)
			So(est.sizes[0], ShouldResemble, image.Pt(320, 180))
			So(recs[0].Persons, ShouldHaveLength, 1)
			So(recs[0].Persons[0].Confidence, ShouldEqual, 1)
			So(est.closed, ShouldEqual, 1)
		})

		Convey("Then a custom rate changes the frame count", func() {
			est2 := &fakeEstimator{}
			recs, err := newEngine(&fakeProvider{est: est2}, extraction.WithSampleRate(10)).
				ExtractSingle(context.Background(), src, extraction.Hooks{})
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 25)
		})
	})
}

func TestProviderFunc(t *testing.T) {
	Convey("A ProviderFunc acquires through its function", t, func() {
		est := &fakeEstimator{}
		p := extraction.ProviderFunc(func(context.Context) (extraction.Estimator, error) { return est, nil })
		got, err := p.Acquire(context.Background())
		So(err, ShouldBeNil)
		So(got, ShouldEqual, est)
	})
}
