// Package extraction re-derives per-person landmarks from a local video. Each
// detected person is cropped into its own buffer, estimated alone, and remapped
// into full-frame normalized coordinates.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/internal/domain/sampler"
	"github.com/okian/crease/pkg/logger"
	"github.com/okian/crease/pkg/metrics"
)

const (
	defaultSampleRate = 25

	pathSingle = "single"
	pathMulti  = "multi"
)

// Hooks observe a run as it progresses. Both are optional.
type Hooks struct {
	// OnFrame receives each record as soon as it is complete, in frame order.
	OnFrame func(model.FrameRecord)
	// OnProgress receives percentage and raw counts after each frame.
	OnProgress sampler.ProgressFunc
}

// Engine runs extraction passes. Every run acquires its own estimator and
// releases it exactly once when the run ends.
type Engine struct {
	provider    Provider
	sampleRate  float64
	surface     SurfaceFunc
	samplerOpts []sampler.Option
	logger      logger.Logger
}

// New creates an engine backed by provider.
func New(provider Provider, opts ...Option) *Engine {
	e := &Engine{
		provider:   provider,
		sampleRate: defaultSampleRate,
		surface:    NewRGBASurface,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("extraction")
	}
	return e
}

// ExtractPersons samples src once per element of dets and estimates every person
// box of that element. The result has len(dets) records with frame indices 0..N-1.
// A failed estimate leaves that person without landmarks; a surface failure ends the run.
func (e *Engine) ExtractPersons(ctx context.Context, src sampler.Source, dets []model.DetectionFrame, hooks Hooks) ([]model.FrameRecord, error) {
	if len(dets) == 0 {
		return nil, ErrNoDetections
	}
	return e.run(ctx, src, pathMulti, func(d time.Duration) sampler.Plan {
		return sampler.AlignTo(len(dets), d)
	}, func(ctx context.Context, est Estimator, i int, frame image.Image) ([]model.PersonDetection, error) {
		return e.estimatePersons(ctx, est, i, frame, dets[i].Persons)
	}, hooks)
}

// ExtractSingle samples src at the fixed rate and estimates the whole frame as person 0.
func (e *Engine) ExtractSingle(ctx context.Context, src sampler.Source, hooks Hooks) ([]model.FrameRecord, error) {
	return e.run(ctx, src, pathSingle, func(d time.Duration) sampler.Plan {
		return sampler.FixedRate(d, e.sampleRate)
	}, func(ctx context.Context, est Estimator, i int, frame image.Image) ([]model.PersonDetection, error) {
		lms := e.estimate(ctx, est, i, 0, frame)
		return []model.PersonDetection{personResult(0, nil, lms)}, nil
	}, hooks)
}

type frameFunc func(ctx context.Context, est Estimator, i int, frame image.Image) ([]model.PersonDetection, error)

func (e *Engine) run(ctx context.Context, src sampler.Source, path string, plan func(time.Duration) sampler.Plan, perFrame frameFunc, hooks Hooks) ([]model.FrameRecord, error) {
	if e.provider == nil {
		return nil, ErrNoProvider
	}
	started := time.Now()

	s := sampler.New(src, append([]sampler.Option{sampler.WithLogger(e.logger)}, e.samplerOpts...)...)
	duration, err := s.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	p := plan(duration)

	est, err := e.provider.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire estimator: %w", err)
	}
	defer func() {
		if cerr := est.Close(); cerr != nil {
			e.logger.Warn(ctx, "closing estimator failed", logger.Error(cerr))
		}
	}()

	e.logger.Info(ctx, "extraction started",
		logger.String("path", path),
		logger.Int("frames", p.Total),
		logger.Float64("rate", p.Rate),
		logger.Duration("duration", duration))

	records := make([]model.FrameRecord, 0, p.Total)
	err = s.Walk(ctx, p, func(ctx context.Context, i int, ts time.Duration, frame image.Image) error {
		persons, err := perFrame(ctx, est, i, frame)
		if err != nil {
			return err
		}
		rec := model.FrameRecord{FrameIndex: i, Timestamp: ts.Seconds(), Persons: persons}
		records = append(records, rec)
		metrics.RecordFrameExtracted(path)
		if hooks.OnFrame != nil {
			hooks.OnFrame(rec)
		}
		return nil
	}, hooks.OnProgress)
	if err != nil {
		if errors.Is(err, ErrSurface) {
			metrics.RecordErrorByComponent("extraction", "surface")
			e.logger.Error(ctx, "extraction aborted", logger.String("path", path), logger.Error(err))
		}
		return nil, err
	}

	metrics.RecordExtractionDuration(path, time.Since(started))
	e.logger.Info(ctx, "extraction finished",
		logger.String("path", path),
		logger.Int("frames", len(records)),
		logger.Duration("elapsed", time.Since(started)))
	return records, nil
}

func (e *Engine) estimatePersons(ctx context.Context, est Estimator, frameIdx int, frame image.Image, persons []model.PersonDetection) ([]model.PersonDetection, error) {
	size := frame.Bounds().Size()
	out := make([]model.PersonDetection, 0, len(persons))
	for pid, p := range persons {
		if p.BBox == nil {
			out = append(out, personResult(pid, nil, nil))
			continue
		}
		rect := CropRect(*p.BBox)
		crop, err := cropInto(frame, rect, e.surface)
		if err != nil {
			return nil, fmt.Errorf("frame %d person %d: %w", frameIdx, pid, err)
		}
		var lms []model.Landmark
		if local := e.estimate(ctx, est, frameIdx, pid, crop); local != nil {
			lms = Remap(local, rect, size)
		}
		out = append(out, personResult(pid, p.BBox, lms))
	}
	return out, nil
}

// estimate runs the model on img and returns nil on any failure.
func (e *Engine) estimate(ctx context.Context, est Estimator, frameIdx, pid int, img image.Image) []model.Landmark {
	start := time.Now()
	lms, err := est.Estimate(ctx, img)
	metrics.RecordInferenceLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil || len(lms) == 0 {
		metrics.RecordPersonFailure()
		fields := []logger.Field{logger.Int("frame", frameIdx), logger.Int("person", pid)}
		if err != nil {
			fields = append(fields, logger.Error(err))
		}
		e.logger.Warn(ctx, "pose estimation produced no landmarks", fields...)
		return nil
	}
	return lms
}

func personResult(pid int, box *model.BBox, lms []model.Landmark) model.PersonDetection {
	p := model.PersonDetection{PersonID: pid, BBox: box, Landmarks: lms}
	if len(lms) > 0 {
		p.Confidence = 1
	}
	return p
}
