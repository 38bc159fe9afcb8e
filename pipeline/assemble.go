package pipeline

import (
	"context"
	"image"

	"github.com/nvr-ai/camtrap/classifier"
	"github.com/nvr-ai/camtrap/labels"
	"github.com/nvr-ai/camtrap/profiler"
	"github.com/nvr-ai/camtrap/tracker"
	"gonum.org/v1/gonum/spatial/r2"
)

// assembler restores frame order, feeds the tracker and classifies crops in
// batches. It runs on a single goroutine.
type assembler struct {
	opts    Options
	tracker *tracker.Tracker

	pending map[int]frameResult
	next    int
	frames  int

	detections []Detection
	crops      []image.Image
	// classified counts detections whose crops have been labelled.
	classified int
}

func newAssembler(opts Options) *assembler {
	return &assembler{
		opts:    opts,
		tracker: tracker.New(opts.TrackDistance, opts.TrackPolicy),
		pending: make(map[int]frameResult),
	}
}

// run consumes results until the channel is closed.
func (a *assembler) run(ctx context.Context, results <-chan frameResult) error {
	for r := range results {
		a.pending[r.seq] = r
		for {
			cur, ok := a.pending[a.next]
			if !ok {
				break
			}
			delete(a.pending, a.next)
			a.next++
			if err := a.accept(ctx, cur); err != nil {
				return err
			}
		}
	}
	return a.flush(ctx)
}

// accept handles the next frame in order.
func (a *assembler) accept(ctx context.Context, r frameResult) error {
	a.frames++

	if a.opts.Tracking {
		done := a.opts.Timer.StartOperation(profiler.StageTrack)
		centroids := make([]r2.Vec, len(r.boxes))
		for i, b := range r.boxes {
			centroids[i] = b.Centroid()
		}
		_, err := a.tracker.Add(r.index, centroids)
		done()
		if err != nil {
			return stageError(StageTrack, r.index, err)
		}
	}

	for _, b := range r.boxes {
		a.detections = append(a.detections, Detection{
			FrameIndex: r.index,
			Box:        b,
			Centroid:   b.Centroid(),
			TrackID:    tracker.NoTrack,
		})
	}

	if a.opts.Classifier == nil {
		return nil
	}
	a.crops = append(a.crops, r.crops...)
	if len(a.crops) >= a.opts.Classify.BatchSize {
		return a.flush(ctx)
	}
	return nil
}

// flush classifies every pending crop.
func (a *assembler) flush(ctx context.Context) error {
	if a.opts.Classifier == nil || len(a.crops) == 0 {
		return nil
	}

	done := a.opts.Timer.StartOperation(profiler.StageClassify)
	preds, err := classifier.ClassifyAll(ctx, a.opts.Classifier, a.opts.Labels, a.crops, a.opts.Classify)
	done()
	if err != nil {
		return stageError(StageClassify, a.detections[a.classified].FrameIndex, err)
	}

	for i, p := range preds {
		d := &a.detections[a.classified+i]
		d.Label, d.Score = p.Label, p.Score
	}
	a.classified += len(preds)
	a.crops = a.crops[:0]
	return nil
}

// finish assigns track ids and aggregates labels per track.
func (a *assembler) finish() *Result {
	res := &Result{
		Detections: a.detections,
		Frames:     a.frames,
		Classified: a.opts.Classifier != nil,
	}
	if res.Detections == nil {
		res.Detections = []Detection{}
	}

	if !a.opts.Tracking {
		return res
	}
	ids := a.tracker.Assign()
	for i := range res.Detections {
		res.Detections[i].TrackID = ids[i]
	}

	if !res.Classified {
		return res
	}
	values := make([]string, len(res.Detections))
	for i, d := range res.Detections {
		values[i] = d.Label
	}
	byTrack := labels.ByTrack(values, ids, a.opts.MinCount, a.opts.MinOccurrence)
	for i := range res.Detections {
		res.Detections[i].Label = byTrack[res.Detections[i].TrackID]
	}
	return res
}
