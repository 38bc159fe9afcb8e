package pipeline

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/nvr-ai/camtrap/classifier"
	"github.com/nvr-ai/camtrap/geometry"
	"github.com/nvr-ai/camtrap/images"
	"github.com/nvr-ai/camtrap/profiler"
	"github.com/nvr-ai/camtrap/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// Stage names used in StageError.
const (
	StageBackground = "background"
	StageClassifier = "classifier"
	StageDecode     = "decode"
	StageSegment    = "segment"
	StageTrack      = "track"
	StageClassify   = "classify"
)

// Result is the outcome of a run.
type Result struct {
	// Detections in frame order, then left-to-right within a frame.
	Detections []Detection
	// Frames is the number of frames processed.
	Frames int
	// Classified reports whether a classifier labelled the detections.
	Classified bool
	// Elapsed is the wall time of the detection pass.
	Elapsed time.Duration
}

// job is one decoded frame on its way to a worker.
type job struct {
	seq   int
	index int
	frame gocv.Mat
}

// frameResult is one segmented frame on its way to the assembler.
type frameResult struct {
	seq   int
	index int
	boxes []geometry.Rect
	crops []image.Image
}

// Run detects, tracks and labels motion over src.
//
// The source is rewound to frame 0 first, so a background estimated from the
// same source can be passed straight in.
//
// Arguments:
//   - ctx: Cancels decoding and the workers.
//   - src: The frames to analyse.
//   - background: The reference background, same size as the frames. Not modified.
//   - opts: Run configuration.
//
// Returns:
//   - *Result: The detection table. Empty, not nil, when nothing moved.
//   - error: A *StageError naming the stage and frame of the first fatal failure,
//     or the context error.
//
// @example
// res, err := pipeline.Run(ctx, src, background, pipeline.DefaultOptions())
//
//	if err != nil {
//	    return err
//	}
//
// fmt.Println(len(res.Detections), "detections in", res.Frames, "frames")
func Run(ctx context.Context, src video.Source, background gocv.Mat, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	meta := src.Metadata()
	if err := images.CheckDimensions(background, meta.Width, meta.Height); err != nil {
		return nil, stageError(StageBackground, -1, err)
	}
	if opts.Classifier != nil {
		if err := classifier.CheckVocabulary(opts.Classifier, opts.Labels); err != nil {
			return nil, stageError(StageClassifier, -1, err)
		}
	}
	if meta.FrameCount > 0 {
		if err := src.Seek(0); err != nil {
			return nil, stageError(StageDecode, 0, err)
		}
	}

	opts.Logger.Info("detection pass started",
		"video", meta.String(),
		"workers", opts.Workers,
		"area_threshold", opts.AreaThreshold,
		"tracking", opts.Tracking,
		"classifier", opts.Classifier != nil)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, opts.Workers)
	results := make(chan frameResult, opts.Workers)

	g.Go(func() error {
		return decode(gctx, src, jobs, opts.Timer)
	})

	var workers sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return segment(gctx, background, opts, jobs, results)
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(results)
		return nil
	})

	asm := newAssembler(opts)
	g.Go(func() error {
		return asm.run(gctx, results)
	})

	err := g.Wait()
	// Frames still queued after a failure are released here.
	for j := range jobs {
		j.frame.Close()
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	res := asm.finish()
	res.Elapsed = time.Since(start)
	opts.Logger.Info("detection pass finished",
		"frames", res.Frames,
		"detections", len(res.Detections),
		"tracks", Tracks(res.Detections),
		"elapsed", res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// decode reads frames sequentially and queues them. It closes jobs on return.
func decode(ctx context.Context, src video.Source, jobs chan<- job, timer *profiler.StageTimer) error {
	defer close(jobs)

	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame := gocv.NewMat()
		done := timer.StartOperation(profiler.StageDecode)
		index, err := src.Next(&frame)
		done()
		if errors.Is(err, io.EOF) {
			frame.Close()
			return nil
		}
		if err != nil {
			frame.Close()
			return stageError(StageDecode, index, err)
		}

		select {
		case jobs <- job{seq: seq, index: index, frame: frame}:
		case <-ctx.Done():
			frame.Close()
			return ctx.Err()
		}
	}
}

// segment is one worker: it segments, deduplicates and crops frames.
func segment(ctx context.Context, background gocv.Mat, opts Options, jobs <-chan job, results chan<- frameResult) error {
	seg := images.NewMotionSegmenter(opts.Segmenter)
	defer seg.Close()

	for j := range jobs {
		r, err := segmentFrame(seg, background, opts, j)
		j.frame.Close()
		if err != nil {
			return err
		}

		select {
		case results <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func segmentFrame(seg *images.MotionSegmenter, background gocv.Mat, opts Options, j job) (frameResult, error) {
	r := frameResult{seq: j.seq, index: j.index}

	done := opts.Timer.StartOperation(profiler.StageSegment)
	raw, err := seg.Segment(j.frame, background, opts.AreaThreshold)
	done()
	if err != nil {
		return r, stageError(StageSegment, j.index, err)
	}

	done = opts.Timer.StartOperation(profiler.StageDedup)
	r.boxes = geometry.Deduplicate(raw)
	for i, box := range r.boxes {
		r.boxes[i] = geometry.ExpandBBox(box, opts.ExpandPercent)
	}
	done()

	if opts.Classifier == nil {
		return r, nil
	}
	r.crops = make([]image.Image, len(r.boxes))
	for i, box := range r.boxes {
		crop, region, err := classifier.Crop(j.frame, box, 0, classifier.CropSize)
		if err != nil {
			// Degenerate region: classify a blank crop.
			opts.Logger.Warn("crop outside frame", "frame", j.index, "box", box, "region", region)
			crop = image.NewRGBA(image.Rect(0, 0, classifier.CropSize, classifier.CropSize))
		}
		r.crops[i] = crop
	}
	return r, nil
}
