package pipeline

import (
	"log/slog"
	"runtime"

	"github.com/nvr-ai/camtrap/classifier"
	"github.com/nvr-ai/camtrap/images"
	"github.com/nvr-ai/camtrap/profiler"
	"github.com/nvr-ai/camtrap/tracker"
)

// Options configures a run.
type Options struct {
	// AreaThreshold is the minimum contour area of a motion box, in pixels.
	AreaThreshold float64
	// Segmenter tunes the difference pipeline.
	Segmenter images.SegmenterOptions
	// Workers is the number of segmentation goroutines. 0 uses runtime.NumCPU().
	Workers int

	// Tracking enables linking boxes across frames.
	Tracking bool
	// TrackDistance is the maximum centroid distance between consecutive frames.
	TrackDistance float64
	// TrackPolicy picks the predecessor when several are in range.
	TrackPolicy tracker.Policy

	// Classifier labels the crops; nil disables classification.
	Classifier classifier.Classifier
	// Labels is the classifier vocabulary in output order.
	Labels []string
	// Classify holds the batch size and score threshold.
	Classify classifier.Options
	// ExpandPercent grows every detection box; the grown box is tracked and cropped.
	ExpandPercent float64

	// MinCount is the minimum track length for a majority label.
	MinCount int
	// MinOccurrence is the percentage the majority label must exceed.
	MinOccurrence float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Timer records stage durations; may be nil.
	Timer *profiler.StageTimer
}

// DefaultOptions returns the camera-trap defaults.
func DefaultOptions() Options {
	return Options{
		AreaThreshold: 3000,
		Segmenter:     images.DefaultSegmenterOptions(),
		Tracking:      true,
		TrackDistance: 30,
		TrackPolicy:   tracker.LinkLast,
		Classify: classifier.Options{
			BatchSize:      classifier.DefaultBatchSize,
			ScoreThreshold: classifier.DefaultScoreThreshold,
		},
		MinCount:      3,
		MinOccurrence: 25,
	}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Classify.BatchSize <= 0 {
		o.Classify.BatchSize = classifier.DefaultBatchSize
	}
	if o.Segmenter == (images.SegmenterOptions{}) {
		o.Segmenter = images.DefaultSegmenterOptions()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
