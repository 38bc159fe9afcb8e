package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/lmittmann/tint"
	"github.com/nvr-ai/camtrap/config"
	"github.com/nvr-ai/camtrap/images"
	"github.com/nvr-ai/camtrap/onnx"
	"github.com/nvr-ai/camtrap/pipeline"
	"github.com/nvr-ai/camtrap/profiler"
	"github.com/nvr-ai/camtrap/render"
	"github.com/nvr-ai/camtrap/store"
	"github.com/nvr-ai/camtrap/tracker"
	"github.com/nvr-ai/camtrap/video"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// overrides holds the flag values that replace config file values when set.
type overrides struct {
	video         string
	background    string
	area          float64
	samples       int
	seed          uint64
	expand        float64
	classifierDir string
	backend       string
	outputVideo   string
	db            string
	workers       int
	distance      float64
	policy        string
	noTracking    bool
	logLevel      string
}

func main() {
	var (
		configPath string
		listRuns   bool
		showRun    string
		o          overrides
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&o.video, "video", "", "Video file or image-sequence directory to analyse")
	flag.StringVar(&o.background, "background", "", "Background image; estimated from the video when empty")
	flag.Float64Var(&o.area, "area", 0, "Minimum motion contour area in pixels")
	flag.IntVar(&o.samples, "samples", 0, "Frames sampled to estimate the background")
	flag.Uint64Var(&o.seed, "seed", 0, "Seed of the background frame sampler")
	flag.Float64Var(&o.expand, "expand", 0, "Percentage detection boxes grow by")
	flag.StringVar(&o.classifierDir, "classifier", "", "Directory holding model.onnx and labels")
	flag.StringVar(&o.backend, "backend", "", "Classifier backend (net|runtime)")
	flag.StringVar(&o.outputVideo, "output-video", "", "Write an annotated video to this path")
	flag.StringVar(&o.db, "db", "", "Store the run in this sqlite database")
	flag.IntVar(&o.workers, "workers", 0, "Segmentation workers (0 = one per CPU)")
	flag.Float64Var(&o.distance, "distance", 0, "Maximum centroid distance between frames")
	flag.StringVar(&o.policy, "policy", "", "Track link policy (last|nearest)")
	flag.BoolVar(&o.noTracking, "no-tracking", false, "Disable tracking")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flag.BoolVar(&listRuns, "runs", false, "List the runs stored in -db and exit")
	flag.StringVar(&showRun, "run", "", "Print the detections of a stored run and exit")
	flag.Parse()

	cfg, err := loadConfig(configPath, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camtrap: %v\n", err)
		os.Exit(2)
	}

	level, _ := cfg.Level()
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case listRuns:
		err = printRuns(ctx, cfg.Output.DB, os.Stdout)
	case showRun != "":
		err = printStoredRun(ctx, cfg.Output.DB, showRun, os.Stdout)
	default:
		err = run(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("camtrap failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and applies the flags that were
// set on the command line.
func loadConfig(path string, o overrides) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "video":
			cfg.Video = o.video
		case "background":
			cfg.Background = o.background
		case "area":
			cfg.AreaThreshold = o.area
		case "samples":
			cfg.BackgroundSamples = o.samples
		case "seed":
			cfg.Seed = o.seed
		case "expand":
			cfg.ExpandPercent = o.expand
		case "classifier":
			cfg.Classifier.Dir = o.classifierDir
		case "backend":
			cfg.Classifier.Backend = o.backend
		case "output-video":
			cfg.Output.Video = o.outputVideo
		case "db":
			cfg.Output.DB = o.db
		case "workers":
			cfg.Workers = o.workers
		case "distance":
			cfg.Tracking.Distance = o.distance
		case "policy":
			cfg.Tracking.Policy = o.policy
		case "no-tracking":
			cfg.Tracking.Enabled = !o.noTracking
		case "log-level":
			cfg.LogLevel = o.logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// run performs one detection pass and writes every requested output.
func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.Video == "" {
		return errors.New("no video given (-video or video: in the config file)")
	}

	src, err := video.Open(cfg.Video, 0)
	if err != nil {
		return err
	}
	defer src.Close()
	meta := src.Metadata()
	logger.Info("opened video", "path", cfg.Video, "meta", meta.String())

	timer := profiler.NewStageTimer()

	background, err := loadBackground(cfg, src, timer)
	if err != nil {
		return err
	}
	defer background.Close()
	checksum := images.ComputeMatChecksum(background)
	logger.Debug("background ready", "checksum", checksum)

	opts, closeModel, err := pipelineOptions(cfg, logger, timer)
	if err != nil {
		return err
	}
	defer closeModel()

	result, err := pipeline.Run(ctx, src, background, opts)
	if err != nil {
		return err
	}
	if err := printDetections(os.Stdout, result.Detections); err != nil {
		return errors.Wrap(err, "print detections")
	}

	if cfg.Output.DB != "" {
		if err := saveRun(ctx, cfg, checksum, result, logger); err != nil {
			return err
		}
	}

	if cfg.Output.Video != "" {
		stopTiming := timer.StartOperation("render")
		err := renderVideo(ctx, cfg.Output.Video, src, result)
		stopTiming()
		if err != nil {
			return err
		}
		logger.Info("annotated video written", "path", cfg.Output.Video)
	}

	timer.LogSummary(logger)
	return nil
}

// loadBackground reads the configured background image, or estimates one
// from randomly sampled frames. On error the Mat is already closed.
func loadBackground(cfg config.Config, src video.Source, timer *profiler.StageTimer) (gocv.Mat, error) {
	defer timer.StartOperation("background")()

	var (
		background gocv.Mat
		err        error
	)
	if cfg.Background != "" {
		background, err = images.LoadBackground(cfg.Background)
	} else {
		rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
		background, err = images.EstimateBackground(src, cfg.BackgroundSamples, rng)
	}
	if err != nil {
		background.Close()
		return background, &pipeline.StageError{Stage: pipeline.StageBackground, Frame: -1, Err: err}
	}
	return background, nil
}

// pipelineOptions maps the configuration onto pipeline options and loads the
// classifier when one is configured. The returned func releases the model.
func pipelineOptions(cfg config.Config, logger *slog.Logger, timer *profiler.StageTimer) (pipeline.Options, func(), error) {
	opts := pipeline.DefaultOptions()
	opts.AreaThreshold = cfg.AreaThreshold
	opts.Segmenter = images.SegmenterOptions{
		BlurKernel:       cfg.BlurKernel,
		Threshold:        float32(cfg.BinaryThreshold),
		DilateIterations: cfg.DilateIterations,
	}
	opts.Workers = cfg.Workers
	opts.Tracking = cfg.Tracking.Enabled
	opts.TrackDistance = cfg.Tracking.Distance
	opts.ExpandPercent = cfg.ExpandPercent
	opts.Classify.BatchSize = cfg.Classifier.BatchSize
	opts.Classify.ScoreThreshold = cfg.Classifier.ScoreThreshold
	opts.MinCount = cfg.Labels.MinCount
	opts.MinOccurrence = cfg.Labels.MinOccurrence
	opts.Logger = logger
	opts.Timer = timer

	var err error
	if opts.TrackPolicy, err = cfg.Policy(); err != nil {
		return opts, func() {}, err
	}
	if cfg.Classifier.Dir == "" {
		return opts, func() {}, nil
	}

	backend, err := cfg.Backend()
	if err != nil {
		return opts, func() {}, err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return opts, func() {}, err
	}
	model, err := onnx.Load(cfg.Classifier.Dir, backend, onnx.Config{
		Layout:      layout,
		Softmax:     cfg.Classifier.Softmax,
		BatchSize:   cfg.Classifier.BatchSize,
		LibraryPath: cfg.Classifier.RuntimeLibrary,
		Logger:      logger,
	})
	if err != nil {
		return opts, func() {}, errors.Wrapf(err, "load classifier %s", cfg.Classifier.Dir)
	}
	logger.Info("classifier loaded", "dir", cfg.Classifier.Dir, "backend", backend, "labels", len(model.Labels))

	opts.Classifier = model
	opts.Labels = model.Labels
	return opts, func() { model.Close() }, nil
}

// printDetections writes the detection table.
func printDetections(w io.Writer, dets []pipeline.Detection) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "frame_index\tx\ty\tw\th\ttrack_id\tlabel\tscore")
	for _, d := range dets {
		track, score := "", ""
		if d.TrackID != tracker.NoTrack {
			track = strconv.Itoa(d.TrackID)
		}
		if d.Label != "" {
			score = strconv.FormatFloat(d.Score, 'f', 0, 64)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			d.FrameIndex, d.Box.X, d.Box.Y, d.Box.W, d.Box.H, track, d.Label, score)
	}
	return tw.Flush()
}

func saveRun(ctx context.Context, cfg config.Config, checksum string, result *pipeline.Result, logger *slog.Logger) error {
	db, err := store.Open(cfg.Output.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	text, err := cfg.YAML()
	if err != nil {
		return err
	}
	saved, err := db.SaveRun(ctx, store.Run{
		Video:              cfg.Video,
		BackgroundChecksum: checksum,
		Frames:             result.Frames,
		Classified:         result.Classified,
		Elapsed:            result.Elapsed,
		Config:             text,
	}, result.Detections)
	if err != nil {
		return errors.Wrap(err, "save run")
	}
	logger.Info("run stored", "db", cfg.Output.DB, "run_id", saved.RunID)
	return nil
}

func renderVideo(ctx context.Context, path string, src video.Source, result *pipeline.Result) error {
	r, err := render.NewVideoRenderer(path, src.Metadata(), render.DefaultStyle(result.Classified))
	if err != nil {
		return err
	}
	if _, err := render.Replay(ctx, src, r, pipeline.Annotations(result.Detections)); err != nil {
		r.Close()
		return errors.Wrap(err, "render")
	}
	return r.Close()
}

func printRuns(ctx context.Context, path string, w io.Writer) error {
	if path == "" {
		return errors.New("-runs needs -db")
	}
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "run_id\tcreated\tvideo\tframes\tdetections\ttracks\tclassified")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%t\n",
			r.RunID, r.CreatedAt.Format(time.DateTime), r.Video, r.Frames, r.Detections, r.Tracks, r.Classified)
	}
	return tw.Flush()
}

func printStoredRun(ctx context.Context, path, runID string, w io.Writer) error {
	if path == "" {
		return errors.New("-run needs -db")
	}
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	dets, err := db.Detections(ctx, runID)
	if err != nil {
		return err
	}
	return printDetections(w, dets)
}
