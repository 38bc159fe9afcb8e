package onnx

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	environmentOnce sync.Once
	environmentErr  error
)

// initEnvironment loads the onnxruntime library once per process.
func initEnvironment(libPath string) error {
	environmentOnce.Do(func() {
		if _, err := os.Stat(libPath); err != nil {
			environmentErr = errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			environmentErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return environmentErr
}

// RuntimeClassifier runs an ONNX classifier through ONNX Runtime.
//
// The session holds preallocated input and output tensors of a fixed batch;
// shorter batches are zero padded and longer ones split.
type RuntimeClassifier struct {
	cfg     Config
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	batch   int
	width   int
}

// NewRuntimeClassifier creates an ONNX Runtime session for a classifier.
//
// Order of operations:
//  1. Library path check and environment setup (once per process).
//  2. Model inspection: input/output names and the class count.
//  3. Tensor allocation for the batch, in the configured layout.
//  4. Session creation with graph optimizations enabled.
//
// Arguments:
//   - cfg: Model path, layout, batch and library location.
//
// Returns:
//   - *RuntimeClassifier: The session; call Close when done.
//   - error: Error if the library, model or tensors cannot be set up.
func NewRuntimeClassifier(cfg Config) (*RuntimeClassifier, error) {
	cfg = cfg.withDefaults()

	libPath := cfg.LibraryPath
	if libPath == "" {
		var err error
		if libPath, err = DefaultLibraryPath(); err != nil {
			return nil, err
		}
	}
	if err := initEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "inspect model %s", cfg.ModelPath)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("model %s: want 1 input and at least 1 output, got %d and %d",
			cfg.ModelPath, len(inputs), len(outputs))
	}

	dims := outputs[0].Dimensions
	if len(dims) == 0 || dims[len(dims)-1] <= 0 {
		return nil, errors.Errorf("model %s: output %q has no fixed class dimension %v",
			cfg.ModelPath, outputs[0].Name, dims)
	}
	width := int(dims[len(dims)-1])

	// Models exported with a fixed batch keep it; dynamic batches use cfg.BatchSize.
	batch := cfg.BatchSize
	if in := inputs[0].Dimensions; len(in) == 4 && in[0] > 0 {
		batch = int(in[0])
	}

	w, h := int64(cfg.InputShape.X), int64(cfg.InputShape.Y)
	inShape := ort.NewShape(int64(batch), h, w, 3)
	if cfg.Layout == LayoutNCHW {
		inShape = ort.NewShape(int64(batch), 3, h, w)
	}

	input, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch), int64(width)))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(0)
	options.SetInterOpNumThreads(0)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	cfg.Logger.Info("onnx classifier initialized",
		"backend", BackendRuntime,
		"model", cfg.ModelPath,
		"input", inShape,
		"classes", width)

	return &RuntimeClassifier{
		cfg:     cfg,
		session: session,
		input:   input,
		output:  output,
		batch:   batch,
		width:   width,
	}, nil
}

// OutputWidth implements classifier.Classifier.
func (c *RuntimeClassifier) OutputWidth() int {
	return c.width
}

// Predict implements classifier.Classifier.
func (c *RuntimeClassifier) Predict(ctx context.Context, batch []image.Image) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]float32, 0, len(batch))
	for start := 0; start < len(batch); start += c.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+c.batch, len(batch))

		if err := FillTensor(c.input.GetData(), batch[start:end], c.cfg.InputShape, c.cfg.Layout, c.cfg.Scale); err != nil {
			return nil, err
		}
		if err := c.session.Run(); err != nil {
			return nil, errors.Wrap(err, "run ORT session")
		}

		data := c.output.GetData()
		for i := 0; i < end-start; i++ {
			row := make([]float32, c.width)
			copy(row, data[i*c.width:(i+1)*c.width])
			if c.cfg.Softmax {
				Softmax(row)
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// Close releases the session and its tensors.
func (c *RuntimeClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.input.Destroy()
	c.output.Destroy()
	if err := c.session.Destroy(); err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
