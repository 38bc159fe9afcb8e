package onnx

import (
	"io"
	"path/filepath"

	"github.com/nvr-ai/camtrap/classifier"
	"github.com/nvr-ai/camtrap/util"
	"github.com/pkg/errors"
)

const (
	// ModelFile is the model name inside a classifier directory.
	ModelFile = "model.onnx"
	// LabelsFile is the vocabulary name inside a classifier directory.
	LabelsFile = "labels"
)

// Model is a loaded classifier with its vocabulary.
type Model struct {
	classifier.Classifier
	io.Closer
	// Labels holds one label per classifier output, in output order.
	Labels []string
}

// Load opens the classifier stored in dir.
//
// dir holds model.onnx and labels (one label per line). The model output width
// must equal the number of labels.
//
// Arguments:
//   - dir: The model directory.
//   - backend: The inference engine.
//   - cfg: Engine configuration; ModelPath is set from dir.
//
// Returns:
//   - *Model: The classifier and vocabulary; call Close when done.
//   - error: classifier.ErrArtifactMismatch, or a load failure.
//
// @example
// model, err := onnx.Load("models/camtrap", onnx.BackendNet, onnx.Config{})
//
//	if err != nil {
//	    return err
//	}
//
// defer model.Close()
func Load(dir string, backend Backend, cfg Config) (*Model, error) {
	vocab, err := util.LoadLabels(filepath.Join(dir, LabelsFile))
	if err != nil {
		return nil, err
	}
	cfg.ModelPath = filepath.Join(dir, ModelFile)

	var m *Model
	switch backend {
	case BackendNet, "":
		c, err := NewNetClassifier(cfg)
		if err != nil {
			return nil, err
		}
		m = &Model{Classifier: c, Closer: c, Labels: vocab}
	case BackendRuntime:
		c, err := NewRuntimeClassifier(cfg)
		if err != nil {
			return nil, err
		}
		m = &Model{Classifier: c, Closer: c, Labels: vocab}
	default:
		return nil, errors.Errorf("unknown classifier backend %q", backend)
	}

	if err := classifier.CheckVocabulary(m, vocab); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}
