// Package classifier - The boundary between motion detection and an image
// classification model.
//
// The pipeline cuts a fixed-size RGB crop out of the frame for every motion
// box, hands crops to a Classifier in batches and turns each probability
// vector into a label and a percent score. Model formats live behind the
// Classifier interface (see package onnx).
package classifier

import (
	"context"
	"image"
	"math"

	"github.com/nvr-ai/camtrap/labels"
	"github.com/pkg/errors"
)

const (
	// CropSize is the side of the square crops fed to classifiers.
	CropSize = 128
	// DefaultBatchSize is the number of crops per Predict call.
	DefaultBatchSize = 32
	// DefaultScoreThreshold is the percent score below which a prediction is
	// replaced by labels.NoConfidentPrediction.
	DefaultScoreThreshold = 95
)

// ErrArtifactMismatch is returned when a model and its label vocabulary disagree.
var ErrArtifactMismatch = errors.New("classifier: model output width does not match label vocabulary")

// Classifier maps image crops to class probabilities.
type Classifier interface {
	// Predict returns one probability vector of OutputWidth() values per
	// image, in input order.
	Predict(ctx context.Context, batch []image.Image) ([][]float32, error)
	// OutputWidth is the number of classes the model scores.
	OutputWidth() int
}

// Prediction is the decided outcome for one crop.
type Prediction struct {
	Label string
	// Score is the winning probability as a percent, rounded to whole percent.
	Score float64
}

// CheckVocabulary verifies that vocab has one label per classifier output.
//
// Arguments:
//   - c: The loaded classifier.
//   - vocab: The label vocabulary in output order.
//
// Returns:
//   - error: ErrArtifactMismatch when the counts differ.
func CheckVocabulary(c Classifier, vocab []string) error {
	if c.OutputWidth() != len(vocab) {
		return errors.Wrapf(ErrArtifactMismatch, "model scores %d classes, vocabulary has %d labels",
			c.OutputWidth(), len(vocab))
	}
	return nil
}

// Decide turns a probability vector into a Prediction.
//
// The arg-max class wins, first index on ties. Its probability is rounded to
// two decimals and expressed as a percent; a score below threshold replaces
// the label with labels.NoConfidentPrediction while keeping the score.
//
// Arguments:
//   - probs: Class probabilities in vocabulary order.
//   - vocab: Labels in output order.
//   - threshold: Minimum percent score for a confident label.
//
// Returns:
//   - Prediction: The label and score.
//   - error: ErrArtifactMismatch when probs and vocab lengths differ.
//
// @example
// p, _ := Decide([]float32{0.02, 0.976, 0.004}, []string{"cat", "dog", "fox"}, 95)
// // p == Prediction{Label: "dog", Score: 98}
func Decide(probs []float32, vocab []string, threshold float64) (Prediction, error) {
	if len(probs) != len(vocab) || len(probs) == 0 {
		return Prediction{}, errors.Wrapf(ErrArtifactMismatch, "%d scores for %d labels", len(probs), len(vocab))
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	score := math.Round(float64(probs[best])*100)
	label := vocab[best]
	if score < threshold {
		label = labels.NoConfidentPrediction
	}
	return Prediction{Label: label, Score: score}, nil
}
