package classifier

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// Options controls batched classification.
type Options struct {
	// BatchSize is the number of crops per Predict call.
	BatchSize int
	// ScoreThreshold is the minimum percent score for a confident label.
	ScoreThreshold float64
}

// ClassifyAll runs crops through c in batches and decides every prediction.
//
// Arguments:
//   - ctx: Cancels between batches.
//   - c: The classifier.
//   - vocab: Labels in classifier output order.
//   - crops: Images to classify.
//   - opts: Batch size and score threshold.
//
// Returns:
//   - []Prediction: One prediction per crop, in input order.
//   - error: Error if the classifier fails or returns a malformed batch.
func ClassifyAll(ctx context.Context, c Classifier, vocab []string, crops []image.Image, opts Options) ([]Prediction, error) {
	if err := CheckVocabulary(c, vocab); err != nil {
		return nil, err
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	out := make([]Prediction, 0, len(crops))
	for start := 0; start < len(crops); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+size, len(crops))

		probs, err := c.Predict(ctx, crops[start:end])
		if err != nil {
			return nil, errors.Wrapf(err, "predict crops %d-%d", start, end-1)
		}
		if len(probs) != end-start {
			return nil, errors.Errorf("predict crops %d-%d: got %d results", start, end-1, len(probs))
		}
		for _, p := range probs {
			pred, err := Decide(p, vocab, opts.ScoreThreshold)
			if err != nil {
				return nil, err
			}
			out = append(out, pred)
		}
	}
	return out, nil
}
