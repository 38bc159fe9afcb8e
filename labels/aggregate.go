// Package labels - Reduces per-detection classifier labels to one label per track.
package labels

const (
	// NoConfidentPrediction replaces a classifier label whose score falls below
	// the configured threshold.
	NoConfidentPrediction = "none_of_the_above"
	// Unknown is returned for tracks without enough evidence for a majority label.
	Unknown = "unknown"
)

// Aggregate picks the authoritative label of one track.
//
// The frequency of every distinct value (the NoConfidentPrediction sentinel
// included) is computed as a percentage of all values. When the track has at
// least minCount values and the most frequent one exceeds minOccurrencePct,
// that value is returned; otherwise Unknown. On a frequency tie the value that
// occurs first in values wins.
//
// Arguments:
//   - values: Labels of every detection in the track.
//   - minCount: Minimum number of detections for the track to be labelled.
//   - minOccurrencePct: Percentage the majority label must exceed.
//
// Returns:
//   - string: The track label.
//
// @example
// Aggregate([]string{"cat", "cat", "cat", "dog"}, 3, 25) // "cat"
// Aggregate([]string{"cat", "dog"}, 3, 25)               // "unknown"
func Aggregate(values []string, minCount int, minOccurrencePct float64) string {
	if len(values) == 0 || len(values) < minCount {
		return Unknown
	}

	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	var (
		best      string
		bestCount int
	)
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}

	pct := float64(bestCount) * 100 / float64(len(values))
	if pct > minOccurrencePct {
		return best
	}
	return Unknown
}

// ByTrack aggregates labels grouped by track id and returns the label of every
// track. Values and trackIDs are parallel slices.
func ByTrack(values []string, trackIDs []int, minCount int, minOccurrencePct float64) map[int]string {
	grouped := make(map[int][]string)
	for i, id := range trackIDs {
		grouped[id] = append(grouped[id], values[i])
	}

	out := make(map[int]string, len(grouped))
	for id, group := range grouped {
		out[id] = Aggregate(group, minCount, minOccurrencePct)
	}
	return out
}

// Confident reports whether a label should be shown to a user.
func Confident(label string) bool {
	return label != "" && label != NoConfidentPrediction && label != Unknown
}
