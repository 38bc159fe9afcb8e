// Package tracker - Links motion boxes across consecutive frames into tracks.
//
// Two detections in frames t and t-1 are candidates for the same object when
// their centroids lie within a distance limit. Each detection keeps at most
// one predecessor link and the links are resolved into connected components
// with a union-find forest. Every component becomes one track, numbered densely
// from 0 in order of first appearance.
package tracker

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r2"
)

// NoTrack marks a detection that has not been assigned to a track.
const NoTrack = -1

// ErrOutOfOrder is returned when frames are not delivered in increasing index order.
var ErrOutOfOrder = errors.New("frame delivered out of order")

// Policy selects which predecessor a detection keeps when several previous-frame
// detections lie within the distance limit.
type Policy int

const (
	// LinkLast keeps the last candidate in detection order.
	LinkLast Policy = iota
	// LinkNearest keeps the closest candidate; ties go to the lowest index.
	LinkNearest
)

// ParsePolicy maps a config string onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "last":
		return LinkLast, nil
	case "nearest":
		return LinkNearest, nil
	default:
		return LinkLast, errors.Errorf("unknown link policy %q", s)
	}
}

func (p Policy) String() string {
	if p == LinkNearest {
		return "nearest"
	}
	return "last"
}

// Link records that detection From (frame t) continues detection To (frame t-1).
type Link struct {
	From, To int
	Distance float64
}

// Item is the tracker's view of a detection.
type Item struct {
	Frame    int
	Centroid r2.Vec
}

type entry struct {
	index    int
	centroid r2.Vec
}

// Tracker assigns track ids to detections delivered frame by frame.
//
// Frames must arrive in strictly increasing index order. Gaps are allowed: a
// frame that is never added simply breaks every link across it. The Tracker is
// not safe for concurrent use.
type Tracker struct {
	limit  float64
	policy Policy

	count int
	links []Link

	started   bool
	prevFrame int
	prev      []entry
}

// New creates a tracker that links centroids at most distanceLimit pixels apart.
//
// Arguments:
//   - distanceLimit: Maximum centroid distance between consecutive frames.
//   - policy: Tie-break used when a detection has several candidate predecessors.
//
// Returns:
//   - *Tracker: An empty tracker.
func New(distanceLimit float64, policy Policy) *Tracker {
	return &Tracker{
		limit:  distanceLimit,
		policy: policy,
	}
}

// Add registers the detections of one frame and links them to the previous frame.
//
// Arguments:
//   - frame: The frame index. Must be greater than every frame added before.
//   - centroids: Centroids of the frame's detections, in detection order.
//
// Returns:
//   - []int: The tracker indices given to the detections.
//   - error: ErrOutOfOrder if frame does not advance.
func (t *Tracker) Add(frame int, centroids []r2.Vec) ([]int, error) {
	if t.started && frame <= t.prevFrame {
		return nil, errors.Wrapf(ErrOutOfOrder, "frame %d after frame %d", frame, t.prevFrame)
	}

	base := t.count
	t.count += len(centroids)

	current := make([]entry, len(centroids))
	indices := make([]int, len(centroids))
	consecutive := t.started && frame-t.prevFrame == 1

	for i, c := range centroids {
		idx := base + i
		current[i] = entry{index: idx, centroid: c}
		indices[i] = idx

		if !consecutive {
			continue
		}
		if link, ok := t.pick(idx, c); ok {
			t.links = append(t.links, link)
		}
	}

	t.started = true
	t.prevFrame = frame
	t.prev = current

	return indices, nil
}

// pick selects the single retained predecessor of detection idx.
func (t *Tracker) pick(idx int, c r2.Vec) (Link, bool) {
	var (
		best  Link
		found bool
	)
	for _, p := range t.prev {
		d := r2.Norm(r2.Sub(c, p.centroid))
		if d > t.limit {
			continue
		}
		switch t.policy {
		case LinkNearest:
			if !found || d < best.Distance {
				best = Link{From: idx, To: p.index, Distance: d}
			}
		default:
			best = Link{From: idx, To: p.index, Distance: d}
		}
		found = true
	}
	return best, found
}

// Links returns the retained links in the order they were created.
func (t *Tracker) Links() []Link {
	out := make([]Link, len(t.links))
	copy(out, t.links)
	return out
}

// Len returns the number of detections added so far.
func (t *Tracker) Len() int {
	return t.count
}

// Assign returns the dense track id of every detection, indexed by tracker index.
func (t *Tracker) Assign() []int {
	return denseIDs(ResolveRoots(t.count, t.links))
}

// ResolveRoots maps every node to the smallest node index of its connected
// component, given pairwise links. Chains, forks and cycles are all resolved.
// Feeding the result back as links (i -> roots[i]) yields the same roots.
func ResolveRoots(n int, links []Link) []int {
	set := NewDisjointSet(n)
	for _, l := range links {
		set.Union(l.From, l.To)
	}

	smallest := make(map[int]int, n)
	roots := make([]int, n)
	for i := 0; i < n; i++ {
		r := set.Find(i)
		if _, ok := smallest[r]; !ok {
			smallest[r] = i
		}
		roots[i] = smallest[r]
	}
	return roots
}

// denseIDs numbers components 0, 1, 2, ... in order of first appearance.
func denseIDs(roots []int) []int {
	ids := make([]int, len(roots))
	seen := make(map[int]int)
	for i, r := range roots {
		id, ok := seen[r]
		if !ok {
			id = len(seen)
			seen[r] = id
		}
		ids[i] = id
	}
	return ids
}

// Track assigns track ids to a complete set of detections.
//
// Items may be given in any order; they are processed in (Frame, index) order,
// which also defines first appearance for the dense numbering.
//
// Arguments:
//   - items: All detections of the video.
//   - distanceLimit: Maximum centroid distance between consecutive frames.
//   - policy: Predecessor tie-break.
//
// Returns:
//   - []int: The track id of items[i] at position i.
//
// @example
// ids := Track([]Item{{Frame: 0, Centroid: r2.Vec{X: 10, Y: 10}}, {Frame: 1, Centroid: r2.Vec{X: 12, Y: 10}}}, 30, LinkLast)
// // ids == []int{0, 0}
func Track(items []Item, distanceLimit float64, policy Policy) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].Frame < items[order[b]].Frame
	})

	t := New(distanceLimit, policy)
	ids := make([]int, len(items))
	slot := make([]int, 0, len(items))

	for start := 0; start < len(order); {
		frame := items[order[start]].Frame
		end := start
		var centroids []r2.Vec
		for end < len(order) && items[order[end]].Frame == frame {
			centroids = append(centroids, items[order[end]].Centroid)
			end++
		}
		// Frames are grouped in increasing order, so Add cannot fail here.
		_, _ = t.Add(frame, centroids)
		slot = append(slot, order[start:end]...)
		start = end
	}

	assigned := t.Assign()
	for trackerIdx, itemIdx := range slot {
		ids[itemIdx] = assigned[trackerIdx]
	}
	return ids
}
