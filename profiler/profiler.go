// Package profiler - Per-stage timing of a detection run.
package profiler

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Stage names recorded by the pipeline.
const (
	StageDecode   = "decode"
	StageSegment  = "segment"
	StageDedup    = "dedup"
	StageClassify = "classify"
	StageTrack    = "track"
)

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// StageStats is a snapshot of one stage.
type StageStats struct {
	Name  string
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// StageTimer accumulates durations per named stage. It is safe for concurrent
// use and a nil *StageTimer records nothing.
type StageTimer struct {
	mu        sync.Mutex
	startTime time.Time
	stages    map[string]*TimeTracker
}

// NewStageTimer creates a StageTimer whose run clock starts now.
func NewStageTimer() *StageTimer {
	return &StageTimer{
		startTime: time.Now(),
		stages:    make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the stage to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := timer.StartOperation(profiler.StageSegment)
// boxes, err := seg.Segment(frame, background, area)
// done()
func (st *StageTimer) StartOperation(name string) func() {
	if st == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		st.Record(name, time.Since(start))
	}
}

// Record adds one duration to a stage.
func (st *StageTimer) Record(name string, duration time.Duration) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.stages[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		st.stages[name] = tracker
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Elapsed returns the time since the timer was created.
func (st *StageTimer) Elapsed() time.Duration {
	if st == nil {
		return 0
	}
	return time.Since(st.startTime)
}

// Stats returns a snapshot of every stage, sorted by name.
func (st *StageTimer) Stats() []StageStats {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]StageStats, 0, len(st.stages))
	for _, t := range st.stages {
		out = append(out, StageStats{
			Name:  t.name,
			Count: t.count,
			Total: t.totalTime,
			Min:   t.minTime,
			Max:   t.maxTime,
			Avg:   t.totalTime / time.Duration(t.count),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LogSummary logs the elapsed run time, heap usage and one line per stage.
func (st *StageTimer) LogSummary(logger *slog.Logger) {
	if st == nil {
		return
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	logger.Info("run finished",
		"elapsed", st.Elapsed().Truncate(time.Millisecond),
		"heap", formatBytes(mem.HeapAlloc),
		"gc_cycles", mem.NumGC)
	for _, s := range st.Stats() {
		logger.Debug("stage timing",
			"stage", s.Name,
			"count", s.Count,
			"avg", s.Avg.Truncate(time.Microsecond),
			"min", s.Min.Truncate(time.Microsecond),
			"max", s.Max.Truncate(time.Microsecond),
			"total", s.Total.Truncate(time.Millisecond))
	}
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
