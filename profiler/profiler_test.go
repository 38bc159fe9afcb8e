package profiler

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTimer_Record(t *testing.T) {
	st := NewStageTimer()
	st.Record(StageSegment, 2*time.Millisecond)
	st.Record(StageSegment, 4*time.Millisecond)
	st.Record(StageDecode, time.Millisecond)

	stats := st.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, StageStats{
		Name:  StageDecode,
		Count: 1,
		Total: time.Millisecond,
		Min:   time.Millisecond,
		Max:   time.Millisecond,
		Avg:   time.Millisecond,
	}, stats[0])
	assert.Equal(t, StageSegment, stats[1].Name)
	assert.Equal(t, int64(2), stats[1].Count)
	assert.Equal(t, 3*time.Millisecond, stats[1].Avg)
	assert.Equal(t, 2*time.Millisecond, stats[1].Min)
	assert.Equal(t, 4*time.Millisecond, stats[1].Max)
}

func TestStageTimer_Concurrent(t *testing.T) {
	st := NewStageTimer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				done := st.StartOperation(StageTrack)
				done()
			}
		}()
	}
	wg.Wait()

	stats := st.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(800), stats[0].Count)
}

func TestStageTimer_Nil(t *testing.T) {
	var st *StageTimer
	st.Record(StageDecode, time.Second)
	st.StartOperation(StageDecode)()
	assert.Nil(t, st.Stats())
	assert.Zero(t, st.Elapsed())
	st.LogSummary(slog.Default())
}

func TestStageTimer_LogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	st := NewStageTimer()
	st.Record(StageClassify, time.Millisecond)
	st.LogSummary(logger)

	assert.Contains(t, buf.String(), "run finished")
	assert.Contains(t, buf.String(), "stage=classify")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
