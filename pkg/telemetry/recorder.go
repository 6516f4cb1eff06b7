// Package telemetry records DacStatus snapshots observed over the life
// of a session to a columnar file for offline analysis, independent of
// the streaming engine itself.
package telemetry

import (
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// Sample is one recorded observation of a DacStatus, tagged with its
// 1-based position in the recorder's sequence of observations.
type Sample struct {
	Sequence         uint64 `parquet:"sequence"`
	Protocol         uint8  `parquet:"protocol"`
	LightEngineState uint8  `parquet:"light_engine_state"`
	PlaybackState    uint8  `parquet:"playback_state"`
	Source           uint8  `parquet:"source"`
	LightEngineFlags uint16 `parquet:"light_engine_flags"`
	PlaybackFlags    uint16 `parquet:"playback_flags"`
	SourceFlags      uint16 `parquet:"source_flags"`
	BufferFullness   uint16 `parquet:"buffer_fullness"`
	PointRate        uint32 `parquet:"point_rate"`
	PointCount       uint32 `parquet:"point_count"`
}

func sampleFromStatus(seq uint64, s wire.DacStatus) Sample {
	return Sample{
		Sequence:         seq,
		Protocol:         s.Protocol,
		LightEngineState: s.LightEngineState,
		PlaybackState:    s.PlaybackState,
		Source:           s.Source,
		LightEngineFlags: s.LightEngineFlags,
		PlaybackFlags:    s.PlaybackFlags,
		SourceFlags:      s.SourceFlags,
		BufferFullness:   s.BufferFullness,
		PointRate:        s.PointRate,
		PointCount:       s.PointCount,
	}
}

// Recorder buffers status samples and flushes them to a parquet writer
// in batches.
type Recorder struct {
	writer  *parquet.GenericWriter[Sample]
	seq     uint64
	pending []Sample
	batch   int
}

// NewRecorder wraps w in a parquet.GenericWriter[Sample] that flushes
// every batch rows (or on Close).
func NewRecorder(w io.Writer, batch int) *Recorder {
	if batch <= 0 {
		batch = 256
	}
	return &Recorder{
		writer: parquet.NewGenericWriter[Sample](w),
		batch:  batch,
	}
}

// Observe appends one DacStatus snapshot, flushing to the underlying
// writer once the batch fills.
func (r *Recorder) Observe(s wire.DacStatus) error {
	r.seq++
	r.pending = append(r.pending, sampleFromStatus(r.seq, s))
	if len(r.pending) < r.batch {
		return nil
	}
	return r.flush()
}

func (r *Recorder) flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	if _, err := r.writer.Write(r.pending); err != nil {
		return fmt.Errorf("etherdream telemetry: write batch: %w", err)
	}
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("etherdream telemetry: flush batch: %w", err)
	}
	r.pending = r.pending[:0]
	return nil
}

// Close flushes any buffered samples and closes the underlying parquet
// writer.
func (r *Recorder) Close() error {
	if err := r.flush(); err != nil {
		return err
	}
	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("etherdream telemetry: close: %w", err)
	}
	return nil
}
