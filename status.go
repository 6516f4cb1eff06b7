package etherdream

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ocupoint/etherdream/pkg/telemetry"
	"github.com/ocupoint/etherdream/pkg/wire"
)

// statusTracker is a projection of the most recently observed DacStatus,
// safe to read from a different goroutine than the one driving the
// engine (e.g. a UI polling for display purposes). When a recorder is
// attached, every update is also appended to it for offline analysis.
type statusTracker struct {
	mu       sync.RWMutex
	status   wire.DacStatus
	recorder *telemetry.Recorder
}

func (t *statusTracker) update(s wire.DacStatus) {
	t.mu.Lock()
	t.status = s
	rec := t.recorder
	t.mu.Unlock()

	if rec == nil {
		return
	}
	if err := rec.Observe(s); err != nil {
		log.Error("telemetry: failed to record status sample", "err", err)
	}
}

func (t *statusTracker) setRecorder(rec *telemetry.Recorder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recorder = rec
}

func (t *statusTracker) snapshot() wire.DacStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *statusTracker) needsPrepare() bool {
	return t.snapshot().NeedsPrepare()
}

func (t *statusTracker) isPlaying() bool {
	return t.snapshot().IsPlaying()
}

func (t *statusTracker) isEmergency() bool {
	return t.snapshot().IsEmergency()
}

func (t *statusTracker) freeSlots(capacity uint16) int {
	return t.snapshot().FreeSlots(capacity)
}
