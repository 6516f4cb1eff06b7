// Package etherdream drives an EtherDream laser-projector DAC: discovery
// on the local network, a managed TCP session, and a flow-controlled
// point-streaming engine that keeps the DAC's on-device ring buffer from
// underflowing or overflowing.
package etherdream

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ocupoint/etherdream/pkg/discovery"
	"github.com/ocupoint/etherdream/pkg/telemetry"
	"github.com/ocupoint/etherdream/pkg/wire"
)

// Session owns one TCP connection to a DAC and the streaming engine
// driving it. A Session is not safe for concurrent use by more than one
// caller at a time; callers wanting to observe state from another
// goroutine should use Status, which is safe to call concurrently.
type Session struct {
	transport *transport
	status    *statusTracker

	phaseMu sync.Mutex
	phase   Phase

	capMu          sync.RWMutex
	bufferCapacity uint16

	log *log.Logger
}

// Option configures a Session at Open time.
type Option func(*Session)

// WithBufferCapacity overrides the default assumed ring-buffer depth
// (1799), useful when the caller already knows the DAC's capacity from
// a prior Discover call.
func WithBufferCapacity(capacity uint16) Option {
	return func(s *Session) {
		s.bufferCapacity = capacity
	}
}

// WithRecorder attaches a telemetry recorder that observes every
// DacStatus the session receives — from the initial hello through every
// Prepare/Begin/Data/Ping response — for offline analysis. The caller
// owns the recorder's lifecycle and must Close it after the session is
// done.
func WithRecorder(rec *telemetry.Recorder) Option {
	return func(s *Session) {
		s.status.setRecorder(rec)
	}
}

// Discover blocks until one DAC broadcast has been received on the
// local network and returns its address and parsed broadcast frame.
func Discover(ctx context.Context) (*discovery.SearchResult, error) {
	return discovery.Discover(ctx)
}

// FindAll returns a channel of every distinct DAC (by MAC address)
// discovered until ctx is cancelled.
func FindAll(ctx context.Context) (<-chan discovery.SearchResult, <-chan error) {
	return discovery.FindAll(ctx)
}

// Open dials a TCP session to the DAC at ip and consumes its hello
// frame.
func Open(ip net.IP, opts ...Option) (*Session, error) {
	addr := fmt.Sprintf("%s:%d", ip.String(), ControlPort)
	s := &Session{
		transport:      newTransport(addr),
		status:         &statusTracker{},
		phase:          Connected,
		bufferCapacity: defaultBufferCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.transport.log

	hello, err := s.transport.connect()
	if err != nil {
		return nil, err
	}
	s.status.update(hello.Status)
	s.setPhase(Ready)
	return s, nil
}

// Phase reports the session's current position in the handshake/
// streaming state machine.
func (s *Session) Phase() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

// Status returns the most recently observed DacStatus. Safe to call
// concurrently with a running Play call.
func (s *Session) Status() wire.DacStatus {
	return s.status.snapshot()
}

// Ping sends a bare Ping command and returns the DAC's current status.
func (s *Session) Ping() (wire.DacStatus, error) {
	return s.ping()
}

// Stop closes the underlying socket. The DAC is not sent an explicit
// stop command: cutting the connection starves its buffer and it falls
// back to Idle on its own.
func (s *Session) Stop() error {
	s.phaseMu.Lock()
	s.phase = Halted
	s.phaseMu.Unlock()
	return s.transport.close()
}

// PlayRaw streams wire-format points produced by src until src returns
// an empty batch, ctx is cancelled, or an unrecoverable protocol error
// occurs. pointRate is passed to Begin; zero selects the default
// (30000).
func (s *Session) PlayRaw(ctx context.Context, pointRate uint32, src func(maxPoints uint16) []wire.Point) error {
	return s.playRaw(ctx, pointRate, src)
}

// PlaySimple streams SimplePoint batches, converting each to wire form
// before shipping.
func (s *Session) PlaySimple(ctx context.Context, pointRate uint32, src func(maxPoints uint16) []wire.SimplePoint) error {
	return s.playRaw(ctx, pointRate, func(max uint16) []wire.Point {
		batch := src(max)
		if len(batch) == 0 {
			return nil
		}
		out := make([]wire.Point, len(batch))
		for i, p := range batch {
			out[i] = p.ToPoint()
		}
		return out
	})
}

// PlayPipeline streams PipelinePoint batches, converting each to wire
// form (clamping coordinates and rounding color channels) before
// shipping.
func (s *Session) PlayPipeline(ctx context.Context, pointRate uint32, src func(maxPoints uint16) []wire.PipelinePoint) error {
	return s.playRaw(ctx, pointRate, func(max uint16) []wire.Point {
		batch := src(max)
		if len(batch) == 0 {
			return nil
		}
		out := make([]wire.Point, len(batch))
		for i, p := range batch {
			out[i] = p.ToPoint()
		}
		return out
	})
}
