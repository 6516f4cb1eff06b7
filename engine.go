package etherdream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// Phase tracks where a Session is in the handshake/streaming state
// machine.
type Phase int

const (
	Connected Phase = iota
	Ready
	Prepared
	Primed
	Playing
	Halted
)

func (p Phase) String() string {
	switch p {
	case Connected:
		return "Connected"
	case Ready:
		return "Ready"
	case Prepared:
		return "Prepared"
	case Primed:
		return "Primed"
	case Playing:
		return "Playing"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// defaultBufferCapacity is the ring-buffer depth a Session assumes unless
// WithBufferCapacity supplies the DAC's real depth. A Session does not
// read Broadcast frames itself.
const defaultBufferCapacity = 1799

// defaultPointRate is the point rate requested by Begin when the caller
// does not supply one.
const defaultPointRate = 30000

// maxBatchPoints caps a single DATA frame's point count so that one
// write's latency stays bounded; larger refills span several
// iterations instead of a single giant frame.
const maxBatchPoints = 1000

const (
	nackBackoffStart = time.Millisecond
	nackBackoffMax   = 10 * time.Millisecond
)

// rawPointSource produces up to maxPoints wire points per call. A
// zero-length return signals end of stream.
type rawPointSource func(maxPoints uint16) []wire.Point

// playRaw drives the full Connected→Halted state machine against src,
// shipping points until src returns empty, ctx is cancelled, or an
// unrecoverable error occurs.
func (s *Session) playRaw(ctx context.Context, pointRate uint32, src rawPointSource) error {
	s.phaseMu.Lock()
	s.phase = Ready
	s.phaseMu.Unlock()

	if s.status.needsPrepare() {
		if err := s.sendPrepare(); err != nil {
			return s.halt(err)
		}
	}
	s.setPhase(Prepared)

	if pointRate == 0 {
		pointRate = defaultPointRate
	}

	first := true
	var pending []wire.Point

	for {
		if ctx.Err() != nil {
			return s.halt(ctx.Err())
		}
		if err := s.checkEmergency(); err != nil {
			return s.halt(err)
		}

		if pending == nil {
			target := int(s.capacity()) - int(s.status.snapshot().BufferFullness)
			if target > maxBatchPoints {
				target = maxBatchPoints
			}
			if target <= 0 {
				time.Sleep(nackBackoffStart)
				continue
			}
			points := src(uint16(target))
			if len(points) == 0 {
				s.log.Debug("point source exhausted, stopping session")
				return s.halt(nil)
			}
			pending = points
		}

		if err := s.sendDataWithBackoff(ctx, pending); err != nil {
			return s.halt(err)
		}
		pending = nil

		if first {
			first = false
			s.setPhase(Primed)
			if err := s.sendBegin(pointRate); err != nil {
				return s.halt(err)
			}
			s.setPhase(Playing)
		}
	}
}

// sendDataWithBackoff sends one DATA frame, retrying the identical
// point set on NackBufferFull with exponential backoff capped at
// nackBackoffMax, polling via Ping between attempts until the DAC has
// drained enough of its buffer.
func (s *Session) sendDataWithBackoff(ctx context.Context, points []wire.Point) error {
	frame, err := wire.EncodeData(points)
	if err != nil {
		return err
	}

	backoff := nackBackoffStart
	for {
		resp, err := s.transport.request(frame, wire.CmdData)
		if err == nil {
			s.status.update(resp.Status)
			return s.checkEmergency()
		}

		var nack *ReceivedNack
		if !errors.As(err, &nack) || !nack.Recoverable() {
			return err
		}
		s.status.update(resp.Status)
		if emErr := s.checkEmergency(); emErr != nil {
			return emErr
		}
		s.log.Debug("dac buffer full, backing off", "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > nackBackoffMax {
			backoff = nackBackoffMax
		}

		if err := s.pollUntilRoom(ctx); err != nil {
			return err
		}
	}
}

// pollUntilRoom pings the DAC until its reported buffer fullness is
// below capacity, so the retried DATA frame in sendDataWithBackoff has
// somewhere to land.
func (s *Session) pollUntilRoom(ctx context.Context) error {
	for {
		status, err := s.ping()
		if err != nil {
			return err
		}
		if status.IsEmergency() {
			return &EmergencyStop{LightEngineFlags: status.LightEngineFlags}
		}
		if int(status.BufferFullness) < int(s.capacity()) {
			return nil
		}
		select {
		case <-time.After(nackBackoffStart):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) sendPrepare() error {
	resp, err := s.transport.request(wire.EncodePrepare(), wire.CmdPrepare)
	if err != nil {
		return err
	}
	s.status.update(resp.Status)
	return nil
}

func (s *Session) sendBegin(pointRate uint32) error {
	resp, err := s.transport.request(wire.EncodeBegin(0, pointRate), wire.CmdBegin)
	if err != nil {
		return err
	}
	s.status.update(resp.Status)
	return nil
}

func (s *Session) ping() (wire.DacStatus, error) {
	resp, err := s.transport.request(wire.EncodePing(), wire.CmdPing)
	if err != nil {
		return wire.DacStatus{}, err
	}
	s.status.update(resp.Status)
	return resp.Status, nil
}

func (s *Session) capacity() uint16 {
	s.capMu.RLock()
	defer s.capMu.RUnlock()
	return s.bufferCapacity
}

// checkEmergency halts the session when the light engine has latched
// an E-Stop, independent of whatever ack code the last command
// received.
func (s *Session) checkEmergency() error {
	status := s.status.snapshot()
	if !status.IsEmergency() {
		return nil
	}
	return &EmergencyStop{LightEngineFlags: status.LightEngineFlags}
}

func (s *Session) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
	s.log.Debug("phase transition", "phase", p.String())
}

func (s *Session) halt(cause error) error {
	s.phaseMu.Lock()
	s.phase = Halted
	s.phaseMu.Unlock()
	s.transport.close()
	if cause != nil {
		s.log.Warn("session halted", "err", cause)
		return fmt.Errorf("etherdream session halted: %w", cause)
	}
	s.log.Debug("session halted")
	return nil
}
