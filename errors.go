package etherdream

import (
	"fmt"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// ReceivedNack wraps a non-Ack response code together with the command
// it was a reply to.
type ReceivedNack struct {
	Code    uint8
	Command uint8
}

func (e *ReceivedNack) Error() string {
	return fmt.Sprintf("dac nacked command 0x%02x with code 0x%02x", e.Command, e.Code)
}

// Recoverable reports whether the engine can retry locally, which is
// true only for NackBufferFull.
func (e *ReceivedNack) Recoverable() bool {
	return e.Code == wire.AckNackBufferFull
}

// EmergencyStop indicates the DAC's light engine has latched an E-Stop
// condition (thermal, ethernet-loss, or physical E-Stop input),
// independent of how the last command was acked. The session must halt.
type EmergencyStop struct {
	LightEngineFlags uint16
}

func (e *EmergencyStop) Error() string {
	return fmt.Sprintf("dac light engine entered e-stop (flags 0x%04x)", e.LightEngineFlags)
}

// WrongResponse indicates the DAC's command_echo byte did not match the
// command the session just sent, a sign the stream has desynchronized.
type WrongResponse struct {
	Expected uint8
	Got      uint8
}

func (e *WrongResponse) Error() string {
	return fmt.Sprintf("expected response echoing command 0x%02x, got 0x%02x", e.Expected, e.Got)
}

// IoError wraps an underlying transport failure (dial, read, write,
// deadline). The session is unusable once this occurs and the caller
// must re-discover and re-open.
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("etherdream io: %s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Op: op, Err: err}
}
