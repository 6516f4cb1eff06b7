package etherdream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocupoint/etherdream/internal/fakedac"
	"github.com/ocupoint/etherdream/pkg/wire"
)

// Invariant 8: the engine never issues a DATA frame with n=0; an empty
// callback result ends the session instead.
func TestEngineNeverSendsEmptyDataFrame(t *testing.T) {
	script := fakedac.NewScript(wire.DacStatus{PlaybackState: wire.PlaybackPrepared})
	srv, err := fakedac.Listen(script)
	require.NoError(t, err)
	defer srv.Close()

	sess := dialFake(t, srv)
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = sess.PlayRaw(ctx, 30000, func(max uint16) []wire.Point {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, script.Count(wire.CmdData))
	assert.Equal(t, Halted, sess.Phase())
}

// Invariant: WrongResponse surfaces when command_echo doesn't match what
// was sent, instead of being silently accepted.
func TestWrongResponseSurfaces(t *testing.T) {
	script := fakedac.NewScript(wire.DacStatus{PlaybackState: wire.PlaybackPrepared})
	script.QueueResponse(wire.CmdData, wire.DacResponse{
		Ack: wire.AckOK, CommandEcho: wire.CmdBegin,
		Status: wire.DacStatus{PlaybackState: wire.PlaybackPrepared},
	})

	srv, err := fakedac.Listen(script)
	require.NoError(t, err)
	defer srv.Close()

	sess := dialFake(t, srv)
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = sess.PlayRaw(ctx, 30000, func(max uint16) []wire.Point {
		return []wire.Point{wire.XYBlank(0, 0)}
	})
	require.Error(t, err)
	assert.Equal(t, Halted, sess.Phase())
}

// ReceivedNack with NackInvalid is fatal; the engine must not retry it
// the way it retries NackBufferFull.
func TestNackInvalidIsFatal(t *testing.T) {
	script := fakedac.NewScript(wire.DacStatus{PlaybackState: wire.PlaybackPrepared})
	script.QueueResponse(wire.CmdData, wire.DacResponse{
		Ack: wire.AckNackInvalid, CommandEcho: wire.CmdData,
		Status: wire.DacStatus{PlaybackState: wire.PlaybackPrepared},
	})

	srv, err := fakedac.Listen(script)
	require.NoError(t, err)
	defer srv.Close()

	sess := dialFake(t, srv)
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err = sess.PlayRaw(ctx, 30000, func(max uint16) []wire.Point {
		return []wire.Point{wire.XYBlank(0, 0)}
	})
	require.Error(t, err)
	assert.Equal(t, 1, script.Count(wire.CmdData))
	assert.Equal(t, Halted, sess.Phase())
}

// The state diagram's "any -> EStop flag -> Halted" transition fires
// even when the DAC keeps acking commands normally; the session must
// not keep streaming into a latched E-Stop.
func TestEmergencyStopHaltsSession(t *testing.T) {
	script := fakedac.NewScript(wire.DacStatus{PlaybackState: wire.PlaybackPrepared})
	script.QueueResponse(wire.CmdData, wire.DacResponse{
		Ack: wire.AckOK, CommandEcho: wire.CmdData,
		Status: wire.DacStatus{
			PlaybackState:    wire.PlaybackPrepared,
			LightEngineState: wire.LightEngineEStop,
		},
	})

	srv, err := fakedac.Listen(script)
	require.NoError(t, err)
	defer srv.Close()

	sess := dialFake(t, srv)
	defer sess.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	batches := 0
	err = sess.PlayRaw(ctx, 30000, func(max uint16) []wire.Point {
		batches++
		return []wire.Point{wire.XYBlank(0, 0)}
	})
	require.Error(t, err)
	var emergency *EmergencyStop
	assert.ErrorAs(t, err, &emergency)
	assert.Equal(t, 1, batches)
	assert.Equal(t, 1, script.Count(wire.CmdData))
	assert.Equal(t, Halted, sess.Phase())
}

func TestPhaseStringer(t *testing.T) {
	assert.Equal(t, "Playing", Playing.String())
	assert.Equal(t, "Halted", Halted.String())
}
