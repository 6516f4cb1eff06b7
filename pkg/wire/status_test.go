package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsPrepareOnIdle(t *testing.T) {
	s := DacStatus{PlaybackState: PlaybackIdle}
	assert.True(t, s.NeedsPrepare())
}

func TestNeedsPrepareOnUnderflowFlag(t *testing.T) {
	s := DacStatus{PlaybackState: PlaybackPrepared, PlaybackFlags: PlaybackFlagUnderflow}
	assert.True(t, s.NeedsPrepare())
}

func TestNeedsPrepareOnEStopFlag(t *testing.T) {
	s := DacStatus{PlaybackState: PlaybackPlaying, PlaybackFlags: PlaybackFlagEStop}
	assert.True(t, s.NeedsPrepare())
}

func TestNeedsPrepareFalseWhenClean(t *testing.T) {
	s := DacStatus{PlaybackState: PlaybackPlaying, PlaybackFlags: 0x1}
	assert.False(t, s.NeedsPrepare())
}

func TestIsEmergency(t *testing.T) {
	assert.True(t, DacStatus{LightEngineState: LightEngineEStop}.IsEmergency())
	assert.False(t, DacStatus{LightEngineState: LightEngineReady}.IsEmergency())
}
