package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocupoint/etherdream/internal/fakedac"
	"github.com/ocupoint/etherdream/pkg/wire"
)

func sampleBroadcast(mac byte) wire.Broadcast {
	return wire.Broadcast{
		MAC:            [6]byte{mac, 1, 2, 3, 4, 5},
		HWRevision:     1,
		SWRevision:     2,
		BufferCapacity: 1799,
		MaxPointRate:   30000,
		Status: wire.DacStatus{
			PlaybackState: wire.PlaybackIdle,
		},
	}
}

func TestDiscoverFindsFirstBroadcast(t *testing.T) {
	bc := sampleBroadcast(0xAA)
	b, err := fakedac.NewBroadcaster("127.0.0.1:7654", bc, 50*time.Millisecond)
	require.NoError(t, err)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := Discover(ctx)
	require.NoError(t, err)
	require.Equal(t, bc.MAC, result.Broadcast.MAC)
}

func TestFindAllDedupesByMAC(t *testing.T) {
	bc := sampleBroadcast(0xBB)
	b, err := fakedac.NewBroadcaster("127.0.0.1:7654", bc, 20*time.Millisecond)
	require.NoError(t, err)
	defer b.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	results, errs := FindAll(ctx)

	seen := map[[6]byte]int{}
	for r := range results {
		seen[r.Broadcast.MAC]++
	}
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 1, seen[bc.MAC])
}
