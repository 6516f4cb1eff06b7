// Package discovery listens for EtherDream DACs announcing themselves on
// the local network and parses their broadcast frames.
package discovery

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// absoluteDeadlinePast is used to force an in-flight UDP read to return
// immediately once the caller's context is cancelled.
var absoluteDeadlinePast = time.Unix(1, 0)

// BroadcastPort is the UDP port DACs broadcast discovery datagrams on.
const BroadcastPort = 7654

// maxDatagram is generous headroom over the 36-byte Broadcast frame;
// anything longer is still parsed from its first 36 bytes.
const maxDatagram = 1500

// SearchResult pairs a discovered DAC's address with its parsed
// broadcast frame.
type SearchResult struct {
	IP        net.IP
	Broadcast wire.Broadcast
}

// listen binds the discovery port with SO_REUSEADDR so more than one
// process (or more than one call in the same process) can listen for
// broadcasts concurrently.
func listen() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", BroadcastPort))
	if err != nil {
		return nil, fmt.Errorf("etherdream discovery: bind :%d: %w", BroadcastPort, err)
	}
	return pc.(*net.UDPConn), nil
}

// Discover blocks until one DAC broadcast has been received and returns
// it. It binds its own UDP socket and closes it before returning.
func Discover(ctx context.Context) (*SearchResult, error) {
	conn, err := listen()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	go func() {
		<-ctx.Done()
		conn.SetReadDeadline(absoluteDeadlinePast)
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("etherdream discovery: recv: %w", err)
		}
		bc, err := wire.ParseBroadcast(buf[:n])
		if err != nil {
			log.Debug("discovery: skipping short datagram", "from", addr, "len", n, "err", err)
			continue
		}
		return &SearchResult{IP: addr.IP, Broadcast: bc}, nil
	}
}

// FindAll returns a channel of discovered DACs, de-duplicated by MAC
// address, and a parallel error channel. Both channels close when ctx is
// cancelled or an unrecoverable socket error occurs.
func FindAll(ctx context.Context) (<-chan SearchResult, <-chan error) {
	results := make(chan SearchResult)
	errs := make(chan error, 1)

	go func() {
		defer close(results)
		defer close(errs)

		conn, err := listen()
		if err != nil {
			errs <- err
			return
		}
		defer conn.Close()

		go func() {
			<-ctx.Done()
			conn.SetReadDeadline(absoluteDeadlinePast)
		}()

		seen := make(map[[6]byte]bool)
		buf := make([]byte, maxDatagram)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("etherdream discovery: recv: %w", err)
				return
			}
			bc, err := wire.ParseBroadcast(buf[:n])
			if err != nil {
				log.Debug("discovery: skipping short datagram", "from", addr, "len", n, "err", err)
				continue
			}
			if seen[bc.MAC] {
				continue
			}
			seen[bc.MAC] = true
			select {
			case results <- SearchResult{IP: addr.IP, Broadcast: bc}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, errs
}
