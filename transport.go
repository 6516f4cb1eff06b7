package etherdream

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// ControlPort is the TCP port the DAC listens for commands on.
const ControlPort = 7765

// ioTimeout bounds every single read or write on the control socket.
const ioTimeout = 2 * time.Second

// transport owns one TCP connection to a DAC for the lifetime of a
// Session. Every request is a write-then-read pair executed under a
// single mutex, mirroring a strict request/response discipline: no
// command is issued before the previous response has been read.
type transport struct {
	addr string
	mu   sync.Mutex
	conn net.Conn
	id   uuid.UUID
	log  *log.Logger
}

func newTransport(addr string) *transport {
	id := uuid.New()
	return &transport{
		addr: addr,
		id:   id,
		log:  log.With("session", id.String(), "addr", addr),
	}
}

// connect dials the DAC and consumes its unsolicited hello frame. The
// caller must not send any command before connect returns successfully.
func (t *transport) connect() (wire.DacResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := net.DialTimeout("tcp", t.addr, ioTimeout)
	if err != nil {
		return wire.DacResponse{}, ioErr("dial", err)
	}
	t.conn = conn
	t.log.Debug("connected")

	hello, err := t.readResponseLocked()
	if err != nil {
		conn.Close()
		t.conn = nil
		return wire.DacResponse{}, fmt.Errorf("reading hello: %w", err)
	}
	return hello, nil
}

// close tears down the underlying socket. Safe to call more than once.
func (t *transport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// request writes a command frame and reads back exactly one 22-byte
// response, validating that its command_echo matches expectCommand.
func (t *transport) request(frame []byte, expectCommand uint8) (wire.DacResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return wire.DacResponse{}, ioErr("request", fmt.Errorf("not connected"))
	}

	t.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	if _, err := t.conn.Write(frame); err != nil {
		return wire.DacResponse{}, ioErr("write", err)
	}

	resp, err := t.readResponseLocked()
	if err != nil {
		return wire.DacResponse{}, err
	}
	if resp.CommandEcho != expectCommand {
		return resp, &WrongResponse{Expected: expectCommand, Got: resp.CommandEcho}
	}
	if resp.Ack != wire.AckOK {
		return resp, &ReceivedNack{Code: resp.Ack, Command: resp.CommandEcho}
	}
	return resp, nil
}

// readResponseLocked blocks until exactly 22 bytes have arrived,
// coalescing partial reads, and parses them. Caller must hold t.mu and
// have a live t.conn.
func (t *transport) readResponseLocked() (wire.DacResponse, error) {
	t.conn.SetReadDeadline(time.Now().Add(ioTimeout))

	buf := make([]byte, 22)
	total := 0
	for total < len(buf) {
		n, err := t.conn.Read(buf[total:])
		total += n
		if err != nil {
			return wire.DacResponse{}, ioErr("read", err)
		}
	}
	return wire.ParseDacResponse(buf)
}
