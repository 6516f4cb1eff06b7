// Package fakedac simulates an EtherDream DAC for tests: a UDP
// broadcaster, a TCP responder, or both. It lets the session and
// discovery test suites exercise the real wire protocol without
// hardware.
package fakedac

import (
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/ocupoint/etherdream/pkg/wire"
)

// Broadcaster periodically emits a Broadcast datagram to a UDP address,
// standing in for a DAC announcing itself on the discovery port.
type Broadcaster struct {
	conn   *net.UDPConn
	stop   chan struct{}
	done   chan struct{}
	bcast  wire.Broadcast
	period time.Duration
}

// NewBroadcaster dials a UDP socket aimed at dst and starts sending bc
// every period until Stop is called.
func NewBroadcaster(dst string, bc wire.Broadcast, period time.Duration) (*Broadcaster, error) {
	addr, err := net.ResolveUDPAddr("udp4", dst)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}
	b := &Broadcaster{conn: conn, stop: make(chan struct{}), done: make(chan struct{}), bcast: bc, period: period}
	go b.run()
	return b, nil
}

func (b *Broadcaster) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()
	frame := wire.SerializeBroadcast(b.bcast)
	b.conn.Write(frame)
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.conn.Write(frame)
		}
	}
}

// Stop halts the broadcaster and closes its socket.
func (b *Broadcaster) Stop() {
	close(b.stop)
	<-b.done
	b.conn.Close()
}

// Script describes how the fake DAC should respond to each command it
// receives, keyed by opcode. A missing entry falls back to a plain Ack.
type Script struct {
	mu        sync.Mutex
	responses map[byte][]wire.DacResponse
	status    wire.DacStatus
	counts    map[byte]int
}

// NewScript builds an empty script that acks everything with the given
// baseline status.
func NewScript(status wire.DacStatus) *Script {
	return &Script{
		responses: make(map[byte][]wire.DacResponse),
		status:    status,
		counts:    make(map[byte]int),
	}
}

// Count returns how many times a command opcode has been served.
func (s *Script) Count(command byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[command]
}

// QueueResponse appends one canned response for a given command opcode;
// responses for a command are consumed in FIFO order, and the last
// queued response repeats once the queue for that command is empty.
func (s *Script) QueueResponse(command byte, resp wire.DacResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = append(s.responses[command], resp)
}

// SetStatus updates the status embedded in future default Acks.
func (s *Script) SetStatus(status wire.DacStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// hello returns the unsolicited frame sent right after accept, built
// from the baseline status rather than any queued command response —
// it shares no queue with Ping so scripting retries for one doesn't
// disturb the other.
func (s *Script) hello() wire.DacResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return wire.DacResponse{Ack: wire.AckOK, CommandEcho: wire.CmdPing, Status: s.status}
}

func (s *Script) next(command byte) wire.DacResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[command]++
	queue := s.responses[command]
	if len(queue) == 0 {
		return wire.DacResponse{Ack: wire.AckOK, CommandEcho: command, Status: s.status}
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.responses[command] = queue[1:]
	}
	return resp
}

// Server is a minimal TCP responder speaking the EtherDream protocol:
// it sends an unsolicited hello on connect, then replies to each
// command frame according to its Script.
type Server struct {
	ln     net.Listener
	script *Script
	done   chan struct{}
}

// Listen starts a Server on an ephemeral local TCP port.
func Listen(script *Script) (*Server, error) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, script: script, done: make(chan struct{})}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the address clients should dial.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting connections.
func (s *Server) Close() error {
	err := s.ln.Close()
	<-s.done
	return err
}

func (s *Server) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	hello := s.script.hello()
	conn.Write(wire.SerializeDacResponse(hello))

	header := make([]byte, 3)
	for {
		if _, err := readFull(conn, header[:1]); err != nil {
			return
		}
		command := header[0]

		var resp wire.DacResponse
		switch command {
		case wire.CmdPing, wire.CmdPrepare:
			resp = s.script.next(command)
		case wire.CmdBegin:
			if _, err := readFull(conn, make([]byte, 6)); err != nil {
				return
			}
			resp = s.script.next(command)
		case wire.CmdData:
			if _, err := readFull(conn, header[1:3]); err != nil {
				return
			}
			n := binary.LittleEndian.Uint16(header[1:3])
			if _, err := readFull(conn, make([]byte, int(n)*18)); err != nil {
				return
			}
			resp = s.script.next(command)
		default:
			return
		}
		if _, err := conn.Write(wire.SerializeDacResponse(resp)); err != nil {
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
