package wire

import (
	"encoding/binary"
	"fmt"
)

// pointSize is the length in bytes of one encoded Point.
const pointSize = 18

// statusSize is the length in bytes of one encoded DacStatus.
const statusSize = 20

// responseSize is the length in bytes of one DacResponse frame.
const responseSize = 22

// broadcastSize is the length in bytes of one Broadcast datagram.
const broadcastSize = 36

// EncodePing returns the one-byte Ping command frame.
func EncodePing() []byte {
	return []byte{CmdPing}
}

// EncodePrepare returns the one-byte Prepare command frame.
func EncodePrepare() []byte {
	return []byte{CmdPrepare}
}

// EncodeBegin returns the 7-byte Begin command frame: opcode, low-water
// mark, point rate.
func EncodeBegin(lowWaterMark uint16, pointRate uint32) []byte {
	b := make([]byte, 7)
	b[0] = CmdBegin
	binary.LittleEndian.PutUint16(b[1:3], lowWaterMark)
	binary.LittleEndian.PutUint32(b[3:7], pointRate)
	return b
}

// EncodeData returns the Data command frame: opcode, point count, then
// each point serialized in order. Returns an error if there are more
// than 65535 points, since the count field is a u16.
func EncodeData(points []Point) ([]byte, error) {
	if len(points) > 65535 {
		return nil, fmt.Errorf("etherdream wire: %d points exceeds u16 count field", len(points))
	}
	b := make([]byte, 3+pointSize*len(points))
	b[0] = CmdData
	binary.LittleEndian.PutUint16(b[1:3], uint16(len(points)))
	off := 3
	for _, p := range points {
		encodePoint(p, b[off:off+pointSize])
		off += pointSize
	}
	return b, nil
}

// EncodePoint serializes a single Point into its canonical 18-byte wire
// form: control, x, y, r, g, b, i, u1, u2.
func EncodePoint(p Point) []byte {
	b := make([]byte, pointSize)
	encodePoint(p, b)
	return b
}

func encodePoint(p Point, b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], p.Control)
	binary.LittleEndian.PutUint16(b[2:4], uint16(p.X))
	binary.LittleEndian.PutUint16(b[4:6], uint16(p.Y))
	binary.LittleEndian.PutUint16(b[6:8], p.R)
	binary.LittleEndian.PutUint16(b[8:10], p.G)
	binary.LittleEndian.PutUint16(b[10:12], p.B)
	binary.LittleEndian.PutUint16(b[12:14], p.I)
	binary.LittleEndian.PutUint16(b[14:16], p.U1)
	binary.LittleEndian.PutUint16(b[16:18], p.U2)
}

// ParseDacStatus decodes the 20-byte status block starting at b[0]. b
// may be longer than 20 bytes; only the first 20 are consumed.
func ParseDacStatus(b []byte) (DacStatus, error) {
	if len(b) < statusSize {
		return DacStatus{}, badLength(statusSize, len(b))
	}
	return DacStatus{
		Protocol:         b[0],
		LightEngineState: b[1],
		PlaybackState:    b[2],
		Source:           b[3],
		LightEngineFlags: binary.LittleEndian.Uint16(b[4:6]),
		PlaybackFlags:    binary.LittleEndian.Uint16(b[6:8]),
		SourceFlags:      binary.LittleEndian.Uint16(b[8:10]),
		BufferFullness:   binary.LittleEndian.Uint16(b[10:12]),
		PointRate:        binary.LittleEndian.Uint32(b[12:16]),
		PointCount:       binary.LittleEndian.Uint32(b[16:20]),
	}, nil
}

// ParseDacResponse decodes the 22-byte frame that follows every command.
func ParseDacResponse(b []byte) (DacResponse, error) {
	if len(b) != responseSize {
		return DacResponse{}, badLength(responseSize, len(b))
	}
	status, err := ParseDacStatus(b[2:22])
	if err != nil {
		return DacResponse{}, err
	}
	return DacResponse{
		Ack:         b[0],
		CommandEcho: b[1],
		Status:      status,
	}, nil
}

// ParseMAC decodes a 6-byte hardware address from the start of b.
func ParseMAC(b []byte) ([6]byte, error) {
	var mac [6]byte
	if len(b) < 6 {
		return mac, badLength(6, len(b))
	}
	copy(mac[:], b[:6])
	return mac, nil
}

// ParseBroadcast decodes the 36-byte discovery datagram: MAC, a 10-byte
// revision/capacity/rate section, then an embedded DacStatus.
func ParseBroadcast(b []byte) (Broadcast, error) {
	if len(b) < broadcastSize {
		return Broadcast{}, badLength(broadcastSize, len(b))
	}
	mac, err := ParseMAC(b[0:6])
	if err != nil {
		return Broadcast{}, err
	}
	status, err := ParseDacStatus(b[16:36])
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{
		MAC:            mac,
		HWRevision:     binary.LittleEndian.Uint16(b[6:8]),
		SWRevision:     binary.LittleEndian.Uint16(b[8:10]),
		BufferCapacity: binary.LittleEndian.Uint16(b[10:12]),
		MaxPointRate:   binary.LittleEndian.Uint32(b[12:16]),
		Status:         status,
	}, nil
}

// SerializeDacStatus is the inverse of ParseDacStatus, used by tests and
// by the broadcast/response encoders that embed a status block.
func SerializeDacStatus(s DacStatus) []byte {
	b := make([]byte, statusSize)
	b[0] = s.Protocol
	b[1] = s.LightEngineState
	b[2] = s.PlaybackState
	b[3] = s.Source
	binary.LittleEndian.PutUint16(b[4:6], s.LightEngineFlags)
	binary.LittleEndian.PutUint16(b[6:8], s.PlaybackFlags)
	binary.LittleEndian.PutUint16(b[8:10], s.SourceFlags)
	binary.LittleEndian.PutUint16(b[10:12], s.BufferFullness)
	binary.LittleEndian.PutUint32(b[12:16], s.PointRate)
	binary.LittleEndian.PutUint32(b[16:20], s.PointCount)
	return b
}

// SerializeDacResponse is the inverse of ParseDacResponse.
func SerializeDacResponse(r DacResponse) []byte {
	b := make([]byte, responseSize)
	b[0] = r.Ack
	b[1] = r.CommandEcho
	copy(b[2:22], SerializeDacStatus(r.Status))
	return b
}

// SerializeBroadcast is the inverse of ParseBroadcast.
func SerializeBroadcast(bc Broadcast) []byte {
	b := make([]byte, broadcastSize)
	copy(b[0:6], bc.MAC[:])
	binary.LittleEndian.PutUint16(b[6:8], bc.HWRevision)
	binary.LittleEndian.PutUint16(b[8:10], bc.SWRevision)
	binary.LittleEndian.PutUint16(b[10:12], bc.BufferCapacity)
	binary.LittleEndian.PutUint32(b[12:16], bc.MaxPointRate)
	copy(b[16:36], SerializeDacStatus(bc.Status))
	return b
}
