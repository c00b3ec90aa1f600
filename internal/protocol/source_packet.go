package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Source RCON packet types.
const (
	packetTypeResponseValue int32 = 0
	packetTypeExecCommand   int32 = 2
	packetTypeAuthResponse  int32 = 2
	packetTypeAuth          int32 = 3
)

const (
	// size field covers id(4) + type(4) + body + two NUL terminators.
	packetOverhead = 10
	// Valve caps a single packet at 4096 body bytes.
	maxPacketBody = 4096
)

// sourcePacket is one decoded Source RCON frame.
type sourcePacket struct {
	ID   int32
	Type int32
	Body string
}

// encodePacket serializes a packet:
// [size int32 LE][id int32 LE][type int32 LE][body][0x00][0x00].
// size excludes the size field itself.
func encodePacket(p sourcePacket) []byte {
	size := packetOverhead + len(p.Body)
	buf := make([]byte, 4+size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(p.ID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(p.Type))
	copy(buf[12:], p.Body)
	// trailing NULs are already zero
	return buf
}

// readPacket reads exactly one packet from r, reassembling across short
// reads via io.ReadFull. The size prefix is validated before the payload
// is read so a corrupt stream cannot make us allocate unbounded memory.
func readPacket(r io.Reader) (sourcePacket, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return sourcePacket{}, fmt.Errorf("reading packet size: %w", err)
	}

	size := int(int32(binary.LittleEndian.Uint32(sizeBuf[:])))
	if size < packetOverhead || size > packetOverhead+maxPacketBody {
		return sourcePacket{}, Errf(KindInvalidResponse, "packet size %d out of range", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return sourcePacket{}, fmt.Errorf("reading packet payload: %w", err)
	}

	p := sourcePacket{
		ID:   int32(binary.LittleEndian.Uint32(payload[0:4])),
		Type: int32(binary.LittleEndian.Uint32(payload[4:8])),
	}
	body := payload[8:]
	if len(body) < 2 || body[len(body)-2] != 0 || body[len(body)-1] != 0 {
		return sourcePacket{}, Errf(KindInvalidResponse, "packet missing NUL terminators")
	}
	p.Body = string(body[:len(body)-2])
	return p, nil
}
