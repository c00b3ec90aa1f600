package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestEncodePacket_Layout(t *testing.T) {
	buf := encodePacket(sourcePacket{ID: 7, Type: packetTypeExecCommand, Body: "status"})

	wantSize := 4 + 4 + len("status") + 2
	if got := int(binary.LittleEndian.Uint32(buf[0:4])); got != wantSize {
		t.Errorf("size field = %d, want %d", got, wantSize)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[4:8])); got != 7 {
		t.Errorf("id field = %d, want 7", got)
	}
	if got := int32(binary.LittleEndian.Uint32(buf[8:12])); got != packetTypeExecCommand {
		t.Errorf("type field = %d, want %d", got, packetTypeExecCommand)
	}
	if !bytes.Equal(buf[12:], []byte("status\x00\x00")) {
		t.Errorf("body bytes = %q, want %q", buf[12:], "status\x00\x00")
	}
}

func TestPacket_RoundTrip(t *testing.T) {
	cases := []sourcePacket{
		{ID: 1, Type: packetTypeAuth, Body: "pw"},
		{ID: 2147483646, Type: packetTypeResponseValue, Body: ""},
		{ID: 42, Type: packetTypeExecCommand, Body: "say hello world"},
	}
	for _, want := range cases {
		got, err := readPacket(bytes.NewReader(encodePacket(want)))
		if err != nil {
			t.Fatalf("readPacket(%+v): %v", want, err)
		}
		if got != want {
			t.Errorf("round trip = %+v, want %+v", got, want)
		}
	}
}

func TestReadPacket_RejectsBadSize(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(3))
	buf.WriteString("xxx")

	if _, err := readPacket(&buf); !IsKind(err, KindInvalidResponse) {
		t.Errorf("err = %v, want INVALID_RESPONSE", err)
	}

	buf.Reset()
	binary.Write(&buf, binary.LittleEndian, int32(packetOverhead+maxPacketBody+1))
	if _, err := readPacket(&buf); !IsKind(err, KindInvalidResponse) {
		t.Errorf("oversized packet err = %v, want INVALID_RESPONSE", err)
	}
}

func TestReadPacket_RejectsMissingTerminators(t *testing.T) {
	frame := encodePacket(sourcePacket{ID: 1, Type: 0, Body: "ok"})
	frame[len(frame)-1] = 'x'

	if _, err := readPacket(bytes.NewReader(frame)); !IsKind(err, KindInvalidResponse) {
		t.Errorf("err = %v, want INVALID_RESPONSE", err)
	}
}

func TestReadPacket_ReassemblesShortReads(t *testing.T) {
	frame := encodePacket(sourcePacket{ID: 9, Type: packetTypeResponseValue, Body: "partial"})

	got, err := readPacket(&chunkReader{data: frame, chunk: 3})
	if err != nil {
		t.Fatalf("readPacket over chunked reader: %v", err)
	}
	if got.Body != "partial" || got.ID != 9 {
		t.Errorf("got %+v", got)
	}
}

// chunkReader serves at most chunk bytes per Read to simulate TCP
// fragmentation.
type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := min(r.chunk, len(r.data), len(p))
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}
