package serial

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/edaq-tools/sif2blf/internal/can"
)

// buildFrame wraps id+payload in the adapter envelope. Capture is read only,
// so the envelope is built here for the decoder tests.
func buildFrame(id uint32, payload []byte) []byte {
	body := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(body, id&can.CAN_EFF_MASK)
	copy(body[4:], payload)

	frame := make([]byte, 0, len(body)+4)
	frame = append(frame, pre0, pre1, byte(len(body)+1))
	frame = append(frame, body...)
	sum := byte(pre0) + byte(len(body)+1)
	for _, b := range body {
		sum += b
	}
	return append(frame, sum)
}

func rxFrame(id uint32, data ...byte) can.Frame {
	var fr can.Frame
	fr.CANID = (id & can.CAN_EFF_MASK) | can.CAN_EFF_FLAG
	fr.Len = uint8(len(data))
	copy(fr.Data[:], data)
	return fr
}

func TestDecoder_RoundTripChunked(t *testing.T) {
	want := []can.Frame{
		rxFrame(0x0001E5A, 0x34, 0x7B, 0x70, 0xD7, 0x94, 0x10, 0x0D, 0xF7),
		rxFrame(0x0001F55, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6),
		rxFrame(0x0123456, 0x9A, 0xBC),
		rxFrame(0x01ABCDE),
	}

	stream := make([]byte, 0, 128)
	for _, fr := range want {
		stream = append(stream, buildFrame(fr.CANID, fr.Data[:fr.Len])...)
	}

	// Feed in irregular small chunks to stress alignment and partial frames.
	var dec Decoder
	var got []can.Frame
	chunkSizes := []int{1, 2, 3, 4, 5, 7, 11}
	cs := 0
	for pos := 0; pos < len(stream); {
		n := chunkSizes[cs%len(chunkSizes)]
		cs++
		if pos+n > len(stream) {
			n = len(stream) - pos
		}
		dec.Feed(stream[pos:pos+n], func(fr can.Frame) {
			got = append(got, fr)
		})
		pos += n
	}

	if len(got) != len(want) {
		t.Fatalf("decoded %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].CANID != want[i].CANID || got[i].Len != want[i].Len ||
			!bytes.Equal(got[i].Payload(), want[i].Payload()) {
			t.Fatalf("frame %d\n got  id=0x%X len=%d data=% X\n want id=0x%X len=%d data=% X",
				i,
				got[i].CANID, got[i].Len, got[i].Payload(),
				want[i].CANID, want[i].Len, want[i].Payload())
		}
	}
	if dec.Buffered() != 0 {
		t.Fatalf("%d bytes left buffered", dec.Buffered())
	}
}

func TestDecoder_ResyncsAcrossGarbage(t *testing.T) {
	frame := buildFrame(0x42, []byte{0xDE, 0xAD})
	stream := append([]byte{0x00, 0xFF, pre0, 0x13}, frame...) // noise, then a lone preamble byte
	stream = append(stream, 0x99)
	stream = append(stream, buildFrame(0x43, []byte{0x01})...)

	var dec Decoder
	var got []can.Frame
	dec.Feed(stream, func(fr can.Frame) { got = append(got, fr) })

	if len(got) != 2 {
		t.Fatalf("decoded %d frames, want 2: %+v", len(got), got)
	}
	if got[0].ID() != 0x42 || got[1].ID() != 0x43 {
		t.Fatalf("ids = 0x%X, 0x%X", got[0].ID(), got[1].ID())
	}
}

func TestDecoder_ExtendedFlagSet(t *testing.T) {
	var dec Decoder
	var got can.Frame
	dec.Feed(buildFrame(0x1ABCDE, []byte{0x01}), func(fr can.Frame) { got = fr })
	if !got.IsExtended() || got.ID() != 0x1ABCDE {
		t.Fatalf("frame = %+v", got)
	}
}

func TestDecoder_KeepsTrailingPreambleByte(t *testing.T) {
	frame := buildFrame(0x10, []byte{0xAB})
	var dec Decoder
	var got []can.Frame
	emit := func(fr can.Frame) { got = append(got, fr) }

	// Garbage ending in the first preamble byte: the tail byte must survive
	// the reset so the next read can complete the preamble.
	dec.Feed([]byte{0x01, 0x02, 0x03, pre0}, emit)
	if dec.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1", dec.Buffered())
	}
	dec.Feed(frame[1:], emit)
	if len(got) != 1 || got[0].ID() != 0x10 {
		t.Fatalf("frames = %+v", got)
	}
}
