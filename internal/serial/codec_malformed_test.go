package serial

import (
	"testing"

	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

func TestDecoder_ChecksumMismatchCounted(t *testing.T) {
	frame := buildFrame(0x01, []byte{0xAA})
	frame[len(frame)-1] ^= 0xFF

	before := metrics.Snap().Malformed
	var dec Decoder
	var emitted int
	dec.Feed(frame, func(can.Frame) { emitted++ })

	if emitted != 0 {
		t.Fatalf("corrupt frame emitted %d frames", emitted)
	}
	if after := metrics.Snap().Malformed; after <= before {
		t.Fatalf("malformed counter did not move: before=%d after=%d", before, after)
	}
}

func TestDecoder_BadLengthResyncs(t *testing.T) {
	// A preamble announcing a 10-byte payload is outside the classic range;
	// the decoder must count it and slide to the real frame behind it.
	bad := []byte{pre0, pre1, maxWireLen + 2}
	good := buildFrame(0x55, []byte{0x01, 0x02})

	before := metrics.Snap().Malformed
	var dec Decoder
	var got []can.Frame
	dec.Feed(append(bad, good...), func(fr can.Frame) { got = append(got, fr) })

	if len(got) != 1 || got[0].ID() != 0x55 {
		t.Fatalf("frames = %+v", got)
	}
	if after := metrics.Snap().Malformed; after <= before {
		t.Fatalf("malformed counter did not move: before=%d after=%d", before, after)
	}
}
