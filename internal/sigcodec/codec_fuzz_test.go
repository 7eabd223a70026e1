package sigcodec

import (
	"testing"

	"github.com/edaq-tools/sif2blf/internal/dbc"
)

// FuzzPackUnpackRoundTrip ensures arbitrary layouts reproduce their bit
// pattern exactly for both byte orders.
func FuzzPackUnpackRoundTrip(f *testing.F) {
	f.Add(uint16(0), uint8(8), uint64(100), true)
	f.Add(uint16(7), uint8(8), uint64(0xAB), false)
	f.Add(uint16(4), uint8(12), uint64(0xABC), true)
	f.Add(uint16(3), uint8(12), uint64(0xABC), false)
	f.Add(uint16(0), uint8(64), uint64(0x123456789ABCDEF0), true)
	f.Fuzz(func(t *testing.T, start uint16, length uint8, pattern uint64, little bool) {
		if length == 0 || length > 64 {
			return
		}
		s := &dbc.Signal{Name: "F", StartBit: start, Length: length, Scale: 1}
		if little {
			s.Order = dbc.Intel
		} else {
			s.Order = dbc.Motorola
		}
		// Constrain to an 8-byte payload the way a classic frame would.
		if s.Validate(8) != nil {
			return
		}
		if length < 64 {
			pattern &= 1<<length - 1
		}
		payload := make([]byte, 8)
		if little {
			packLittle(payload, start, length, pattern)
			if got := unpackLittle(payload, start, length); got != pattern {
				t.Fatalf("little start=%d len=%d: %#x != %#x", start, length, got, pattern)
			}
		} else {
			packBig(payload, start, length, pattern)
			if got := unpackBig(payload, start, length); got != pattern {
				t.Fatalf("big start=%d len=%d: %#x != %#x", start, length, got, pattern)
			}
		}
	})
}

// FuzzPhysicalRoundTrip ensures clamped raw values survive the physical
// conversion in both directions.
func FuzzPhysicalRoundTrip(f *testing.F) {
	f.Add(uint8(16), true, 0.25, 0.0, 1000.0)
	f.Add(uint8(8), false, 1.0, -40.0, 20.0)
	f.Add(uint8(32), true, 0.001, 5.0, -123.456)
	f.Fuzz(func(t *testing.T, length uint8, signed bool, scale, offset, physical float64) {
		if length == 0 || length > 40 || scale == 0 {
			return
		}
		// Keep the arithmetic well inside float64's exact window so the
		// round trip cannot lose integer precision.
		if scale != scale || offset != offset || physical != physical {
			return
		}
		if abs(scale) < 1e-3 || abs(scale) > 1e3 || abs(offset) > 1e6 || abs(physical) > 1e12 {
			return
		}
		codec := &Codec{}
		s := &dbc.Signal{Name: "F", Length: length, Order: dbc.Intel, Signed: signed, Scale: scale, Offset: offset}
		raw, _, err := codec.PhysicalToRaw(s, physical)
		if err != nil {
			t.Fatalf("PhysicalToRaw: %v", err)
		}
		back, clamped, err := codec.PhysicalToRaw(s, codec.RawToPhysical(s, raw))
		if err != nil {
			t.Fatalf("second PhysicalToRaw: %v", err)
		}
		if clamped {
			t.Fatalf("len=%d raw=%d: round trip clamped", length, raw)
		}
		if back != raw {
			t.Fatalf("len=%d: raw %d came back as %d", length, raw, back)
		}
	})
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
