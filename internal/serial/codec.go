// Package serial decodes CAN frames captured from a UART CAN adapter.
//
// Frame layout on the wire:
//
//	2D D4        preamble
//	0D           len = id(4) + payload(0..8) + checksum(1)
//	00 00 00 02  CAN id, big endian
//	...          payload
//	AA           checksum = 0x2D + len + sum(id and payload bytes)
package serial

import (
	"bytes"
	"encoding/binary"

	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

const (
	pre0 = 0x2D
	pre1 = 0xD4

	// Bounds for the wire length field: id(4) + payload(0..8) + checksum(1).
	minWireLen = 5
	maxWireLen = 13
)

var preamble = []byte{pre0, pre1}

// Decoder reassembles adapter frames from an arbitrarily chunked byte
// stream. Garbage between frames is skipped byte by byte until the preamble
// realigns; framing violations count as malformed and resync the same way.
//
// The zero value is ready to use. Not safe for concurrent use.
type Decoder struct {
	buf bytes.Buffer
}

// Buffered returns the bytes held back waiting for a complete frame.
func (d *Decoder) Buffered() int { return d.buf.Len() }

// Feed appends p to the stream and emits every complete frame found. The
// adapter reports extended ids, so emitted frames carry the extended flag.
func (d *Decoder) Feed(p []byte, emit func(can.Frame)) {
	d.buf.Write(p)
	for {
		compact(&d.buf)
		data := d.buf.Bytes()
		if len(data) < 3 { // preamble + len
			return
		}

		i := bytes.Index(data, preamble)
		if i < 0 {
			// Keep the last byte: it may open a preamble split across reads.
			if d.buf.Len() > 1 {
				last := data[len(data)-1]
				d.buf.Reset()
				d.buf.WriteByte(last)
			}
			return
		}
		if i > 0 {
			d.buf.Next(i)
			continue
		}

		if len(data) < 4 {
			return
		}
		ln := int(data[2])
		if ln < minWireLen || ln > maxWireLen {
			metrics.IncMalformed()
			d.buf.Next(1)
			continue
		}
		req := 3 + ln // preamble(2) + len(1) + ln
		if len(data) < req {
			return
		}

		sum := byte(pre0) + byte(ln)
		for _, b := range data[3 : req-1] {
			sum += b
		}
		if sum != data[req-1] {
			metrics.IncMalformed()
			d.buf.Next(1)
			continue
		}

		var f can.Frame
		f.CANID = binary.BigEndian.Uint32(data[3:7]) | can.CAN_EFF_FLAG
		f.Len = uint8(ln - minWireLen)
		copy(f.Data[:], data[7:req-1])
		emit(f)
		metrics.IncSerialRx()
		d.buf.Next(req)
	}
}

// compact reclaims consumed prefix capacity once the unread tail is a small
// fraction of a grown buffer.
func compact(b *bytes.Buffer) {
	data := b.Bytes()
	if len(data) < 1024 {
		return
	}
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		b.Write(clone)
	}
}
