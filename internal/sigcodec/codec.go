// Package sigcodec converts between physical engineering values and CAN
// payload bytes through the bit-field layouts of a signal database.
package sigcodec

import (
	"errors"
	"fmt"
	"math"

	"github.com/edaq-tools/sif2blf/internal/dbc"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

// Codec packs and unpacks signal values. Stateless and safe for concurrent use.
type Codec struct{}

// ErrShortPayload is returned when a payload does not cover the message dlc.
var ErrShortPayload = errors.New("sigcodec: payload shorter than message dlc")

// ErrUnknownMessage is returned when an arbitration id has no database entry.
var ErrUnknownMessage = errors.New("sigcodec: unknown message id")

// PhysicalToRaw converts an engineering value to the raw integer of the
// signal's bit field: round((physical-offset)/scale), saturated into the
// signed or unsigned range of the signal's width. The flag reports that the
// value saturated; saturation is not an error. A zero scale or an invalid
// width is a configuration error.
func (c *Codec) PhysicalToRaw(s *dbc.Signal, physical float64) (int64, bool, error) {
	if s.Length == 0 || s.Length > 64 {
		return 0, false, fmt.Errorf("signal %s: length %d: %w", s.Name, s.Length, dbc.ErrSignalLength)
	}
	if s.Scale == 0 {
		return 0, false, fmt.Errorf("signal %s: %w", s.Name, dbc.ErrZeroScale)
	}
	v := math.Round((physical - s.Offset) / s.Scale)
	lo, hi := rawLimits(s)
	switch {
	case math.IsNaN(v):
		// No ordering to clamp against; degrade to zero and flag it.
		return 0, true, nil
	case v < float64(lo):
		return lo, true, nil
	case v >= 0x1p63:
		// Beyond any representable raw; also shields the int64 conversion.
		return hi, true, nil
	case v > float64(hi):
		return hi, true, nil
	}
	raw := int64(v)
	// float64(hi) rounds upward for widths past the mantissa, so an exact
	// compare has to happen in the integer domain.
	if raw > hi {
		return hi, true, nil
	}
	return raw, false, nil
}

// RawToPhysical applies sign extension and scaling to a raw bit-field value.
// A raw given as the unsigned bit pattern of a signed signal is folded into
// its two's-complement value first.
func (c *Codec) RawToPhysical(s *dbc.Signal, raw int64) float64 {
	if s.Signed && s.Length < 64 && raw >= 1<<(s.Length-1) {
		raw -= 1 << s.Length
	}
	return float64(raw)*s.Scale + s.Offset
}

// rawLimits returns the clamp range of a signal's width. Unsigned 64-bit
// signals saturate at the signed ceiling, which float64 inputs cannot reach
// exactly anyway.
func rawLimits(s *dbc.Signal) (lo, hi int64) {
	if s.Signed {
		return -1 << (s.Length - 1), 1<<(s.Length-1) - 1
	}
	if s.Length == 64 {
		return 0, math.MaxInt64
	}
	return 0, 1<<s.Length - 1
}

// EncodeResult reports what a message encode produced besides the payload.
type EncodeResult struct {
	Applied int      // signals written
	Clamped []string // signals whose value saturated, in declaration order
}

// EncodeMessage packs the named physical values into a fresh payload of
// msg.DLC bytes. Signals absent from values keep their bits zero; names not
// defined on the message are ignored. Signals apply in declaration order, so
// with overlapping layouts the later signal wins deterministically.
func (c *Codec) EncodeMessage(msg *dbc.Message, values map[string]float64) ([]byte, EncodeResult, error) {
	var res EncodeResult
	if msg.DLC > 64 {
		return nil, res, fmt.Errorf("message %s (id 0x%X): dlc %d: %w", msg.Name, msg.CANID, msg.DLC, dbc.ErrDLCRange)
	}
	payload := make([]byte, msg.DLC)
	for _, sig := range msg.Signals() {
		physical, ok := values[sig.Name]
		if !ok {
			continue
		}
		if err := sig.Validate(msg.DLC); err != nil {
			return nil, res, fmt.Errorf("encode %s: %w", msg.Name, err)
		}
		raw, clamped, err := c.PhysicalToRaw(sig, physical)
		if err != nil {
			return nil, res, fmt.Errorf("encode %s: %w", msg.Name, err)
		}
		if clamped {
			metrics.IncClamped()
			res.Clamped = append(res.Clamped, sig.Name)
		}
		pattern := uint64(raw)
		if sig.Length < 64 {
			pattern &= 1<<sig.Length - 1
		}
		if sig.Order == dbc.Intel {
			packLittle(payload, sig.StartBit, sig.Length, pattern)
		} else {
			packBig(payload, sig.StartBit, sig.Length, pattern)
		}
		res.Applied++
	}
	return payload, res, nil
}

// DecodedValue is one signal extracted from a payload.
type DecodedValue struct {
	Signal   *dbc.Signal
	Pattern  uint64 // unsigned bit pattern as unpacked
	Physical float64
}

// Raw returns the pattern as the signal's raw value, sign extended when the
// signal is signed.
func (v DecodedValue) Raw() int64 {
	if v.Signal.Signed {
		return signExtend(v.Pattern, v.Signal.Length)
	}
	return int64(v.Pattern)
}

// DecodeMessageValues extracts every signal of the message from payload, in
// declaration order, keeping the raw bit patterns alongside the physical
// values.
func (c *Codec) DecodeMessageValues(msg *dbc.Message, payload []byte) ([]DecodedValue, error) {
	if msg.DLC > 64 {
		return nil, fmt.Errorf("message %s (id 0x%X): dlc %d: %w", msg.Name, msg.CANID, msg.DLC, dbc.ErrDLCRange)
	}
	if len(payload) < int(msg.DLC) {
		return nil, fmt.Errorf("message %s: %d payload bytes, dlc %d: %w", msg.Name, len(payload), msg.DLC, ErrShortPayload)
	}
	out := make([]DecodedValue, 0, len(msg.Signals()))
	for _, sig := range msg.Signals() {
		if err := sig.Validate(msg.DLC); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Name, err)
		}
		var pattern uint64
		if sig.Order == dbc.Intel {
			pattern = unpackLittle(payload, sig.StartBit, sig.Length)
		} else {
			pattern = unpackBig(payload, sig.StartBit, sig.Length)
		}
		out = append(out, DecodedValue{
			Signal:   sig,
			Pattern:  pattern,
			Physical: physicalFromPattern(sig, pattern),
		})
	}
	return out, nil
}

// DecodeMessage extracts every signal of the message as a name to physical
// value mapping.
func (c *Codec) DecodeMessage(msg *dbc.Message, payload []byte) (map[string]float64, error) {
	vals, err := c.DecodeMessageValues(msg, payload)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(vals))
	for _, v := range vals {
		out[v.Signal.Name] = v.Physical
	}
	return out, nil
}

// Encode looks up canID in db and encodes values into a payload of dlc bytes.
func (c *Codec) Encode(db *dbc.Database, canID uint32, values map[string]float64) ([]byte, EncodeResult, error) {
	msg, ok := db.Message(canID)
	if !ok {
		return nil, EncodeResult{}, fmt.Errorf("id 0x%X: %w", canID, ErrUnknownMessage)
	}
	return c.EncodeMessage(msg, values)
}

// Decode looks up canID in db and decodes payload into physical values.
func (c *Codec) Decode(db *dbc.Database, canID uint32, payload []byte) (map[string]float64, error) {
	msg, ok := db.Message(canID)
	if !ok {
		return nil, fmt.Errorf("id 0x%X: %w", canID, ErrUnknownMessage)
	}
	return c.DecodeMessage(msg, payload)
}

func physicalFromPattern(s *dbc.Signal, pattern uint64) float64 {
	if s.Signed {
		return float64(signExtend(pattern, s.Length))*s.Scale + s.Offset
	}
	return float64(pattern)*s.Scale + s.Offset
}
