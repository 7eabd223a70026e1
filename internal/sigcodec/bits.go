package sigcodec

// Bit-level packing primitives. Callers validate the span against the payload
// before calling; these assume it fits.

// lowMask returns a byte with the low n bits set, n in 0..8.
func lowMask(n int) byte { return byte(uint16(1)<<n - 1) }

// packLittle writes the low `length` bits of pattern into payload, Intel
// order: bit 0 of the value lands on absolute bit start, least significant
// bit of each byte first, ascending bytes.
func packLittle(payload []byte, start uint16, length uint8, pattern uint64) {
	idx := int(start) / 8
	bit := int(start) % 8
	remaining := int(length)
	for remaining > 0 {
		take := 8 - bit
		if take > remaining {
			take = remaining
		}
		mask := lowMask(take) << bit
		payload[idx] = payload[idx]&^mask | byte(pattern)<<bit&mask
		pattern >>= uint(take)
		remaining -= take
		idx++
		bit = 0
	}
}

// unpackLittle is the exact inverse of packLittle.
func unpackLittle(payload []byte, start uint16, length uint8) uint64 {
	idx := int(start) / 8
	bit := int(start) % 8
	remaining := int(length)
	var out uint64
	var got uint
	for remaining > 0 {
		take := 8 - bit
		if take > remaining {
			take = remaining
		}
		chunk := uint64(payload[idx] >> bit & lowMask(take))
		out |= chunk << got
		got += uint(take)
		remaining -= take
		idx++
		bit = 0
	}
	return out
}

// packBig writes the low `length` bits of pattern into payload, Motorola
// order: start names the position of the value's most significant bit with
// bit 7 of each byte most significant, bits descending within a byte and
// continuing at bit 7 of the next byte.
func packBig(payload []byte, start uint16, length uint8, pattern uint64) {
	idx := int(start) / 8
	bit := int(start) % 8
	remaining := int(length)
	for remaining > 0 {
		take := bit + 1
		if take > remaining {
			take = remaining
		}
		shift := bit - take + 1
		mask := lowMask(take) << shift
		chunk := byte(pattern>>uint(remaining-take)) & lowMask(take)
		payload[idx] = payload[idx]&^mask | chunk<<shift
		remaining -= take
		idx++
		bit = 7
	}
}

// unpackBig is the exact inverse of packBig.
func unpackBig(payload []byte, start uint16, length uint8) uint64 {
	idx := int(start) / 8
	bit := int(start) % 8
	remaining := int(length)
	var out uint64
	for remaining > 0 {
		take := bit + 1
		if take > remaining {
			take = remaining
		}
		shift := bit - take + 1
		chunk := uint64(payload[idx] >> shift & lowMask(take))
		out = out<<uint(take) | chunk
		remaining -= take
		idx++
		bit = 7
	}
	return out
}

// signExtend interprets pattern as a two's-complement value of the given bit
// width.
func signExtend(pattern uint64, length uint8) int64 {
	if length < 64 && pattern&(1<<(length-1)) != 0 {
		pattern |= ^uint64(0) << length
	}
	return int64(pattern)
}
