// Package blf reads and writes the binary log container: a fixed 144-byte
// file header followed by self-describing, 4-byte-aligned records carrying
// timestamped classic CAN and CAN FD frames.
package blf

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/edaq-tools/sif2blf/internal/can"
)

// Record type tags.
const (
	ObjCANMessage2    uint16 = 86
	ObjCANFDMessage64 uint16 = 89
)

const (
	// Magic opens every container file.
	Magic = "LOGG"
	// HeaderSize is the fixed file header length.
	HeaderSize = 144
	// FormatVersion is the container format written and accepted.
	FormatVersion = 2

	prologueSize    = 24
	classicBodySize = 32
	fdBodySize      = 64
	classicMaxData  = 8
	fdMaxData       = 64
)

// DefaultApplicationID is stamped into the header when none is configured.
const DefaultApplicationID = "SIF2BLF"

var (
	// ErrUnseekable is returned when the output sink cannot seek; the
	// two-pass header write requires it.
	ErrUnseekable = errors.New("blf: output is not seekable")
	// ErrFinalized is returned when a writer is used after Finalize.
	ErrFinalized = errors.New("blf: writer already finalized")
	// ErrPayloadSize is returned when a frame does not fit its record type.
	ErrPayloadSize = errors.New("blf: payload too long for record type")
	// ErrRecordType is returned for a record type this package cannot build.
	ErrRecordType = errors.New("blf: unsupported record type")
	// ErrBadMagic is returned when a file does not open with the signature.
	ErrBadMagic = errors.New("blf: bad magic")
	// ErrBadHeader is returned when the file header fields are inconsistent.
	ErrBadHeader = errors.New("blf: bad header")
)

var le = binary.LittleEndian

// timeNow is a test hook.
var timeNow = time.Now

// Record is one container object: a timestamped frame with its routing and
// flag fields. Channel and flag values are written as given, not validated.
type Record struct {
	Type      uint16 // ObjCANMessage2 or ObjCANFDMessage64; zero picks by frame length
	Channel   uint16
	Flags     uint16
	FDFlags   uint32 // serialized only for FD records
	Timestamp uint64 // nanoseconds
	Frame     can.Frame
}

// Header is the decoded file header.
type Header struct {
	Version     uint32
	RecordCount uint32
	RecordBytes uint64 // total record bytes, file size minus the header
	Application string
	AppVersion  [4]byte
	Start       time.Time
	End         time.Time
}

// putSystemTime encodes t in the header's eight uint16 timestamp layout:
// year, month, weekday, day, hour, minute, second, millisecond.
// Monday is day zero.
func putSystemTime(b []byte, t time.Time) {
	le.PutUint16(b[0:], uint16(t.Year()))
	le.PutUint16(b[2:], uint16(t.Month()))
	le.PutUint16(b[4:], uint16((int(t.Weekday())+6)%7))
	le.PutUint16(b[6:], uint16(t.Day()))
	le.PutUint16(b[8:], uint16(t.Hour()))
	le.PutUint16(b[10:], uint16(t.Minute()))
	le.PutUint16(b[12:], uint16(t.Second()))
	le.PutUint16(b[14:], uint16(t.Nanosecond()/1e6))
}

// getSystemTime decodes the timestamp layout written by putSystemTime.
// The stored weekday is redundant and ignored.
func getSystemTime(b []byte) time.Time {
	year := int(le.Uint16(b[0:]))
	if year == 0 {
		return time.Time{}
	}
	return time.Date(
		year,
		time.Month(le.Uint16(b[2:])),
		int(le.Uint16(b[6:])),
		int(le.Uint16(b[8:])),
		int(le.Uint16(b[10:])),
		int(le.Uint16(b[12:])),
		int(le.Uint16(b[14:]))*1e6,
		time.Local,
	)
}

// paddedLen rounds n up to the container's 4-byte record granularity.
func paddedLen(n int) int { return (n + 3) &^ 3 }
