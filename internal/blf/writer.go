package blf

import (
	"fmt"
	"io"
	"time"

	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

// Options configure a Writer. The zero value selects the defaults.
type Options struct {
	ApplicationID string    // header application id, truncated to 32 bytes
	AppVersion    [4]byte   // zero selects 1.0.0.0
	StartTime     time.Time // zero selects the current time
}

// Writer streams records into a container file. The header is written as a
// placeholder at construction and rewritten with the true counts by Finalize,
// so the sink must support seeking back to its start. Records hit the sink as
// they are appended; nothing is buffered.
//
// Not safe for concurrent use.
type Writer struct {
	ws        io.WriteSeeker
	appID     string
	appVer    [4]byte
	start     time.Time
	records   uint32
	bytes     uint64
	finalized bool
}

// NewWriter probes ws for seekability and writes the placeholder header.
func NewWriter(ws io.WriteSeeker, opts Options) (*Writer, error) {
	if _, err := ws.Seek(0, io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrUnseekable, err)
	}
	w := &Writer{
		ws:     ws,
		appID:  opts.ApplicationID,
		appVer: opts.AppVersion,
		start:  opts.StartTime,
	}
	if w.appID == "" {
		w.appID = DefaultApplicationID
	}
	if w.appVer == ([4]byte{}) {
		w.appVer = [4]byte{1, 0, 0, 0}
	}
	if w.start.IsZero() {
		w.start = timeNow()
	}
	if _, err := w.ws.Write(w.header(0, 0, w.start)); err != nil {
		return nil, fmt.Errorf("blf: write header: %w", err)
	}
	return w, nil
}

// Append serializes one record and writes it immediately. With a zero
// rec.Type the record type follows the frame length: up to 8 data bytes
// classic, beyond that FD.
func (w *Writer) Append(rec Record) error {
	if w.finalized {
		return ErrFinalized
	}
	ln := int(rec.Frame.Len)
	typ := rec.Type
	if typ == 0 {
		typ = ObjCANMessage2
		if ln > classicMaxData {
			typ = ObjCANFDMessage64
		}
	}
	var bodySize int
	switch typ {
	case ObjCANMessage2:
		if ln > classicMaxData {
			return fmt.Errorf("blf: classic frame with %d bytes: %w", ln, ErrPayloadSize)
		}
		bodySize = classicBodySize
	case ObjCANFDMessage64:
		if ln > fdMaxData {
			return fmt.Errorf("blf: fd frame with %d bytes: %w", ln, ErrPayloadSize)
		}
		bodySize = fdBodySize
	default:
		return fmt.Errorf("blf: type %d: %w", typ, ErrRecordType)
	}

	total := prologueSize + bodySize + paddedLen(ln)
	buf := make([]byte, total)

	// Record prologue. The size field states the full on-disk size,
	// padding included.
	le.PutUint32(buf[0:], uint32(total))
	le.PutUint32(buf[4:], 0) // record-header size, 0 means default
	le.PutUint16(buf[8:], typ)
	le.PutUint16(buf[10:], rec.Flags)
	le.PutUint16(buf[12:], 0) // reserved
	le.PutUint16(buf[14:], 1) // record format version
	le.PutUint64(buf[16:], rec.Timestamp)

	// Frame body, shared prefix for both record types.
	le.PutUint16(buf[24:], rec.Channel)
	buf[26] = uint8(ln) // dlc
	buf[27] = 0         // valid byte count
	le.PutUint32(buf[28:], rec.Frame.CANID)
	le.PutUint32(buf[32:], 0) // frame length in ns
	le.PutUint32(buf[36:], 0) // bit count
	if typ == ObjCANFDMessage64 {
		le.PutUint32(buf[40:], rec.FDFlags)
		le.PutUint32(buf[44:], 0) // valid data bytes
		// 40 reserved bytes through the end of the body
	}

	copy(buf[prologueSize+bodySize:], rec.Frame.Data[:ln])

	if _, err := w.ws.Write(buf); err != nil {
		return fmt.Errorf("blf: write record: %w", err)
	}
	w.records++
	w.bytes += uint64(total)
	metrics.AddRecord(total)
	return nil
}

// AppendFrame appends f on the given channel with the default record type
// for its length.
func (w *Writer) AppendFrame(channel uint16, f can.Frame, timestampNs uint64) error {
	return w.Append(Record{Channel: channel, Timestamp: timestampNs, Frame: f})
}

// Finalize seeks back to the file start and rewrites the header with the
// record count, the total record bytes and the measurement end time.
// Single-shot; a second call fails.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true
	if _, err := w.ws.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blf: seek to header: %w", err)
	}
	if _, err := w.ws.Write(w.header(w.records, w.bytes, timeNow())); err != nil {
		return fmt.Errorf("blf: rewrite header: %w", err)
	}
	return nil
}

// Records returns the number of records appended so far.
func (w *Writer) Records() uint32 { return w.records }

// Bytes returns the record bytes written so far, header excluded.
func (w *Writer) Bytes() uint64 { return w.bytes }

func (w *Writer) header(count uint32, size uint64, end time.Time) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	le.PutUint32(buf[4:], HeaderSize)
	le.PutUint32(buf[8:], FormatVersion)
	le.PutUint32(buf[12:], count)
	le.PutUint64(buf[16:], size)
	copy(buf[24:56], w.appID)
	copy(buf[56:60], w.appVer[:])
	putSystemTime(buf[60:76], w.start)
	putSystemTime(buf[76:92], end)
	// zero padding through byte 144
	return buf
}
