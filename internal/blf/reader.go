package blf

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Reader iterates the records of a container file sequentially.
type Reader struct {
	r   io.Reader
	hdr Header
}

// NewReader consumes and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("blf: read header: %w", err)
	}
	if string(raw[0:4]) != Magic {
		return nil, fmt.Errorf("%w: % X", ErrBadMagic, raw[0:4])
	}
	if got := le.Uint32(raw[4:]); got != HeaderSize {
		return nil, fmt.Errorf("%w: header size %d", ErrBadHeader, got)
	}
	var appVer [4]byte
	copy(appVer[:], raw[56:60])
	hdr := Header{
		Version:     le.Uint32(raw[8:]),
		RecordCount: le.Uint32(raw[12:]),
		RecordBytes: le.Uint64(raw[16:]),
		Application: strings.TrimRight(string(raw[24:56]), "\x00"),
		AppVersion:  appVer,
		Start:       getSystemTime(raw[60:76]),
		End:         getSystemTime(raw[76:92]),
	}
	return &Reader{r: r, hdr: hdr}, nil
}

// Header returns the decoded file header. A record count of zero can mean an
// unfinalized file; the caller decides whether to trust it or count records.
func (r *Reader) Header() Header { return r.hdr }

// Next returns the next frame record. Record types this package does not
// model are skipped. Returns io.EOF at a clean end of file.
func (r *Reader) Next() (Record, error) {
	for {
		var pro [prologueSize]byte
		if _, err := io.ReadFull(r.r, pro[:4]); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("blf: read record size: %w", err)
		}
		size := int(le.Uint32(pro[0:]))
		if size < prologueSize {
			return Record{}, fmt.Errorf("%w: record size %d", ErrBadHeader, size)
		}
		if _, err := io.ReadFull(r.r, pro[4:]); err != nil {
			return Record{}, fmt.Errorf("blf: read record prologue: %w", err)
		}

		rec := Record{
			Type:      le.Uint16(pro[8:]),
			Flags:     le.Uint16(pro[10:]),
			Timestamp: le.Uint64(pro[16:]),
		}
		rest := size - prologueSize

		var bodySize int
		switch rec.Type {
		case ObjCANMessage2:
			bodySize = classicBodySize
		case ObjCANFDMessage64:
			bodySize = fdBodySize
		default:
			// Foreign record type; skip its remainder and any alignment
			// padding the writer left out of the size field.
			if err := r.skip(paddedLen(rest)); err != nil {
				return Record{}, err
			}
			continue
		}
		if rest < bodySize {
			return Record{}, fmt.Errorf("%w: record size %d for type %d", ErrBadHeader, size, rec.Type)
		}

		body := make([]byte, rest)
		if _, err := io.ReadFull(r.r, body); err != nil {
			return Record{}, fmt.Errorf("blf: read record body: %w", err)
		}
		rec.Channel = le.Uint16(body[0:])
		dlc := int(body[2])
		rec.Frame.CANID = le.Uint32(body[4:])
		if rec.Type == ObjCANFDMessage64 {
			rec.FDFlags = le.Uint32(body[16:])
		}
		data := body[bodySize:]
		if dlc > len(data) || dlc > fdMaxData {
			return Record{}, fmt.Errorf("%w: dlc %d with %d data bytes", ErrBadHeader, dlc, len(data))
		}
		rec.Frame.Len = uint8(dlc)
		copy(rec.Frame.Data[:], data[:dlc])
		return rec, nil
	}
}

func (r *Reader) skip(n int) error {
	if n <= 0 {
		return nil
	}
	if _, err := io.CopyN(io.Discard, r.r, int64(n)); err != nil {
		return fmt.Errorf("blf: skip record: %w", err)
	}
	return nil
}
