package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/edaq-tools/sif2blf/internal/blf"
	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/convert"
	"github.com/edaq-tools/sif2blf/internal/dbc"
	"github.com/edaq-tools/sif2blf/internal/sigcodec"
)

// headerLine opens the JSONL stream with the container identity.
type headerLine struct {
	Application   string    `json:"application"`
	AppVersion    string    `json:"app_version"`
	FormatVersion uint32    `json:"format_version"`
	Records       uint32    `json:"records"`
	RecordBytes   uint64    `json:"record_bytes"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// frameLine is one record of the JSONL stream.
type frameLine struct {
	Index       uint32       `json:"index"`
	TimestampNs uint64       `json:"timestamp_ns"`
	Channel     uint16       `json:"channel"`
	ID          string       `json:"id"`
	Extended    bool         `json:"extended,omitempty"`
	Remote      bool         `json:"remote,omitempty"`
	FD          bool         `json:"fd,omitempty"`
	Flags       uint16       `json:"flags,omitempty"`
	FDFlags     uint32       `json:"fd_flags,omitempty"`
	DLC         uint8        `json:"dlc"`
	Data        string       `json:"data"`
	Message     string       `json:"message,omitempty"`
	Signals     []signalLine `json:"signals,omitempty"`
}

type signalLine struct {
	Name     string  `json:"name"`
	Raw      int64   `json:"raw"`
	Physical float64 `json:"physical"`
	Unit     string  `json:"unit,omitempty"`
	Label    string  `json:"label,omitempty"`
}

// runInspect dumps a log file as one JSON object per line, decoding signal
// values when databases are given.
func runInspect(cfg *appConfig, l *slog.Logger) error {
	in, err := os.Open(cfg.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	var dbs []convert.Database
	if len(cfg.dbcPaths) > 0 {
		dbs, err = loadDatabases(cfg.dbcPaths, l)
		if err != nil {
			return err
		}
	}

	r, err := blf.NewReader(in)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if cfg.output != "" {
		outFile, err := os.Create(cfg.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer outFile.Close()
		out = outFile
	}
	bw := bufio.NewWriter(out)

	hdr := r.Header()
	hl := headerLine{
		Application: hdr.Application,
		AppVersion: fmt.Sprintf("%d.%d.%d.%d",
			hdr.AppVersion[0], hdr.AppVersion[1], hdr.AppVersion[2], hdr.AppVersion[3]),
		FormatVersion: hdr.Version,
		Records:       hdr.RecordCount,
		RecordBytes:   hdr.RecordBytes,
		Start:         hdr.Start,
		End:           hdr.End,
	}
	if err := writeLine(bw, hl); err != nil {
		return err
	}

	var codec sigcodec.Codec
	var index, decoded uint32
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		fl := frameLine{
			Index:       index,
			TimestampNs: rec.Timestamp,
			Channel:     rec.Channel,
			ID:          fmt.Sprintf("0x%X", rec.Frame.ID()),
			Extended:    rec.Frame.IsExtended(),
			Remote:      rec.Frame.IsRemote(),
			FD:          rec.Type == blf.ObjCANFDMessage64,
			Flags:       rec.Flags,
			FDFlags:     rec.FDFlags,
			DLC:         rec.Frame.Len,
			Data:        hex.EncodeToString(rec.Frame.Payload()),
		}
		if msg, ok := lookupMessage(dbs, rec.Frame); ok {
			fl.Message = msg.Name
			if vals, derr := codec.DecodeMessageValues(msg, rec.Frame.Payload()); derr == nil {
				fl.Signals = make([]signalLine, 0, len(vals))
				for _, v := range vals {
					sl := signalLine{
						Name:     v.Signal.Name,
						Raw:      v.Raw(),
						Physical: v.Physical,
						Unit:     v.Signal.Unit,
					}
					if lbl, ok := v.Signal.LabelFor(v.Raw()); ok {
						sl.Label = lbl
					}
					fl.Signals = append(fl.Signals, sl)
				}
				decoded++
			}
		}
		if err := writeLine(bw, fl); err != nil {
			return err
		}
		index++
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	l.Info("inspect_done", "input", cfg.input, "records", index, "decoded", decoded)
	return nil
}

// lookupMessage resolves a frame id against the databases in load order. The
// id is tried as stored first; extended frames fall back to the bare 29-bit
// id for databases that list them without the flag bit.
func lookupMessage(dbs []convert.Database, fr can.Frame) (*dbc.Message, bool) {
	for _, d := range dbs {
		if m, ok := d.DB.Message(fr.CANID); ok {
			return m, true
		}
		if fr.IsExtended() {
			if m, ok := d.DB.Message(fr.ID()); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func writeLine(w *bufio.Writer, v any) error {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
