// Package convert drives a measurement-to-log conversion run: measurement
// channels are matched to database signals, synthetic samples are drawn from
// the binary region, encoded message by message and written out as
// timestamped records.
package convert

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/edaq-tools/sif2blf/internal/blf"
	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/dbc"
	"github.com/edaq-tools/sif2blf/internal/logging"
	"github.com/edaq-tools/sif2blf/internal/metrics"
	"github.com/edaq-tools/sif2blf/internal/sif"
	"github.com/edaq-tools/sif2blf/internal/sigcodec"
)

// defaultSampleLimit caps a run when the caller does not set a limit. The
// binary region also caps it at one sample per 100 bytes.
const defaultSampleLimit = 1000

var (
	ErrNoInput         = errors.New("convert: no measurement file")
	ErrNoChannels      = errors.New("convert: measurement file has no channels")
	ErrNoDatabases     = errors.New("convert: no signal databases loaded")
	ErrUnknownOverride = errors.New("convert: override signal not in any database")
)

// Options hold everything one conversion run needs. Out must be seekable;
// the log writer rewrites its header on finalize.
type Options struct {
	File          *sif.File
	Databases     []Database // load order, earlier wins ties
	Profile       *Profile   // optional
	SampleLimit   int        // 0 selects the default cap
	ApplicationID string     // output header identity, profile overrides
	Out           io.WriteSeeker
}

// Result summarizes a finished run.
type Result struct {
	Samples   int
	Records   uint32
	Bytes     uint64
	Matched   int
	Unmatched []string
	Clamps    int
	TickNs    int64
}

// Run performs one conversion. Encoder configuration problems (zero scale,
// bit spans beyond the frame) abort the run; saturated values are counted
// and kept.
func Run(opts Options) (*Result, error) {
	if opts.File == nil {
		return nil, ErrNoInput
	}
	if len(opts.Databases) == 0 {
		return nil, ErrNoDatabases
	}
	if len(opts.File.Channels) == 0 {
		return nil, ErrNoChannels
	}

	bindings, unmatched, err := buildBindings(opts.File, opts.Databases, opts.Profile)
	if err != nil {
		return nil, err
	}
	matched := len(opts.File.Channels) - len(unmatched)
	metrics.SetChannelCoverage(matched, len(unmatched))

	limit := opts.SampleLimit
	if limit <= 0 {
		limit = defaultSampleLimit
	}
	samples := len(opts.File.Binary) / 100
	if samples > limit {
		samples = limit
	}
	tick := int64(time.Second) / int64(opts.File.MaxSampleRate())

	appID := opts.ApplicationID
	if opts.Profile != nil && opts.Profile.ApplicationID != "" {
		appID = opts.Profile.ApplicationID
	}
	w, err := blf.NewWriter(opts.Out, blf.Options{ApplicationID: appID})
	if err != nil {
		return nil, err
	}

	logging.L().Info("conversion_start",
		"channels", len(opts.File.Channels),
		"matched", matched,
		"samples", samples,
		"tick_ns", tick)

	res := &Result{Samples: samples, Matched: matched, Unmatched: unmatched, TickNs: tick}
	var codec sigcodec.Codec
	var ts uint64
	for i := 0; i < samples; i++ {
		for _, g := range groupSample(opts.File, bindings, i) {
			payload, enc, err := codec.EncodeMessage(g.msg, g.values)
			if err != nil {
				metrics.IncError(metrics.ErrEncode)
				return nil, fmt.Errorf("convert: encode %s (id 0x%X): %w", g.msg.Name, g.msg.CANID, err)
			}
			res.Clamps += len(enc.Clamped)

			var frame can.Frame
			frame.CANID = g.msg.CANID
			frame.Len = g.msg.DLC
			copy(frame.Data[:], payload)
			if err := w.Append(blf.Record{Channel: g.channel, Timestamp: ts, Frame: frame}); err != nil {
				metrics.IncError(metrics.ErrBLFWrite)
				return nil, err
			}
		}
		metrics.IncSamples()
		ts += uint64(tick)
	}

	if err := w.Finalize(); err != nil {
		return nil, err
	}
	res.Records = w.Records()
	res.Bytes = w.Bytes()

	logging.L().Info("conversion_done",
		"records", res.Records,
		"bytes", res.Bytes,
		"clamps", res.Clamps)
	return res, nil
}

// group collects the signal values bound for one message in one sample tick.
type group struct {
	msg     *dbc.Message
	channel uint16
	values  map[string]float64
}

// groupSample draws every matched channel's value for one tick and groups
// the values by target message, preserving first-touch order so the record
// stream is deterministic.
func groupSample(file *sif.File, bindings []*binding, sample int) []*group {
	index := make(map[*dbc.Message]*group)
	var order []*group
	stride := len(file.Channels)
	for ci := range file.Channels {
		b := bindings[ci]
		if b == nil {
			continue
		}
		v := sampleValue(file.Binary, sample, ci, stride, &file.Channels[ci])
		g, ok := index[b.msg]
		if !ok {
			g = &group{msg: b.msg, channel: b.channel, values: make(map[string]float64)}
			index[b.msg] = g
			order = append(order, g)
		}
		g.values[b.mapping.Signal] = v
	}
	return order
}

// sampleValue synthesizes one physical reading. The proprietary sample
// layout is not decoded: a byte is drawn from the binary region, spread
// across channels and ticks, normalized to the channel's full-scale range
// and run through its calibration.
func sampleValue(binary []byte, sample, idx, stride int, ch *sif.Channel) float64 {
	off := (sample*stride + idx) % len(binary)
	normalized := float64(binary[off]) / 255
	v := ch.FSMin + (ch.FSMax-ch.FSMin)*normalized
	return v*ch.CalSlope + ch.CalIntercept
}
