package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edaq-tools/sif2blf/internal/blf"
	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

// runRecord captures live frames from the configured backend into a log file.
// It runs until the context is cancelled or a -duration / -max-records limit
// is hit, then finalizes the output header.
func runRecord(ctx context.Context, cfg *appConfig, l *slog.Logger, wg *sync.WaitGroup) error {
	out, err := os.Create(cfg.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w, err := blf.NewWriter(out, blf.Options{ApplicationID: cfg.appID})
	if err != nil {
		_ = out.Close()
		return err
	}

	// The RX goroutine must never stall on the writer; a full queue drops
	// the frame and counts it.
	frames := make(chan can.Frame, recordQueueSize)
	sink := func(fr can.Frame) {
		select {
		case frames <- fr:
		default:
			metrics.IncError(metrics.ErrRecordDrop)
		}
	}
	stop, err := startCapture(ctx, cfg, sink, l, wg)
	if err != nil {
		_ = out.Close()
		return err
	}
	defer stop()

	l.Info("record_start", "output", cfg.output,
		"backend", cfg.backend,
		"channel", cfg.recordChannel,
		"duration", cfg.recordFor,
		"max_records", cfg.maxRecords,
	)
	start := time.Now()
	var deadline <-chan time.Time
	if cfg.recordFor > 0 {
		t := time.NewTimer(cfg.recordFor)
		defer t.Stop()
		deadline = t.C
	}
	channel := uint16(cfg.recordChannel)
	count := 0
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			l.Info("record_duration_reached", "duration", cfg.recordFor)
			break loop
		case fr := <-frames:
			if err := w.AppendFrame(channel, fr, uint64(time.Since(start))); err != nil {
				metrics.IncError(metrics.ErrBLFWrite)
				_ = out.Close()
				return fmt.Errorf("append record: %w", err)
			}
			count++
			if cfg.maxRecords > 0 && count >= cfg.maxRecords {
				l.Info("record_limit_reached", "records", count)
				break loop
			}
		}
	}
	if err := w.Finalize(); err != nil {
		_ = out.Close()
		return fmt.Errorf("finalize: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	l.Info("record_done", "output", cfg.output,
		"records", w.Records(),
		"bytes", w.Bytes(),
		"elapsed", time.Since(start),
	)
	return nil
}
