package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edaq-tools/sif2blf/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"dbc_accepted", snap.DBCAccepted,
					"dbc_ignored", snap.DBCIgnored,
					"samples", snap.Samples,
					"clamped", snap.Clamped,
					"records", snap.Records,
					"bytes", snap.Bytes,
					"serial_rx", snap.SerialRx,
					"socketcan_rx", snap.SocketCANRx,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
