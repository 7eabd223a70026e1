package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edaq-tools/sif2blf/internal/can"
)

// startCapture selects the capture backend, starts its RX loop and returns a
// cleanup function. Decoded frames are handed to sink from the RX goroutine.
// It returns an error instead of exiting the process to allow graceful
// handling by the caller.
func startCapture(ctx context.Context, cfg *appConfig, sink func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	switch cfg.backend {
	case "serial":
		return startSerialCapture(ctx, cfg, sink, l, wg)
	case "socketcan":
		return startSocketCANCapture(ctx, cfg, sink, l, wg)
	default:
		return nil, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}
