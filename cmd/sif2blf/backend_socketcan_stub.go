//go:build !linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/edaq-tools/sif2blf/internal/can"
)

// Placeholder so non-linux builds compile; socketcan not supported.
func startSocketCANCapture(ctx context.Context, cfg *appConfig, sink func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	return nil, fmt.Errorf("socketcan backend unsupported on this platform")
}
