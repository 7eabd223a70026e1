//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	ecan "go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
)

// openSocketCANConn is a hook for tests (overridden in unit tests).
var openSocketCANConn = func(ctx context.Context, iface string) (net.Conn, error) {
	return socketcan.DialContext(ctx, "can", iface)
}

// startSocketCANCapture dials the interface and launches the RX loop. Closing
// the connection from the returned cleanup unblocks a pending Receive.
func startSocketCANCapture(ctx context.Context, cfg *appConfig, sink func(can.Frame), l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	conn, err := openSocketCANConn(ctx, cfg.canIf)
	if err != nil {
		return nil, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)
	rx := socketcan.NewReceiver(conn)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("socketcan_rx_end")
		for rx.Receive() {
			sink(fromSocketCAN(rx.Frame()))
			metrics.IncSocketCANRx()
		}
		if err := rx.Err(); err != nil && ctx.Err() == nil {
			metrics.IncError(metrics.ErrSocketCANRead)
			l.Warn("socketcan_receive_error", "error", err)
		}
	}()
	return func() { _ = conn.Close() }, nil
}

// fromSocketCAN maps a kernel frame into the flag-bit id layout the writer
// serializes.
func fromSocketCAN(f ecan.Frame) can.Frame {
	out := can.Frame{CANID: f.ID, Len: f.Length}
	if f.IsExtended {
		out.CANID |= can.CAN_EFF_FLAG
	}
	if f.IsRemote {
		out.CANID |= can.CAN_RTR_FLAG
	}
	copy(out.Data[:], f.Data[:])
	return out
}
