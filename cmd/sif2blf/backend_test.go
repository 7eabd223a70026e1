package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/edaq-tools/sif2blf/internal/can"
	"github.com/edaq-tools/sif2blf/internal/metrics"
	"github.com/edaq-tools/sif2blf/internal/serial"
)

// fakeSerialPort implements serial.Port for tests.
type fakeSerialPort struct {
	reads [][]byte
	idx   int
	mu    sync.Mutex
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.reads) {
		// after delivering all data, block briefly then return EOF repeatedly
		time.Sleep(10 * time.Millisecond)
		return 0, io.EOF
	}
	chunk := f.reads[f.idx]
	f.idx++
	n := copy(p, chunk)
	return n, nil
}
func (f *fakeSerialPort) Close() error { return nil }

// testLogger returns a no-op slog.Logger for tests.
func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// wireEnvelope builds the adapter envelope around a big-endian id and payload
// (replicates the device TX format the decoder consumes).
func wireEnvelope(id uint32, payload []byte) []byte {
	data := make([]byte, 4+len(payload))
	data[0] = byte(id >> 24)
	data[1] = byte(id >> 16)
	data[2] = byte(id >> 8)
	data[3] = byte(id)
	copy(data[4:], payload)
	n := len(data)
	frame := make([]byte, n+4)
	frame[0] = 0x2D
	frame[1] = 0xD4
	frame[2] = byte(n + 1)
	sum := frame[2] + 0x2D
	for i, b := range data {
		frame[3+i] = b
		sum += b
	}
	frame[3+n] = sum
	return frame
}

// TestStartSerialCaptureBasic validates that a frame presented via the serial
// RX loop is decoded, handed to the sink and counted.
func TestStartSerialCaptureBasic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enc := wireEnvelope(0x123, []byte{0xAA, 0xBB})
	openSerialPort = func(name string, baud int, to time.Duration) (serial.Port, error) {
		return &fakeSerialPort{reads: [][]byte{enc}}, nil
	}
	defer func() { openSerialPort = serial.Open }()

	got := make(chan can.Frame, 1)
	cfg := &appConfig{backend: "serial", serialDev: "fake", baud: 115200, serialReadTO: 50 * time.Millisecond}
	var wg sync.WaitGroup
	before := metrics.Snap().SerialRx
	stop, err := startCapture(ctx, cfg, func(fr can.Frame) { got <- fr }, testLogger(), &wg)
	if err != nil {
		t.Fatalf("startCapture: %v", err)
	}
	defer stop()

	select {
	case fr := <-got:
		if fr.ID() != 0x123 || !fr.IsExtended() {
			t.Fatalf("unexpected id: %+v", fr)
		}
		if fr.Len != 2 || fr.Data[0] != 0xAA || fr.Data[1] != 0xBB {
			t.Fatalf("unexpected payload: %+v", fr)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for frame")
	}
	if metrics.Snap().SerialRx == before {
		t.Fatal("expected SerialRx to advance")
	}
	cancel()
	wg.Wait()
}

func TestStartCapture_UnknownBackend(t *testing.T) {
	cfg := &appConfig{backend: "bogus"}
	var wg sync.WaitGroup
	_, err := startCapture(context.Background(), cfg, func(can.Frame) {}, testLogger(), &wg)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
