package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port is the adapter's byte stream. Capture never writes; tarm ports
// satisfy this directly.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Open opens the adapter UART. The read timeout keeps the capture loop
// responsive to shutdown.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
