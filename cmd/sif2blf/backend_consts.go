package main

import "time"

const (
	serialReadBufSize = 4096 // per read() buffer for serial backend
	// recordQueueSize is the capacity of the channel between the capture
	// goroutine and the log writer. When the writer falls behind, frames
	// are dropped and counted rather than stalling the RX loop.
	recordQueueSize = 1024
	rxBackoffMin    = 20 * time.Millisecond
	rxBackoffMax    = 500 * time.Millisecond
)
