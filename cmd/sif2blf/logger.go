package main

import (
	"log/slog"
	"os"

	"github.com/edaq-tools/sif2blf/internal/logging"
)

func setupLogger(format, level string) *slog.Logger {
	l := logging.New(format, logging.ParseLevel(level), os.Stderr).With("app", "sif2blf")
	logging.Set(l)
	return l
}
