package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/edaq-tools/sif2blf/internal/metrics"
)

// Helper implementations live in dedicated files: version.go, config.go,
// logger.go, metrics_logger.go, convert.go, record.go, inspect.go, backend.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("sif2blf %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date, "mode", cfg.mode)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	// Ready once running, not ready while draining.
	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	var srvHTTP *http.Server
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP = metrics.StartHTTP(cfg.metricsAddr)
	}

	// A signal cancels the context; record mode uses that to stop its
	// capture loop and finalize the output file.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	var err error
	switch cfg.mode {
	case "convert":
		err = runConvert(cfg, l)
	case "record":
		err = runRecord(ctx, cfg, l, &wg)
	case "inspect":
		err = runInspect(cfg, l)
	}
	cancel()
	wg.Wait()
	if srvHTTP != nil {
		_ = srvHTTP.Shutdown(context.Background())
	}
	if err != nil {
		l.Error("run_error", "mode", cfg.mode, "error", err)
		os.Exit(1)
	}
}
