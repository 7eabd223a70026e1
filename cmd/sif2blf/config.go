package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	mode            string
	input           string
	output          string
	dbcPaths        []string
	profilePath     string
	sampleLimit     int
	appID           string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	canIf           string
	recordChannel   int
	recordFor       time.Duration
	maxRecords      int
}

// multiFlag collects every occurrence of a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	var dbcPaths multiFlag
	mode := flag.String("mode", "convert", "Run mode: convert|record|inspect")
	in := flag.String("in", "", "Input file (.sif for convert, .blf for inspect); first positional argument works too")
	out := flag.String("out", "", "Output file (convert defaults to the input name with .blf, inspect to stdout)")
	flag.Var(&dbcPaths, "dbc", "CAN database file or glob pattern (repeatable)")
	profile := flag.String("profile", "", "Conversion profile YAML (signal overrides, channel pins)")
	sampleLimit := flag.Int("sample-limit", 0, "Maximum samples per channel (0 = built-in cap)")
	appID := flag.String("app-id", "", "Application id stamped into the output header")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	backend := flag.String("backend", "serial", "Record source: serial|socketcan")
	serialDev := flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	canIf := flag.String("can-if", "can0", "SocketCAN interface (when -backend=socketcan)")
	recordChannel := flag.Int("channel", 1, "Channel number stamped on recorded frames")
	recordFor := flag.Duration("duration", 0, "Stop recording after this long (0 = run until signal)")
	maxRecords := flag.Int("max-records", 0, "Stop recording after this many frames (0 = unlimited)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.mode = *mode
	cfg.input = *in
	cfg.output = *out
	cfg.dbcPaths = dbcPaths
	cfg.profilePath = *profile
	cfg.sampleLimit = *sampleLimit
	cfg.appID = *appID
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.backend = *backend
	cfg.serialDev = *serialDev
	cfg.baud = *baud
	cfg.serialReadTO = *serialReadTO
	cfg.canIf = *canIf
	cfg.recordChannel = *recordChannel
	cfg.recordFor = *recordFor
	cfg.maxRecords = *maxRecords
	if cfg.input == "" && flag.NArg() > 0 {
		cfg.input = flag.Arg(0)
	}

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open files or devices, only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.mode {
	case "convert":
		if c.input == "" {
			return errors.New("convert needs an input measurement file (-in)")
		}
		if len(c.dbcPaths) == 0 {
			return errors.New("convert needs at least one -dbc")
		}
	case "record":
		if c.output == "" {
			return errors.New("record needs an output file (-out)")
		}
		switch c.backend {
		case "serial", "socketcan":
		default:
			return fmt.Errorf("invalid backend: %s", c.backend)
		}
		if c.recordChannel <= 0 || c.recordChannel > 0xFFFF {
			return fmt.Errorf("channel out of range: %d", c.recordChannel)
		}
	case "inspect":
		if c.input == "" {
			return errors.New("inspect needs an input log file (-in)")
		}
	default:
		return fmt.Errorf("invalid mode: %s (use convert|record|inspect)", c.mode)
	}
	if c.sampleLimit < 0 {
		return fmt.Errorf("sample-limit must be >= 0 (got %d)", c.sampleLimit)
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.recordFor < 0 {
		return fmt.Errorf("duration must be >= 0")
	}
	if c.maxRecords < 0 {
		return fmt.Errorf("max-records must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps SIF2BLF_* environment variables to config fields
// unless a corresponding flag was explicitly set. Boolean & numeric parsing is
// lax: empty values ignored. Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	// Only apply if NOT in set (flag wins).
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["dbc"]; !ok {
		if v, ok := get("SIF2BLF_DBC"); ok && v != "" {
			c.dbcPaths = nil
			for _, p := range strings.Split(v, ",") {
				if p = strings.TrimSpace(p); p != "" {
					c.dbcPaths = append(c.dbcPaths, p)
				}
			}
		}
	}
	if _, ok := set["profile"]; !ok {
		if v, ok := get("SIF2BLF_PROFILE"); ok && v != "" {
			c.profilePath = v
		}
	}
	if _, ok := set["sample-limit"]; !ok {
		if v, ok := get("SIF2BLF_SAMPLE_LIMIT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.sampleLimit = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_SAMPLE_LIMIT: %w", err)
			}
		}
	}
	if _, ok := set["app-id"]; !ok {
		if v, ok := get("SIF2BLF_APP_ID"); ok && v != "" {
			c.appID = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("SIF2BLF_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("SIF2BLF_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("SIF2BLF_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("SIF2BLF_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["backend"]; !ok {
		if v, ok := get("SIF2BLF_BACKEND"); ok && v != "" {
			c.backend = v
		}
	}
	if _, ok := set["serial"]; !ok {
		if v, ok := get("SIF2BLF_SERIAL"); ok && v != "" {
			c.serialDev = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("SIF2BLF_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("SIF2BLF_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["can-if"]; !ok {
		if v, ok := get("SIF2BLF_IF"); ok && v != "" {
			c.canIf = v
		}
	}
	if _, ok := set["channel"]; !ok {
		if v, ok := get("SIF2BLF_CHANNEL"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.recordChannel = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_CHANNEL: %w", err)
			}
		}
	}
	if _, ok := set["duration"]; !ok {
		if v, ok := get("SIF2BLF_DURATION"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.recordFor = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_DURATION: %w", err)
			}
		}
	}
	if _, ok := set["max-records"]; !ok {
		if v, ok := get("SIF2BLF_MAX_RECORDS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxRecords = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid SIF2BLF_MAX_RECORDS: %w", err)
			}
		}
	}
	return firstErr
}
