package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaq-tools/sif2blf/internal/convert"
	"github.com/edaq-tools/sif2blf/internal/dbc"
	"github.com/edaq-tools/sif2blf/internal/metrics"
	"github.com/edaq-tools/sif2blf/internal/sif"
)

// runConvert parses the measurement file and its databases, then streams the
// synthesized frames into the output log.
func runConvert(cfg *appConfig, l *slog.Logger) error {
	f, err := sif.ParseFile(cfg.input)
	if err != nil {
		metrics.IncError(metrics.ErrSIFParse)
		return err
	}
	l.Info("sif_loaded", "input", cfg.input,
		"version", f.Version,
		"interfaces", len(f.Interfaces),
		"channels", len(f.Channels),
		"binary_bytes", len(f.Binary),
		"max_rate", f.MaxSampleRate(),
	)

	dbs, err := loadDatabases(cfg.dbcPaths, l)
	if err != nil {
		return err
	}

	var prof *convert.Profile
	if cfg.profilePath != "" {
		prof, err = convert.LoadProfile(cfg.profilePath)
		if err != nil {
			return err
		}
		l.Info("profile_loaded", "path", cfg.profilePath,
			"signals", len(prof.Signals), "channels", len(prof.Channels))
	}

	outPath := cfg.output
	if outPath == "" {
		outPath = strings.TrimSuffix(cfg.input, filepath.Ext(cfg.input)) + ".blf"
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	res, err := convert.Run(convert.Options{
		File:          f,
		Databases:     dbs,
		Profile:       prof,
		SampleLimit:   cfg.sampleLimit,
		ApplicationID: cfg.appID,
		Out:           out,
	})
	if err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	for _, name := range res.Unmatched {
		l.Warn("channel_unmatched", "channel", name)
	}
	l.Info("convert_done", "output", outPath,
		"samples", res.Samples,
		"records", res.Records,
		"bytes", res.Bytes,
		"matched", res.Matched,
		"unmatched", len(res.Unmatched),
		"clamped", res.Clamps,
		"tick_ns", res.TickNs,
	)
	return nil
}

// loadDatabases expands glob patterns and parses every match in order. The
// database name used for profile channel pins is the file name without its
// extension.
func loadDatabases(patterns []string, l *slog.Logger) ([]convert.Database, error) {
	var dbs []convert.Database
	for _, pat := range patterns {
		matches, err := filepath.Glob(pat)
		if err != nil {
			return nil, fmt.Errorf("dbc pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			// Not a pattern match; let ParseFile surface the open error.
			matches = []string{pat}
		}
		for _, path := range matches {
			db, st, err := dbc.ParseFile(path)
			if err != nil {
				metrics.IncError(metrics.ErrDBCParse)
				return nil, err
			}
			metrics.AddDBCCoverage(st.Accepted(), st.Ignored+st.Orphans)
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			l.Info("dbc_loaded", "name", name,
				"messages", st.Messages,
				"signals", st.Signals,
				"value_tables", st.ValueTables,
				"ignored", st.Ignored,
				"orphans", st.Orphans,
			)
			dbs = append(dbs, convert.Database{Name: name, DB: db})
		}
	}
	if len(dbs) == 0 {
		return nil, errors.New("no databases loaded")
	}
	return dbs, nil
}
