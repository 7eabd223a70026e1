package convert

import (
	"fmt"
	"strings"

	"github.com/edaq-tools/sif2blf/internal/dbc"
	"github.com/edaq-tools/sif2blf/internal/logging"
	"github.com/edaq-tools/sif2blf/internal/sif"
)

// Database pairs a parsed signal database with the name it is referenced by
// in the measurement file's interface sections, normally the file stem.
type Database struct {
	Name string
	DB   *dbc.Database
}

// Mapping ties one measurement channel to a database signal.
type Mapping struct {
	Database string
	CANID    uint32
	Signal   string
}

// binding is a matched channel with everything emission needs resolved.
type binding struct {
	mapping Mapping
	msg     *dbc.Message
	channel uint16
}

// nameVariants lists the spellings tried against the databases, most exact
// first. Channel names often carry prefixes or case conventions the database
// authors did not use.
func nameVariants(name string) [4]string {
	return [4]string{
		name,
		strings.ReplaceAll(name, "_", ""),
		strings.ToUpper(name),
		strings.ToLower(name),
	}
}

// resolveChannel finds the database signal for one channel name. Variants are
// tried database by database in load order; the first hit wins.
func resolveChannel(name string, dbs []Database) (Mapping, *dbc.Message, bool) {
	variants := nameVariants(name)
	for _, d := range dbs {
		for _, variant := range variants {
			if msg, ok := d.DB.MessageForSignal(variant); ok {
				return Mapping{Database: d.Name, CANID: msg.CANID, Signal: variant}, msg, true
			}
		}
	}
	return Mapping{}, nil, false
}

// resolveOverride applies one explicit profile override: the named signal
// must exist in some database, spelled exactly.
func resolveOverride(channel, signal string, dbs []Database) (Mapping, *dbc.Message, error) {
	for _, d := range dbs {
		if msg, ok := d.DB.MessageForSignal(signal); ok {
			return Mapping{Database: d.Name, CANID: msg.CANID, Signal: signal}, msg, nil
		}
	}
	return Mapping{}, nil, fmt.Errorf("convert: channel %q: signal %q: %w", channel, signal, ErrUnknownOverride)
}

// blfChannel resolves the record channel number for a database: a profile
// pin wins, then the 1-based position of the CAN interface that lists the
// database, then channel 1.
func blfChannel(dbName string, ifaces []sif.CANInterface, pins map[string]uint16) uint16 {
	if n, ok := pins[dbName]; ok {
		return n
	}
	for i, ifc := range ifaces {
		for _, d := range ifc.Databases {
			if d == dbName {
				return uint16(i + 1)
			}
		}
	}
	return 1
}

// buildBindings matches every channel of the measurement file. Unmatched
// channels get a nil binding; their names are returned for reporting. An
// override that resolves nowhere is a configuration error.
func buildBindings(file *sif.File, dbs []Database, profile *Profile) ([]*binding, []string, error) {
	var pins map[string]uint16
	overrides := map[string]string{}
	if profile != nil {
		pins = profile.Channels
		overrides = profile.Signals
	}

	seen := make(map[string]bool, len(overrides))
	bindings := make([]*binding, len(file.Channels))
	var unmatched []string
	for i, ch := range file.Channels {
		var (
			m   Mapping
			msg *dbc.Message
			ok  bool
		)
		if signal, has := overrides[ch.Name]; has {
			seen[ch.Name] = true
			var err error
			m, msg, err = resolveOverride(ch.Name, signal, dbs)
			if err != nil {
				return nil, nil, err
			}
			ok = true
		} else {
			m, msg, ok = resolveChannel(ch.Name, dbs)
		}
		if !ok {
			unmatched = append(unmatched, ch.Name)
			continue
		}
		bindings[i] = &binding{
			mapping: m,
			msg:     msg,
			channel: blfChannel(m.Database, file.Interfaces, pins),
		}
	}
	for name := range overrides {
		if !seen[name] {
			logging.L().Warn("profile_override_unused", "channel", name)
		}
	}
	return bindings, unmatched, nil
}
