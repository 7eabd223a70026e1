package convert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile tunes a conversion run. Every field is optional; a nil profile
// means automatic matching everywhere.
type Profile struct {
	// ApplicationID overrides the application identity stamped into the
	// output file header.
	ApplicationID string `yaml:"application_id"`
	// Signals maps a measurement channel name to the exact database signal
	// it must encode to, bypassing the variant matcher.
	Signals map[string]string `yaml:"signals"`
	// Channels pins a database name to a record channel number, overriding
	// the interface-position rule.
	Channels map[string]uint16 `yaml:"channels"`
}

// LoadProfile reads and validates a YAML conversion profile.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("convert: read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("convert: parse profile %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("convert: profile %s: %w", path, err)
	}
	return &p, nil
}

func (p *Profile) validate() error {
	for channel, signal := range p.Signals {
		if channel == "" || signal == "" {
			return fmt.Errorf("signals: empty name in %q: %q", channel, signal)
		}
	}
	for db, n := range p.Channels {
		if db == "" {
			return fmt.Errorf("channels: empty database name")
		}
		if n == 0 {
			return fmt.Errorf("channels: %s: channel numbers start at 1", db)
		}
	}
	return nil
}
