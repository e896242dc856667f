// Package simulation resolves simulation identifiers proposed by the
// generation step against a curated, process-wide whitelist. The table is
// the only source of simulation URLs: identifiers coming out of generation
// output are treated as untrusted strings and never more.
package simulation

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// Table is an immutable mapping from simulation identifier to resolved
// metadata. Administrative updates replace the whole table; nothing mutates
// it in place.
type Table struct {
	entries map[string]types.ResolvedSimulation
}

// whitelistFile is the YAML document layout of a whitelist file.
type whitelistFile struct {
	Simulations []whitelistRecord `yaml:"simulations"`
}

type whitelistRecord struct {
	Identifier string `yaml:"identifier"`
	URL        string `yaml:"url"`
	Source     string `yaml:"source"`
	Provider   string `yaml:"provider"`
	Available  bool   `yaml:"available"`
}

// NewTable builds a table from resolved records, validating each entry.
// URL scheme enforcement happens here, at load time: the table is trusted
// and static, so resolve-time checks would be redundant.
func NewTable(records []types.ResolvedSimulation) (*Table, error) {
	entries := make(map[string]types.ResolvedSimulation, len(records))

	for _, rec := range records {
		if rec.Identifier == "" {
			return nil, fmt.Errorf("whitelist: entry with empty identifier")
		}
		if rec.Identifier == "none" {
			return nil, fmt.Errorf("whitelist: identifier %q is reserved", rec.Identifier)
		}
		if _, dup := entries[rec.Identifier]; dup {
			return nil, fmt.Errorf("whitelist: duplicate identifier %q", rec.Identifier)
		}

		switch rec.Source {
		case types.SourceExternal, types.SourceProprietary:
		default:
			return nil, fmt.Errorf("whitelist: entry %q has invalid source %q", rec.Identifier, rec.Source)
		}

		if rec.URL != "" {
			u, err := url.Parse(rec.URL)
			if err != nil {
				return nil, fmt.Errorf("whitelist: entry %q has unparseable url: %w", rec.Identifier, err)
			}
			if u.Scheme != "https" {
				return nil, fmt.Errorf("whitelist: entry %q url must use https, got %q", rec.Identifier, u.Scheme)
			}
		}

		entries[rec.Identifier] = rec
	}

	return &Table{entries: entries}, nil
}

// LoadTable reads and validates a whitelist YAML file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("whitelist: read %s: %w", path, err)
	}

	var file whitelistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("whitelist: parse %s: %w", path, err)
	}

	records := make([]types.ResolvedSimulation, 0, len(file.Simulations))
	for _, rec := range file.Simulations {
		records = append(records, types.ResolvedSimulation{
			Identifier: rec.Identifier,
			URL:        rec.URL,
			Source:     types.SimulationSource(rec.Source),
			Provider:   rec.Provider,
			Available:  rec.Available,
		})
	}

	return NewTable(records)
}

// Lookup returns the metadata for an identifier, if present.
func (t *Table) Lookup(identifier string) (types.ResolvedSimulation, bool) {
	rec, ok := t.entries[identifier]
	return rec, ok
}

// Len returns the number of whitelisted simulations.
func (t *Table) Len() int {
	return len(t.entries)
}
