// Package catalog holds the static network table: which chains exist, what
// runtime they speak, and how their RPC endpoints resolve. The table is pure
// data, embedded at build time and optionally overlaid with a user file, so
// catalog growth never touches engine code.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed networks.yaml
var embeddedNetworks []byte

// Catalog is a read-only set of network descriptors keyed by network key.
type Catalog struct {
	byKey   map[string]Descriptor
	ordered []Descriptor
}

type networksFile struct {
	Networks []Descriptor `yaml:"networks"`
}

// Load builds the catalog from the embedded table, overlaid with the optional
// user file at path (entries merge by key; user entries win).
func Load(path string) (*Catalog, error) {
	descs, err := parse(embeddedNetworks)
	if err != nil {
		return nil, fmt.Errorf("embedded networks table: %w", err)
	}

	byKey := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if _, dup := byKey[d.Key]; dup {
			return nil, fmt.Errorf("duplicate network key: %s", d.Key)
		}
		byKey[d.Key] = d
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read networks file: %w", err)
		}
		overlay, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("networks file %s: %w", path, err)
		}
		for _, d := range overlay {
			byKey[d.Key] = d
		}
	}

	c := &Catalog{byKey: byKey}
	c.ordered = make([]Descriptor, 0, len(byKey))
	for _, d := range byKey {
		c.ordered = append(c.ordered, d)
	}
	sort.Slice(c.ordered, func(i, j int) bool {
		if c.ordered[i].Priority != c.ordered[j].Priority {
			return c.ordered[i].Priority > c.ordered[j].Priority
		}
		return c.ordered[i].Key < c.ordered[j].Key
	})
	return c, nil
}

func parse(raw []byte) ([]Descriptor, error) {
	var f networksFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse networks yaml: %w", err)
	}
	for i, d := range f.Networks {
		if d.Key == "" {
			return nil, fmt.Errorf("network entry %d: key is required", i)
		}
		if d.Runtime == "" {
			return nil, fmt.Errorf("network %s: runtime is required", d.Key)
		}
		if d.Priority < 1 || d.Priority > 10 {
			return nil, fmt.Errorf("network %s: priority %d out of range 1-10", d.Key, d.Priority)
		}
	}
	return f.Networks, nil
}

// List returns all descriptors ordered by priority (desc), then key.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Get looks up one descriptor by key.
func (c *Catalog) Get(key string) (Descriptor, bool) {
	d, ok := c.byKey[key]
	return d, ok
}

// Len returns the number of known networks.
func (c *Catalog) Len() int { return len(c.byKey) }
