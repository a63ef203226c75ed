package world

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type document struct {
	DefaultRoom string `yaml:"default_room"`
	Zones       []Zone `yaml:"zones"`
	Rooms       []Room `yaml:"rooms"`
}

// Load reads every world document under dir, schema-validates each one, and
// merges them into a single Definition. Files are processed in name order so
// duplicate-id errors are stable.
func Load(dir string) (*Definition, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	more, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return nil, err
	}
	matches = append(matches, more...)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no world files in %s", dir)
	}
	sort.Strings(matches)

	var (
		zones       []Zone
		rooms       []Room
		defaultRoom string
	)
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := validateDocument(generic); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		var doc document
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		zones = append(zones, doc.Zones...)
		rooms = append(rooms, doc.Rooms...)
		if doc.DefaultRoom != "" {
			if defaultRoom != "" && defaultRoom != doc.DefaultRoom {
				return nil, fmt.Errorf("%s: conflicting default_room %q (already %q)",
					filepath.Base(path), doc.DefaultRoom, defaultRoom)
			}
			defaultRoom = doc.DefaultRoom
		}
	}

	return NewDefinition(zones, rooms, defaultRoom)
}

// CheckReferences reports declaration problems that loading deliberately
// tolerates: rooms pointing at undeclared zones are runtime drift (the
// reconciler skips them), but the validator surfaces them up front.
func (d *Definition) CheckReferences() []error {
	var issues []error
	for _, r := range d.Rooms {
		if _, ok := d.zonesByID[r.ZoneID]; !ok {
			issues = append(issues, fmt.Errorf("room %q references undeclared zone %q", r.ID, r.ZoneID))
		}
	}
	return issues
}
