// Package world holds the declarative world definition: zones and rooms
// authored as yaml documents, loaded into an immutable snapshot that one
// reconciliation pass operates on.
package world

import (
	"fmt"
	"regexp"
	"strings"
)

// Zone groups rooms and maps 1:1 to a platform category. The zone id must
// equal the category name after normalization (lower-case, hyphenated).
type Zone struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Room is a logical location, mapped 1:1 to a text channel named after its id
// inside the zone's category. HasVoice pairs it with a same-named voice channel.
type Room struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	ZoneID      string `yaml:"zone" json:"zone"`
	HasVoice    bool   `yaml:"voice,omitempty" json:"voice,omitempty"`
}

// Definition is one validated snapshot of the declared world. It is never
// mutated after construction; each pass loads a fresh one.
type Definition struct {
	Zones       []Zone
	Rooms       []Room
	DefaultRoom string

	zonesByID map[string]Zone
	roomsByID map[string]Room
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// NewDefinition validates the declared entities and builds the lookup indexes.
func NewDefinition(zones []Zone, rooms []Room, defaultRoom string) (*Definition, error) {
	d := &Definition{
		Zones:       zones,
		Rooms:       rooms,
		DefaultRoom: defaultRoom,
		zonesByID:   make(map[string]Zone, len(zones)),
		roomsByID:   make(map[string]Room, len(rooms)),
	}
	for _, z := range zones {
		if !idPattern.MatchString(z.ID) {
			return nil, fmt.Errorf("zone id %q: must be lower-case and hyphenated", z.ID)
		}
		if _, dup := d.zonesByID[z.ID]; dup {
			return nil, fmt.Errorf("duplicate zone id %q", z.ID)
		}
		d.zonesByID[z.ID] = z
	}
	for _, r := range rooms {
		if !idPattern.MatchString(r.ID) {
			return nil, fmt.Errorf("room id %q: must be lower-case and hyphenated", r.ID)
		}
		if _, dup := d.roomsByID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room id %q", r.ID)
		}
		d.roomsByID[r.ID] = r
	}
	if defaultRoom == "" {
		return nil, fmt.Errorf("no default room declared")
	}
	if _, ok := d.roomsByID[defaultRoom]; !ok {
		return nil, fmt.Errorf("default room %q not declared", defaultRoom)
	}
	return d, nil
}

// Zone returns the declared zone with the given id.
func (d *Definition) Zone(id string) (Zone, bool) {
	z, ok := d.zonesByID[id]
	return z, ok
}

// Room returns the declared room with the given id.
func (d *Definition) Room(id string) (Room, bool) {
	r, ok := d.roomsByID[id]
	return r, ok
}

// HasRoom reports whether a room id is declared. Used by topology
// reconciliation to classify stray channels inside managed categories.
func (d *Definition) HasRoom(id string) bool {
	_, ok := d.roomsByID[id]
	return ok
}

// NormalizeName maps a live category name onto the zone id space:
// lower-case with spaces collapsed to hyphens.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
