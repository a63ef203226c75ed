package world

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorld(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const castleDoc = `
default_room: foyer
zones:
  - id: floor-1
    name: Floor 1
rooms:
  - id: foyer
    name: Grand Foyer
    description: Grand Foyer
    zone: floor-1
    voice: true
  - id: library
    name: Library
    description: Dusty shelves.
    zone: floor-1
`

func TestLoad_MergesDocuments(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "castle.yaml", castleDoc)
	writeWorld(t, dir, "dungeon.yaml", `
zones:
  - id: depths
    name: The Depths
rooms:
  - id: oubliette
    name: Oubliette
    description: A damp stone pit.
    zone: depths
`)

	def, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(def.Zones) != 2 || len(def.Rooms) != 3 {
		t.Fatalf("got %d zones, %d rooms", len(def.Zones), len(def.Rooms))
	}
	if def.DefaultRoom != "foyer" {
		t.Fatalf("default room = %q", def.DefaultRoom)
	}
	r, ok := def.Room("foyer")
	if !ok || !r.HasVoice || r.ZoneID != "floor-1" {
		t.Fatalf("foyer = %+v ok=%v", r, ok)
	}
	if _, ok := def.Zone("depths"); !ok {
		t.Fatalf("zone depths missing")
	}
}

func TestLoad_SchemaRejectsBadRoom(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "bad.yaml", `
default_room: foyer
rooms:
  - id: foyer
    name: Grand Foyer
    zone: floor-1
`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("want schema error, got %v", err)
	}
}

func TestLoad_RejectsUppercaseID(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "bad.yaml", `
default_room: foyer
zones:
  - id: Floor-1
    name: Floor 1
rooms:
  - id: foyer
    name: Grand Foyer
    description: x
    zone: floor-1
`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("want error for uppercase id")
	}
}

func TestLoad_DuplicateRoomID(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "a.yaml", castleDoc)
	writeWorld(t, dir, "b.yaml", `
rooms:
  - id: foyer
    name: Another Foyer
    description: x
    zone: floor-1
`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "duplicate room") {
		t.Fatalf("want duplicate room error, got %v", err)
	}
}

func TestLoad_MissingDefaultRoom(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "a.yaml", `
zones:
  - id: floor-1
    name: Floor 1
rooms:
  - id: foyer
    name: Grand Foyer
    description: x
    zone: floor-1
`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "default room") {
		t.Fatalf("want default room error, got %v", err)
	}
}

func TestLoad_ConflictingDefaultRoom(t *testing.T) {
	dir := t.TempDir()
	writeWorld(t, dir, "a.yaml", castleDoc)
	writeWorld(t, dir, "b.yaml", `
default_room: library
`)
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "conflicting default_room") {
		t.Fatalf("want conflict error, got %v", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("want error for empty dir")
	}
}

func TestCheckReferences(t *testing.T) {
	def, err := NewDefinition(
		[]Zone{{ID: "floor-1", Name: "Floor 1"}},
		[]Room{
			{ID: "foyer", Name: "Foyer", Description: "x", ZoneID: "floor-1"},
			{ID: "attic", Name: "Attic", Description: "x", ZoneID: "floor-9"},
		},
		"foyer",
	)
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	issues := def.CheckReferences()
	if len(issues) != 1 || !strings.Contains(issues[0].Error(), "floor-9") {
		t.Fatalf("issues = %v", issues)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("Floor 1"); got != "floor-1" {
		t.Fatalf("NormalizeName = %q", got)
	}
	if got := NormalizeName("floor-1"); got != "floor-1" {
		t.Fatalf("NormalizeName = %q", got)
	}
}
