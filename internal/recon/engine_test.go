package recon_test

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"mudgate.gg/internal/persistence/worlddb"
	"mudgate.gg/internal/platform"
	"mudgate.gg/internal/recon"
	"mudgate.gg/internal/world"
)

func testDef(t *testing.T, rooms ...world.Room) *world.Definition {
	t.Helper()
	if rooms == nil {
		rooms = []world.Room{
			{ID: "foyer", Name: "Grand Foyer", Description: "Grand Foyer", ZoneID: "floor-1"},
			{ID: "library", Name: "Library", Description: "Dusty shelves.", ZoneID: "floor-1"},
		}
	}
	def, err := world.NewDefinition([]world.Zone{{ID: "floor-1", Name: "Floor 1"}}, rooms, "foyer")
	if err != nil {
		t.Fatalf("NewDefinition: %v", err)
	}
	return def
}

func testEngine(t *testing.T, f *platform.Fake, db *worlddb.DB, load func() (*world.Definition, error)) (*recon.Engine, *[]recon.PassReport) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	reports := &[]recon.PassReport{}
	e := &recon.Engine{
		Load:      load,
		Mirror:    db,
		Locations: db,
		Topology: &recon.TopologyReconciler{
			Client:  f,
			Orphans: db.Orphans(),
			Console: "console",
			Log:     logger,
		},
		Visibility: &recon.VisibilityReconciler{
			Client:    f,
			Locations: db,
			Console:   "console",
			Log:       logger,
		},
		Client:   f,
		Log:      logger,
		OnReport: func(rep recon.PassReport) { *reports = append(*reports, rep) },
	}
	return e, reports
}

func TestRunPass_EndToEnd(t *testing.T) {
	db, err := worlddb.Open(filepath.Join(t.TempDir(), "mudgate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	f := platform.NewFake()
	f.AddMember("alice", "Alice")
	f.AddBot("mudgate", "Mudgate")

	e, reports := testEngine(t, f, db, func() (*world.Definition, error) { return testDef(t), nil })
	ctx := context.Background()

	if e.Directory().Len() != 0 {
		t.Fatalf("directory not empty before first pass")
	}
	if err := e.RunPass(ctx); err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	dir := e.Directory()
	if dir.Len() != 2 {
		t.Fatalf("directory has %d rooms", dir.Len())
	}
	if len(*reports) != 1 {
		t.Fatalf("got %d reports", len(*reports))
	}
	rep := (*reports)[0]
	if rep.PassID == "" || rep.Topology == nil || rep.Visibility == nil {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Mirror.Zones != 1 || rep.Mirror.Rooms != 2 {
		t.Fatalf("mirror stats = %+v", rep.Mirror)
	}
	// The bot account is excluded; alice lands in the default room.
	if rep.Visibility.AssignedDefault != 1 || rep.Visibility.UsersSynced != 1 {
		t.Fatalf("visibility = %+v", rep.Visibility)
	}
	if room, _ := db.UserRoom(ctx, "alice"); room != "foyer" {
		t.Fatalf("alice's room = %q", room)
	}

	// Second pass over unchanged state: zero actions end to end.
	if err := e.RunPass(ctx); err != nil {
		t.Fatalf("second RunPass: %v", err)
	}
	rep = (*reports)[1]
	if rep.Topology.Actions() != 0 || rep.Visibility.Actions() != 0 {
		t.Fatalf("second pass acted: %+v", rep)
	}
}

func TestRunPass_RelocatesUsersFromUndeclaredRoom(t *testing.T) {
	db, err := worlddb.Open(filepath.Join(t.TempDir(), "mudgate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	f := platform.NewFake()
	f.AddMember("alice", "Alice")

	full := []world.Room{
		{ID: "foyer", Name: "Grand Foyer", Description: "Grand Foyer", ZoneID: "floor-1"},
		{ID: "library", Name: "Library", Description: "Dusty shelves.", ZoneID: "floor-1"},
	}
	current := full
	e, reports := testEngine(t, f, db, func() (*world.Definition, error) {
		return testDef(t, current...), nil
	})
	ctx := context.Background()

	if err := e.RunPass(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if err := db.SetUserRoom(ctx, "alice", "library"); err != nil {
		t.Fatalf("SetUserRoom: %v", err)
	}

	// The library is removed from the world files between passes.
	current = full[:1]
	if err := e.RunPass(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	rep := (*reports)[len(*reports)-1]
	if rep.Mirror.UsersRelocated != 1 {
		t.Fatalf("mirror stats = %+v", rep.Mirror)
	}
	if room, _ := db.UserRoom(ctx, "alice"); room != "foyer" {
		t.Fatalf("alice's room = %q", room)
	}
}

func TestRunPass_LoadFailureIsReported(t *testing.T) {
	db, err := worlddb.Open(filepath.Join(t.TempDir(), "mudgate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	e, reports := testEngine(t, platform.NewFake(), db, func() (*world.Definition, error) {
		return nil, context.DeadlineExceeded
	})
	if err := e.RunPass(context.Background()); err == nil {
		t.Fatalf("want error")
	}
	if len(*reports) != 1 || (*reports)[0].Error == "" {
		t.Fatalf("reports = %+v", *reports)
	}
}
