package synclog

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"mudgate.gg/internal/recon"
)

func readReports(t *testing.T, path string) []recon.PassReport {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []recon.PassReport
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var rep recon.PassReport
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			t.Fatalf("unmarshal line %q: %v", sc.Text(), err)
		}
		out = append(out, rep)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	reps := []recon.PassReport{
		{PassID: "p1", StartedAt: started, Rooms: 3, Topology: &recon.TopologyReport{ChannelsCreated: 3}},
		{PassID: "p2", StartedAt: started.Add(15 * time.Minute), Rooms: 3, Error: "mirror world: disk full"},
	}
	for _, rep := range reps {
		if err := w.Write(rep); err != nil {
			t.Fatalf("Write(%s): %v", rep.PassID, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readReports(t, w.Path(started))
	if len(got) != 2 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].PassID != "p1" || got[0].Topology == nil || got[0].Topology.ChannelsCreated != 3 {
		t.Fatalf("first record = %+v", got[0])
	}
	if got[1].Error != "mirror world: disk full" {
		t.Fatalf("second record = %+v", got[1])
	}
}

func TestWrite_RotatesDaily(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	day1 := time.Date(2026, 3, 14, 23, 55, 0, 0, time.UTC)
	day2 := day1.Add(10 * time.Minute)
	if err := w.Write(recon.PassReport{PassID: "p1", StartedAt: day1}); err != nil {
		t.Fatalf("Write day1: %v", err)
	}
	if err := w.Write(recon.PassReport{PassID: "p2", StartedAt: day2}); err != nil {
		t.Fatalf("Write day2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if p1, p2 := w.Path(day1), w.Path(day2); p1 == p2 {
		t.Fatalf("paths did not rotate: %s", p1)
	}
	if got := readReports(t, w.Path(day1)); len(got) != 1 || got[0].PassID != "p1" {
		t.Fatalf("day1 records = %+v", got)
	}
	if got := readReports(t, w.Path(day2)); len(got) != 1 || got[0].PassID != "p2" {
		t.Fatalf("day2 records = %+v", got)
	}
}

func TestWrite_AppendsAfterReopen(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	w := NewWriter(dir)
	if err := w.Write(recon.PassReport{PassID: "p1", StartedAt: started}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A restart within the same day appends a second frame to the same file.
	w2 := NewWriter(dir)
	if err := w2.Write(recon.PassReport{PassID: "p2", StartedAt: started.Add(15 * time.Minute)}); err != nil {
		t.Fatalf("Write after reopen: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close after reopen: %v", err)
	}

	got := readReports(t, w2.Path(started))
	if len(got) != 2 || got[0].PassID != "p1" || got[1].PassID != "p2" {
		t.Fatalf("records = %+v", got)
	}
}
