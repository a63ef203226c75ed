package recon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mudgate.gg/internal/platform"
	"mudgate.gg/internal/world"
)

// PassReport is the record of one full reconciliation pass, emitted to the
// sync log and the operator console stream.
type PassReport struct {
	PassID     string            `json:"pass_id"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMs int64             `json:"duration_ms"`
	Mirror     MirrorStats       `json:"mirror"`
	Topology   *TopologyReport   `json:"topology,omitempty"`
	Visibility *VisibilityReport `json:"visibility,omitempty"`
	Rooms      int               `json:"rooms"`
	Error      string            `json:"error,omitempty"`
}

// Engine runs full passes: reload the world definition, mirror it into the
// relational store, reconcile topology, then reconcile visibility against the
// directory the topology step just rebuilt. The engine is driven by a single
// scheduler goroutine; readers get the last completed directory through an
// atomic snapshot and never block a running pass.
type Engine struct {
	Load       func() (*world.Definition, error)
	Mirror     WorldMirror
	Locations  LocationStore
	Topology   *TopologyReconciler
	Visibility *VisibilityReconciler
	Client     platform.Client
	Log        *log.Logger
	OnReport   func(PassReport)

	dir atomic.Pointer[Directory]
}

// Directory returns the snapshot produced by the last completed topology
// pass. Before the first pass it is empty, never nil.
func (e *Engine) Directory() *Directory {
	if d := e.dir.Load(); d != nil {
		return d
	}
	return NewDirectory()
}

// RunPass executes one full reconciliation pass. Entity-level failures are
// absorbed by the reconcilers; an error return means the pass as a whole was
// cut short and should simply be retried on the next tick.
func (e *Engine) RunPass(ctx context.Context) error {
	report := PassReport{
		PassID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.DurationMs = time.Since(report.StartedAt).Milliseconds()
		if e.OnReport != nil {
			e.OnReport(report)
		}
	}()

	fail := func(err error) error {
		report.Error = err.Error()
		return err
	}

	def, err := e.Load()
	if err != nil {
		return fail(fmt.Errorf("load world: %w", err))
	}

	report.Mirror, err = e.Mirror.SyncWorld(ctx, def)
	if err != nil {
		return fail(fmt.Errorf("mirror world: %w", err))
	}

	dir, topo, err := e.Topology.Reconcile(ctx, def)
	report.Topology = topo
	if err != nil {
		return fail(err)
	}
	report.Rooms = dir.Len()
	e.dir.Store(dir)

	members, err := e.Client.Members(ctx)
	if err != nil {
		return fail(fmt.Errorf("list members: %w", err))
	}
	locations, err := e.Locations.Users(ctx)
	if err != nil {
		return fail(fmt.Errorf("read locations: %w", err))
	}

	vis, err := e.Visibility.Sync(ctx, dir, members, locations, def.DefaultRoom)
	report.Visibility = vis
	if err != nil {
		var unresolved *UnresolvedDefaultRoomError
		if errors.As(err, &unresolved) {
			// Alerted inside the reconciler; topology results stand and the
			// next pass retries visibility from scratch.
			report.Error = err.Error()
			return nil
		}
		return fail(err)
	}

	e.Log.Printf("pass %s: %d rooms, topology %+v, visibility %+v",
		report.PassID[:8], report.Rooms, *topo, *vis)
	return nil
}
