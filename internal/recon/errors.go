package recon

import "fmt"

// DriftError marks a declared entity that references something missing from
// the current snapshot, such as a room whose zone is no longer declared. The
// entity is skipped for the pass; nothing live is ever deleted over it.
type DriftError struct {
	Kind   string // "room" or "zone"
	ID     string
	Reason string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("drift: %s %q: %s", e.Kind, e.ID, e.Reason)
}

// UnresolvedDefaultRoomError aborts visibility reconciliation for a pass:
// without a resolvable default room there is no safe fallback channel for
// any user.
type UnresolvedDefaultRoomError struct {
	RoomID string
}

func (e *UnresolvedDefaultRoomError) Error() string {
	return fmt.Sprintf("default room %q has no live channel", e.RoomID)
}
