package recon

import (
	"context"
	"fmt"
	"log"

	"mudgate.gg/internal/platform"
)

// VisibilityReport counts what one visibility pass did.
type VisibilityReport struct {
	UsersSynced     int `json:"users_synced"`
	AssignedDefault int `json:"assigned_default"`
	Granted         int `json:"granted"`
	Revoked         int `json:"revoked"`
	UsersSkipped    int `json:"users_skipped"`
	Errors          int `json:"errors"`
}

// Actions is the number of overwrite mutations issued. Zero on a repeat pass
// over unchanged state.
func (r *VisibilityReport) Actions() int { return r.Granted + r.Revoked }

// VisibilityReconciler enforces fog of war: for every user, exactly one of
// the channels the directory tracks carries a view grant after a pass.
type VisibilityReconciler struct {
	Client    platform.Client
	Locations LocationStore
	Console   string
	Log       *log.Logger
}

// Sync diffs every member's desired visibility (their current room's channel,
// falling back to the default room) against the overwrites captured in the
// directory snapshot, issuing only the grants and revokes that differ. A
// user whose recorded room no longer resolves is assigned the default room
// and the assignment is persisted, as the original locations are owned by the
// store. Per-user and per-channel failures are isolated; only an
// unresolvable default room aborts, since no user has a safe fallback then.
func (r *VisibilityReconciler) Sync(ctx context.Context, dir *Directory, members []platform.Member, locations map[string]string, defaultRoom string) (*VisibilityReport, error) {
	report := &VisibilityReport{}

	fallback, ok := dir.Entry(defaultRoom)
	if !ok {
		err := &UnresolvedDefaultRoomError{RoomID: defaultRoom}
		r.Log.Printf("visibility aborted: %v", err)
		msg := fmt.Sprintf("Visibility sync aborted: default room %q has no live channel.", defaultRoom)
		if aerr := r.Client.Announce(ctx, r.Console, msg); aerr != nil {
			r.Log.Printf("announce: %v", aerr)
		}
		return report, err
	}

	for _, m := range members {
		roomID := locations[m.ID]
		target, resolved := dir.Entry(roomID)
		if !resolved {
			target = fallback
			report.AssignedDefault++
			if err := r.Locations.SetUserRoom(ctx, m.ID, defaultRoom); err != nil {
				r.Log.Printf("assign default room to %s: %v", m.ID, err)
				report.Errors++
			}
		}
		if r.syncUser(ctx, dir, m.ID, target, report) {
			report.UsersSynced++
		} else {
			report.UsersSkipped++
		}
	}
	return report, nil
}

// syncUser reconciles one user against one consistent directory snapshot.
// Returns false when every mutation for the user failed.
func (r *VisibilityReconciler) syncUser(ctx context.Context, dir *Directory, userID string, target Entry, report *VisibilityReport) bool {
	failed, attempted := 0, 0
	for _, e := range dir.Entries() {
		want := e.ChannelID == target.ChannelID
		if e.viewers[userID] != want {
			attempted++
			if err := r.Client.SetVisibility(ctx, e.ChannelID, userID, want); err != nil {
				r.Log.Printf("set visibility %s for %s: %v", e.RoomID, userID, err)
				report.Errors++
				failed++
				continue
			}
			if want {
				report.Granted++
			} else {
				report.Revoked++
			}
		}
		// Paired voice channels follow the text channel, best-effort.
		if e.VoiceID != "" && e.voiceViewers[userID] != want {
			if err := r.Client.SetVisibility(ctx, e.VoiceID, userID, want); err != nil {
				r.Log.Printf("set voice visibility %s for %s: %v", e.RoomID, userID, err)
				report.Errors++
			}
		}
	}
	return attempted == 0 || failed < attempted
}

// MoveUser relocates a user to another room: the location record is updated
// first, then the old channel's grant is revoked before the new one is
// granted, so at no point does the user see two rooms. Returns false when the
// user already was in the target room.
func (r *VisibilityReconciler) MoveUser(ctx context.Context, dir *Directory, userID, toRoom string) (bool, error) {
	to, ok := dir.Entry(toRoom)
	if !ok {
		return false, fmt.Errorf("room %q has no live channel", toRoom)
	}

	cur, err := r.Locations.UserRoom(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read location: %w", err)
	}
	if cur == toRoom {
		return false, nil
	}

	if err := r.Locations.SetUserRoom(ctx, userID, toRoom); err != nil {
		return false, fmt.Errorf("store location: %w", err)
	}

	// Revoke before grant; the reverse order briefly shows both rooms.
	if from, ok := dir.Entry(cur); ok {
		if err := r.Client.SetVisibility(ctx, from.ChannelID, userID, false); err != nil {
			return false, fmt.Errorf("revoke %s: %w", cur, err)
		}
		if from.VoiceID != "" {
			if err := r.Client.SetVisibility(ctx, from.VoiceID, userID, false); err != nil {
				r.Log.Printf("revoke voice %s for %s: %v", cur, userID, err)
			}
		}
	}

	if err := r.Client.SetVisibility(ctx, to.ChannelID, userID, true); err != nil {
		return false, fmt.Errorf("grant %s: %w", toRoom, err)
	}
	if to.VoiceID != "" {
		if err := r.Client.SetVisibility(ctx, to.VoiceID, userID, true); err != nil {
			r.Log.Printf("grant voice %s for %s: %v", toRoom, userID, err)
		}
	}

	r.Log.Printf("moved %s from %q to %q", userID, cur, toRoom)
	return true, nil
}
