// Package recon drives the live platform topology and per-user channel
// visibility into agreement with the declared world. Everything here is
// rebuilt from scratch on every pass: the reconcilers are pure functions of
// (declared state, live state) plus the orphan memory's reporting flag, which
// is what makes repeated passes idempotent and blind retry safe.
package recon

import "sort"

// Entry is one resolved room in the directory: the live text channel backing
// the room, its paired voice channel when present, and the per-user view
// overwrites both carried at the time the pass listed the topology.
type Entry struct {
	RoomID    string
	ChannelID string
	VoiceID   string

	viewers      map[string]bool
	voiceViewers map[string]bool
}

// Visible reports whether the user holds an explicit view grant on the
// room's text channel as of the snapshot.
func (e Entry) Visible(userID string) bool { return e.viewers[userID] }

// Directory maps room ids to live channels for the lifetime of one pass. It
// is built empty, populated only with rooms the topology reconciler
// positively resolved, and never patched afterwards; the next pass replaces
// it wholesale.
type Directory struct {
	entries   map[string]Entry
	byChannel map[string]string
}

func NewDirectory() *Directory {
	return &Directory{
		entries:   make(map[string]Entry),
		byChannel: make(map[string]string),
	}
}

func (d *Directory) add(e Entry) {
	if e.viewers == nil {
		e.viewers = make(map[string]bool)
	}
	if e.voiceViewers == nil {
		e.voiceViewers = make(map[string]bool)
	}
	d.entries[e.RoomID] = e
	d.byChannel[e.ChannelID] = e.RoomID
}

// Resolve returns the channel id backing a room.
func (d *Directory) Resolve(roomID string) (string, bool) {
	e, ok := d.entries[roomID]
	if !ok {
		return "", false
	}
	return e.ChannelID, true
}

// Entry returns the full directory record for a room.
func (d *Directory) Entry(roomID string) (Entry, bool) {
	e, ok := d.entries[roomID]
	return e, ok
}

// RoomFor is the reverse lookup, used to translate the channel a command was
// issued in back into a logical room.
func (d *Directory) RoomFor(channelID string) (string, bool) {
	r, ok := d.byChannel[channelID]
	return r, ok
}

func (d *Directory) Len() int { return len(d.entries) }

// Entries returns the tracked rooms in room-id order so visibility diffs are
// deterministic.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}
