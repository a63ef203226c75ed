package recon

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"mudgate.gg/internal/platform"
	"mudgate.gg/internal/world"
)

// Orphan is a live channel inside a managed category whose name matches no
// declared room. Orphans are informational only; the reconciler never deletes
// or modifies them.
type Orphan struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	ZoneID      string `json:"zone"`
}

// TopologyReport counts what one topology pass did.
type TopologyReport struct {
	CategoriesCreated int      `json:"categories_created"`
	ChannelsCreated   int      `json:"channels_created"`
	VoiceCreated      int      `json:"voice_channels_created"`
	TopicsUpdated     int      `json:"topics_updated"`
	RoomsSkipped      int      `json:"rooms_skipped"`
	Orphans           []Orphan `json:"orphans,omitempty"`
	NewOrphans        []Orphan `json:"new_orphans,omitempty"`
	Errors            int      `json:"errors"`
}

// Actions reports how many platform mutations the pass issued. A second pass
// over unchanged state must bring this to zero.
func (r *TopologyReport) Actions() int {
	return r.CategoriesCreated + r.ChannelsCreated + r.VoiceCreated + r.TopicsUpdated
}

// TopologyReconciler drives categories and channels into agreement with a
// world definition. It is stateless between passes apart from the injected
// orphan memory.
type TopologyReconciler struct {
	Client  platform.Client
	Orphans OrphanMemory
	Console string
	Log     *log.Logger
}

type liveChannels struct {
	text  map[string]platform.Channel // name -> channel, per category
	voice map[string]platform.Channel
}

// Reconcile lists the live topology once, creates whatever declared entity is
// missing, corrects drifted topics, and returns the directory of rooms it
// positively resolved this pass. Per-entity failures are counted and skipped;
// only a failed topology listing aborts, since there is nothing to diff
// against.
func (r *TopologyReconciler) Reconcile(ctx context.Context, def *world.Definition) (*Directory, *TopologyReport, error) {
	report := &TopologyReport{}

	live, err := r.Client.Topology(ctx)
	if err != nil {
		return nil, report, fmt.Errorf("list topology: %w", err)
	}

	// Match live categories to declared zones by normalized name.
	catByZone := make(map[string]platform.Category)
	zoneByCat := make(map[string]string)
	for _, c := range live.Categories {
		id := world.NormalizeName(c.Name)
		if _, ok := def.Zone(id); ok {
			catByZone[id] = c
			zoneByCat[c.ID] = id
		}
	}

	// Create declared zones that are absent live. Creation failures are
	// retried for free on the next pass.
	for _, z := range def.Zones {
		if _, ok := catByZone[z.ID]; ok {
			continue
		}
		cat, err := r.Client.CreateCategory(ctx, z.Name)
		if err != nil {
			r.Log.Printf("create category %s: %v", z.ID, err)
			report.Errors++
			continue
		}
		catByZone[z.ID] = cat
		zoneByCat[cat.ID] = z.ID
		report.CategoriesCreated++
		r.Log.Printf("created category %s", z.ID)
	}

	// Index live channels per category for O(1) room resolution.
	channels := make(map[string]*liveChannels)
	for _, ch := range live.Channels {
		lc := channels[ch.CategoryID]
		if lc == nil {
			lc = &liveChannels{text: map[string]platform.Channel{}, voice: map[string]platform.Channel{}}
			channels[ch.CategoryID] = lc
		}
		if ch.Voice {
			lc.voice[ch.Name] = ch
		} else {
			lc.text[ch.Name] = ch
		}
	}

	dir := NewDirectory()
	for _, room := range def.Rooms {
		if _, declared := def.Zone(room.ZoneID); !declared {
			// Conservative drift handling: never delete, just skip the room.
			derr := &DriftError{Kind: "room", ID: room.ID, Reason: "zone " + room.ZoneID + " not declared"}
			r.Log.Printf("%v", derr)
			report.RoomsSkipped++
			continue
		}
		cat, ok := catByZone[room.ZoneID]
		if !ok {
			// Category creation failed above; the room resolves next pass.
			report.RoomsSkipped++
			continue
		}
		lc := channels[cat.ID]
		if lc == nil {
			lc = &liveChannels{text: map[string]platform.Channel{}, voice: map[string]platform.Channel{}}
		}

		entry := Entry{RoomID: room.ID}
		if ch, ok := lc.text[room.ID]; ok {
			entry.ChannelID = ch.ID
			entry.viewers = ch.Viewers
			if ch.Topic != room.Description {
				if err := r.Client.EditTopic(ctx, ch.ID, room.Description); err != nil {
					r.Log.Printf("edit topic %s: %v", room.ID, err)
					report.Errors++
				} else {
					report.TopicsUpdated++
				}
			}
		} else {
			// Absent live is indistinguishable from deleted externally;
			// either way the channel is recreated.
			ch, err := r.Client.CreateTextChannel(ctx, cat.ID, room.ID, room.Description)
			if err != nil {
				r.Log.Printf("create channel %s: %v", room.ID, err)
				report.Errors++
				continue
			}
			entry.ChannelID = ch.ID
			report.ChannelsCreated++
			r.Log.Printf("created channel #%s in %s", room.ID, room.ZoneID)
		}

		if room.HasVoice {
			if vc, ok := lc.voice[room.ID]; ok {
				entry.VoiceID = vc.ID
				entry.voiceViewers = vc.Viewers
			} else {
				vc, err := r.Client.CreateVoiceChannel(ctx, cat.ID, room.ID)
				if err != nil {
					r.Log.Printf("create voice channel %s: %v", room.ID, err)
					report.Errors++
				} else {
					entry.VoiceID = vc.ID
					report.VoiceCreated++
				}
			}
		}

		dir.add(entry)
	}

	if err := r.trackOrphans(ctx, def, live, zoneByCat, report); err != nil {
		r.Log.Printf("orphan tracking: %v", err)
		report.Errors++
	}

	return dir, report, nil
}

// trackOrphans classifies undeclared channels inside managed categories,
// alerts the console about first sightings only, and prunes memory entries
// for channels that have since disappeared.
func (r *TopologyReconciler) trackOrphans(ctx context.Context, def *world.Definition, live platform.Topology, zoneByCat map[string]string, report *TopologyReport) error {
	seen := make(map[string]Orphan)
	for _, ch := range live.Channels {
		zone, managed := zoneByCat[ch.CategoryID]
		if !managed {
			continue
		}
		// A paired voice channel shares its room's name and is not an orphan.
		if def.HasRoom(ch.Name) {
			continue
		}
		seen[ch.ID] = Orphan{ChannelID: ch.ID, ChannelName: ch.Name, ZoneID: zone}
	}

	remembered, err := r.Orphans.Remembered()
	if err != nil {
		return err
	}
	for _, id := range remembered {
		if _, still := seen[id]; !still {
			if err := r.Orphans.Forget(id); err != nil {
				return err
			}
		}
	}

	var fresh []Orphan
	for id, o := range seen {
		report.Orphans = append(report.Orphans, o)
		known, err := r.Orphans.Contains(id)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		fresh = append(fresh, o)
	}
	sort.Slice(report.Orphans, func(i, j int) bool { return report.Orphans[i].ChannelID < report.Orphans[j].ChannelID })
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ChannelID < fresh[j].ChannelID })
	report.NewOrphans = fresh

	if len(fresh) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Orphan channels detected (not declared in world files):\n")
	for _, o := range fresh {
		fmt.Fprintf(&b, "- #%s in %s (%s)\n", o.ChannelName, o.ZoneID, o.ChannelID)
	}
	b.WriteString("Delete them or declare them as rooms.")
	if err := r.Client.Announce(ctx, r.Console, b.String()); err != nil {
		// Not remembering them keeps the alert pending for the next pass.
		return err
	}
	for _, o := range fresh {
		if err := r.Orphans.Remember(o.ChannelID); err != nil {
			return err
		}
	}
	return nil
}
