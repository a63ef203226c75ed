package recon

import (
	"context"
	"sync"

	"mudgate.gg/internal/world"
)

// LocationStore is the user-location side of the relational store. The
// reconciler reads it every pass and writes only when assigning a user their
// fallback room or executing a movement.
type LocationStore interface {
	// Users returns every recorded location, keyed by user id. An empty room
	// id means the user exists but has no recorded room.
	Users(ctx context.Context) (map[string]string, error)
	UserRoom(ctx context.Context, userID string) (string, error)
	SetUserRoom(ctx context.Context, userID, roomID string) error
}

// MirrorStats counts what one declarative sync changed in the relational
// mirror.
type MirrorStats struct {
	Zones          int `json:"zones"`
	Rooms          int `json:"rooms"`
	UsersRelocated int `json:"users_relocated"`
}

// WorldMirror keeps the relational store's zone/room tables in agreement with
// the declared world, relocating users out of rooms that were un-declared.
type WorldMirror interface {
	SyncWorld(ctx context.Context, def *world.Definition) (MirrorStats, error)
}

// OrphanMemory is the persisted set of orphan channel ids that were already
// reported, keyed by channel id (globally unique on the platform). It exists
// only to suppress duplicate alerts.
type OrphanMemory interface {
	Contains(channelID string) (bool, error)
	Remember(channelID string) error
	Forget(channelID string) error
	Remembered() ([]string, error)
}

// MemoryOrphans is the process-local OrphanMemory used by tests and dry runs.
type MemoryOrphans struct {
	mu  sync.Mutex
	set map[string]bool
}

func NewMemoryOrphans() *MemoryOrphans {
	return &MemoryOrphans{set: make(map[string]bool)}
}

func (m *MemoryOrphans) Contains(channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set[channelID], nil
}

func (m *MemoryOrphans) Remember(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[channelID] = true
	return nil
}

func (m *MemoryOrphans) Forget(channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, channelID)
	return nil
}

func (m *MemoryOrphans) Remembered() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.set))
	for id := range m.set {
		out = append(out, id)
	}
	return out, nil
}
