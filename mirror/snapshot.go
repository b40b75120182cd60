package mirror

import (
	"sync"
	"time"

	"github.com/pmoellner/hausdeck/remote"
)

// Snapshot is an immutable point-in-time bundle of everything the console
// knows about the bridge. It is replaced wholesale on every successful poll
// and never patched in place, so readers can never observe a half-merged
// state.
type Snapshot struct {
	Version   uint64
	FetchedAt time.Time

	Config   remote.UIConfig
	Entities []remote.EntitySummary
	Logs     []string
	Sync     remote.SyncStatus
	Patina   remote.Patina

	// Bridge and Runtime come from separate endpoints; on a partial fetch
	// failure the previous values are carried forward.
	Bridge  *remote.BridgeInfo
	Runtime *remote.RuntimeConfig
}

// Rooms returns the room list of the snapshot's configuration.
func (s *Snapshot) Rooms() []remote.RoomConfig {
	if s == nil {
		return nil
	}
	return s.Config.Rooms
}

// IncludedCount counts entities currently in the Hue selection.
func (s *Snapshot) IncludedCount() int {
	if s == nil {
		return 0
	}
	count := 0
	for _, ent := range s.Entities {
		if ent.Included {
			count++
		}
	}
	return count
}

// snapshotHolder hands out the latest snapshot. Only the synchronizer
// replaces it; everyone else receives read-only references.
type snapshotHolder struct {
	mu      sync.RWMutex
	current *Snapshot
	version uint64
}

func (h *snapshotHolder) Current() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

func (h *snapshotHolder) replace(next *Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.version++
	next.Version = h.version
	h.current = next
}
