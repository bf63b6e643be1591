package gtfs

import (
	"sync"
	"time"

	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/utils"
)

// BundleInfo describes the bundle a feed's network was last built from.
type BundleInfo struct {
	Feed          string            `json:"feed"`
	Source        string            `json:"source"`
	FromCache     bool              `json:"from_cache"`
	LoadedAt      time.Time         `json:"loaded_at"`
	Stops         int               `json:"stops"`
	Buses         int               `json:"buses"`
	Routes        int               `json:"routes"`
	EarliestEndAt utils.ServiceDate `json:"earliest_service_end"`
	LatestEndAt   utils.ServiceDate `json:"latest_service_end"`
	// Bounds is the area covered by the stops, nil for an empty network.
	Bounds *geo.BoundingBox `json:"bounds,omitempty"`
}

// BundleStore is a thread-safe in-memory record of loaded bundles, indexed
// by feed name.
type BundleStore struct {
	mu   sync.RWMutex
	data map[string]BundleInfo
}

func NewBundleStore() *BundleStore {
	return &BundleStore{}
}

func (s *BundleStore) Set(info BundleInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]BundleInfo)
	}
	s.data[info.Feed] = info
}

func (s *BundleStore) Get(feed string) (BundleInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, exists := s.data[feed]
	return info, exists
}
