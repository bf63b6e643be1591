package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/s2"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/models"
)

// MemoryStore is a thread-safe in-memory store holding one network snapshot.
// Stops are bucketed by S2 cell so radius queries only touch nearby cells.
type MemoryStore struct {
	mu        sync.RWMutex
	stops     map[string]models.Stop
	stopIDs   []string               // sorted
	cells     map[s2.CellID][]string // stop IDs per cell at geo.IndexLevel
	buses     map[string]models.Bus
	routes    map[string]map[models.Direction][]models.RouteSegment
	stopBuses map[string]map[string]struct{} // stop ID -> IDs of buses visiting it
}

// NewMemoryStore initializes and returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stops:     make(map[string]models.Stop),
		cells:     make(map[s2.CellID][]string),
		buses:     make(map[string]models.Bus),
		routes:    make(map[string]map[models.Direction][]models.RouteSegment),
		stopBuses: make(map[string]map[string]struct{}),
	}
}

// ReplaceNetwork swaps the stored data for network. The indexes are built
// before the lock is taken, so readers only wait for the final swap.
func (s *MemoryStore) ReplaceNetwork(_ context.Context, network *models.Network) error {
	if network == nil {
		return fmt.Errorf("nil network")
	}

	stops := make(map[string]models.Stop, len(network.Stops))
	cells := make(map[s2.CellID][]string)
	stopIDs := make([]string, 0, len(network.Stops))
	for _, stop := range network.Stops {
		if _, dup := stops[stop.ID]; dup {
			return fmt.Errorf("duplicate stop %q", stop.ID)
		}
		stops[stop.ID] = stop
		stopIDs = append(stopIDs, stop.ID)
		cell := geo.CellID(stop.Coordinate(), geo.IndexLevel)
		cells[cell] = append(cells[cell], stop.ID)
	}
	sort.Strings(stopIDs)

	buses := make(map[string]models.Bus, len(network.Buses))
	for _, bus := range network.Buses {
		buses[bus.ID] = bus
	}

	routes := make(map[string]map[models.Direction][]models.RouteSegment, len(network.Routes))
	stopBuses := make(map[string]map[string]struct{})
	for busID, directions := range network.Routes {
		if _, ok := buses[busID]; !ok {
			return fmt.Errorf("route references unknown bus %q", busID)
		}
		routes[busID] = make(map[models.Direction][]models.RouteSegment, len(directions))
		for dir, segments := range directions {
			ordered := append([]models.RouteSegment(nil), segments...)
			sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })
			routes[busID][dir] = ordered

			for _, seg := range ordered {
				if _, ok := stops[seg.StopID]; !ok {
					return fmt.Errorf("bus %q %s references unknown stop %q", busID, dir, seg.StopID)
				}
				if stopBuses[seg.StopID] == nil {
					stopBuses[seg.StopID] = make(map[string]struct{})
				}
				stopBuses[seg.StopID][busID] = struct{}{}
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops = stops
	s.stopIDs = stopIDs
	s.cells = cells
	s.buses = buses
	s.routes = routes
	s.stopBuses = stopBuses
	return nil
}

func (s *MemoryStore) AllStops(_ context.Context) ([]models.Stop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Stop, 0, len(s.stopIDs))
	for _, id := range s.stopIDs {
		out = append(out, s.stops[id])
	}
	return out, nil
}

func (s *MemoryStore) StopsNear(_ context.Context, center models.Coordinate, radiusMeters float64) ([]models.Stop, error) {
	covering := geo.Covering(center, radiusMeters, geo.IndexLevel)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, cell := range covering {
		if cell.Level() >= geo.IndexLevel {
			ids = append(ids, s.cells[cell.Parent(geo.IndexLevel)]...)
			continue
		}
		for c := cell.ChildBeginAtLevel(geo.IndexLevel); c != cell.ChildEndAtLevel(geo.IndexLevel); c = c.Next() {
			ids = append(ids, s.cells[c]...)
		}
	}

	sort.Strings(ids)
	out := make([]models.Stop, 0, len(ids))
	for i, id := range ids {
		if i > 0 && ids[i-1] == id {
			continue
		}
		out = append(out, s.stops[id])
	}
	return out, nil
}

func (s *MemoryStore) Stop(_ context.Context, id string) (models.Stop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stop, ok := s.stops[id]
	if !ok {
		return models.Stop{}, fmt.Errorf("stop %q: %w", id, ErrNotFound)
	}
	return stop, nil
}

func (s *MemoryStore) Bus(_ context.Context, id string) (models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bus, ok := s.buses[id]
	if !ok {
		return models.Bus{}, fmt.Errorf("bus %q: %w", id, ErrNotFound)
	}
	return bus, nil
}

func (s *MemoryStore) BusesServingStops(_ context.Context, onboardingStopID, offboardingStopID string, q models.BusQuery) ([]models.Bus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Bus
	for busID := range s.stopBuses[onboardingStopID] {
		if _, ok := s.stopBuses[offboardingStopID][busID]; !ok {
			continue
		}
		bus := s.buses[busID]
		if !matchesQuery(bus, q) || !s.sharesDirection(busID, onboardingStopID, offboardingStopID) {
			continue
		}
		out = append(out, bus)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// sharesDirection reports whether one direction of busID visits both stops.
// Callers must hold the read lock.
func (s *MemoryStore) sharesDirection(busID, a, b string) bool {
	for _, segments := range s.routes[busID] {
		var hasA, hasB bool
		for _, seg := range segments {
			hasA = hasA || seg.StopID == a
			hasB = hasB || seg.StopID == b
		}
		if hasA && hasB {
			return true
		}
	}
	return false
}

func (s *MemoryStore) RouteSegments(_ context.Context, busID string, direction models.Direction) ([]models.RouteSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.buses[busID]; !ok {
		return nil, fmt.Errorf("bus %q: %w", busID, ErrNotFound)
	}
	return append([]models.RouteSegment(nil), s.routes[busID][direction]...), nil
}

func (s *MemoryStore) Close() error { return nil }
