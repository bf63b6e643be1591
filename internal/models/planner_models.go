package models

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stop is a physical boarding point as stored in the stop store.
// The engine never mutates stops.
type Stop struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Accessible bool    `json:"accessible"`
}

// Coordinate returns the position of the stop.
func (s Stop) Coordinate() Coordinate {
	return Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Method identifies the algorithm that produced a distance.
type Method string

const (
	MethodNetwork     Method = "network"
	MethodGreatCircle Method = "great_circle"
)

// DistanceResult is one origin/destination cell of a distance matrix.
type DistanceResult struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	Method          Method  `json:"method"`
}

// DiscoveredStop is a Stop annotated with its distance from the point
// used for discovery. It is created fresh for every discovery call.
type DiscoveredStop struct {
	Stop
	DistanceMeters float64 `json:"distance_meters"`
	DistanceMethod Method  `json:"distance_method"`
}

// Direction is one of the two independent stop orderings of a bus.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Directions lists both directions in matching order.
var Directions = []Direction{DirectionOutbound, DirectionInbound}

// BusStatusActive is the only status considered by route matching.
const BusStatusActive = "active"

// Bus holds the identity and attributes of a bus line.
type Bus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsAC      bool   `json:"is_ac"`
	CoachType string `json:"coach_type"`
	Status    string `json:"status"`
}

// RouteSegment is one entry of a bus's directional stop list.
// DistanceToNextKm is the precomputed on-bus distance to the following
// stop in the same direction; it is zero for the last stop.
type RouteSegment struct {
	BusID            string    `json:"bus_id"`
	Direction        Direction `json:"direction"`
	Sequence         int       `json:"sequence"`
	StopID           string    `json:"stop_id"`
	DistanceToNextKm float64   `json:"distance_to_next_km"`
}

// BusMatch is a bus that connects an onboarding stop to an offboarding stop.
// OnboardingOrder and OffboardingOrder are zero-based positions in the
// ordered stop list of Direction, and OnboardingOrder < OffboardingOrder.
// IntermediateSegments holds the segments from the onboarding position up
// to, but excluding, the offboarding position.
type BusMatch struct {
	Bus                  Bus            `json:"bus"`
	Direction            Direction      `json:"direction"`
	OnboardingOrder      int            `json:"onboarding_order"`
	OffboardingOrder     int            `json:"offboarding_order"`
	IntermediateSegments []RouteSegment `json:"intermediate_segments"`
}

// RawBusResult is the undecorated identity passed into the enhancement pipeline.
type RawBusResult struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IsAC            bool      `json:"is_ac"`
	CoachType       string    `json:"coach_type"`
	Direction       Direction `json:"direction"`
	OnboardingStop  Stop      `json:"onboarding_stop"`
	OffboardingStop Stop      `json:"offboarding_stop"`
}

// EnhancedBusResult is a RawBusResult with every computed metric.
// Values are never mutated after construction; a new value is built when any
// input changes.
type EnhancedBusResult struct {
	RawBusResult
	JourneyLengthKm          float64 `json:"journey_length_km"`
	WalkingToOnboardingKm    float64 `json:"walking_to_onboarding_km"`
	WalkingFromOffboardingKm float64 `json:"walking_from_offboarding_km"`
	TotalWalkingKm           float64 `json:"total_walking_km"`
	TotalDistanceKm          float64 `json:"total_distance_km"`
	EstimatedJourneyMinutes  float64 `json:"estimated_journey_minutes"`
	EstimatedWalkingMinutes  float64 `json:"estimated_walking_minutes"`
	EstimatedTotalMinutes    float64 `json:"estimated_total_minutes"`
}

// BusQuery carries the filter predicates that a store can apply while
// selecting buses. A nil AC means "any".
type BusQuery struct {
	AC         *bool
	CoachTypes []string
}

// Network is a complete snapshot of the stop and route data, used to load
// the in-memory store and to import into an SQL store.
//
// IMPORTANT:
// Routes must hold the segments of each direction ordered by Sequence.
type Network struct {
	Stops  []Stop
	Buses  []Bus
	Routes map[string]map[Direction][]RouteSegment
}

// NewNetwork returns an empty Network with initialized maps.
func NewNetwork() *Network {
	return &Network{
		Routes: make(map[string]map[Direction][]RouteSegment),
	}
}

// AddRoute stores the ordered segments of one bus direction.
func (n *Network) AddRoute(busID string, direction Direction, segments []RouteSegment) {
	if n.Routes == nil {
		n.Routes = make(map[string]map[Direction][]RouteSegment)
	}
	if _, ok := n.Routes[busID]; !ok {
		n.Routes[busID] = make(map[Direction][]RouteSegment)
	}
	n.Routes[busID][direction] = append([]RouteSegment(nil), segments...)
}
