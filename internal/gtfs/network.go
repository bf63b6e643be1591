package gtfs

import (
	"fmt"
	"sort"

	remoteGtfs "github.com/jamespfennell/gtfs"
	"planner.commuteway.org/internal/geo"
	"planner.commuteway.org/internal/models"
)

// DefaultCoachType is assigned to every imported bus. GTFS has no notion of
// coach types or air conditioning.
const DefaultCoachType = "standard"

type routeDirection struct {
	routeID   string
	direction models.Direction
}

// BuildNetwork converts the bus routes of a static bundle into a network.
// The longest trip of each route and direction is used as its stop
// sequence, and segment distances are measured on the great circle.
// Stops without valid coordinates are skipped.
func BuildNetwork(static *remoteGtfs.Static) (*models.Network, error) {
	if static == nil {
		return nil, fmt.Errorf("static data is nil")
	}

	canonical := make(map[routeDirection]*remoteGtfs.ScheduledTrip)
	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil || trip.Route.Type != remoteGtfs.RouteType_Bus {
			continue
		}
		key := routeDirection{routeID: trip.Route.Id, direction: directionOf(trip.DirectionId)}
		if current, ok := canonical[key]; !ok || len(trip.StopTimes) > len(current.StopTimes) {
			canonical[key] = trip
		}
	}
	if len(canonical) == 0 {
		return nil, fmt.Errorf("no bus trips found in GTFS bundle")
	}

	network := models.NewNetwork()
	stops := make(map[string]models.Stop)
	buses := make(map[string]models.Bus)

	keys := make([]routeDirection, 0, len(canonical))
	for key := range canonical {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].routeID != keys[j].routeID {
			return keys[i].routeID < keys[j].routeID
		}
		return keys[i].direction > keys[j].direction
	})

	for _, key := range keys {
		trip := canonical[key]
		var segments []models.RouteSegment
		var previous *models.Stop

		for _, stopTime := range trip.StopTimes {
			stop, ok := convertStop(stopTime.Stop)
			if !ok {
				continue
			}
			if previous != nil && previous.ID == stop.ID {
				continue
			}
			stops[stop.ID] = stop

			if previous != nil {
				segments[len(segments)-1].DistanceToNextKm = geo.Distance(previous.Coordinate(), stop.Coordinate()) / 1000
			}
			segments = append(segments, models.RouteSegment{
				BusID:     key.routeID,
				Direction: key.direction,
				Sequence:  len(segments) + 1,
				StopID:    stop.ID,
			})
			previous = &stop
		}

		if len(segments) < 2 {
			continue
		}
		network.AddRoute(key.routeID, key.direction, segments)
		if _, ok := buses[key.routeID]; !ok {
			buses[key.routeID] = convertRoute(trip.Route)
		}
	}

	for _, stop := range stops {
		network.Stops = append(network.Stops, stop)
	}
	sort.Slice(network.Stops, func(i, j int) bool { return network.Stops[i].ID < network.Stops[j].ID })
	for _, bus := range buses {
		network.Buses = append(network.Buses, bus)
	}
	sort.Slice(network.Buses, func(i, j int) bool { return network.Buses[i].ID < network.Buses[j].ID })

	return network, nil
}

// directionOf maps direction_id 1 to inbound and everything else, including
// an unspecified direction, to outbound.
func directionOf(id remoteGtfs.DirectionID) models.Direction {
	if id == remoteGtfs.DirectionID_True {
		return models.DirectionInbound
	}
	return models.DirectionOutbound
}

func convertStop(s *remoteGtfs.Stop) (models.Stop, bool) {
	if s == nil || s.Latitude == nil || s.Longitude == nil {
		return models.Stop{}, false
	}
	if !geo.IsValidLatLon(*s.Latitude, *s.Longitude) {
		return models.Stop{}, false
	}
	return models.Stop{
		ID:         s.Id,
		Name:       s.Name,
		Lat:        *s.Latitude,
		Lng:        *s.Longitude,
		Accessible: s.WheelchairBoarding == remoteGtfs.WheelchairBoarding_Possible,
	}, true
}

func convertRoute(r *remoteGtfs.Route) models.Bus {
	name := r.ShortName
	if name == "" {
		name = r.LongName
	}
	if name == "" {
		name = r.Id
	}
	return models.Bus{
		ID:        r.Id,
		Name:      name,
		IsAC:      false,
		CoachType: DefaultCoachType,
		Status:    models.BusStatusActive,
	}
}
