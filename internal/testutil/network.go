// Package testutil provides a small fixed bus network and helpers shared by
// package tests.
package testutil

import (
	"io"
	"log/slog"

	"planner.commuteway.org/internal/models"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Stop IDs of the fixture network, roughly north to south through Dhaka.
const (
	Banani      = "banani"
	Mohakhali   = "mohakhali"
	Farmgate    = "farmgate"
	KarwanBazar = "karwan-bazar"
	Shahbag     = "shahbag"
	PressClub   = "press-club"
	Gulistan    = "gulistan"
	Motijheel   = "motijheel"
)

// Stops returns the fixture stops.
func Stops() []models.Stop {
	return []models.Stop{
		{ID: Banani, Name: "Banani", Lat: 23.7940, Lng: 90.4043, Accessible: true},
		{ID: Mohakhali, Name: "Mohakhali", Lat: 23.7781, Lng: 90.4051},
		{ID: Farmgate, Name: "Farmgate", Lat: 23.7580, Lng: 90.3900, Accessible: true},
		{ID: KarwanBazar, Name: "Karwan Bazar", Lat: 23.7510, Lng: 90.3932},
		{ID: Shahbag, Name: "Shahbag", Lat: 23.7383, Lng: 90.3958},
		{ID: PressClub, Name: "Press Club", Lat: 23.7301, Lng: 90.4010},
		{ID: Gulistan, Name: "Gulistan", Lat: 23.7235, Lng: 90.4121},
		{ID: Motijheel, Name: "Motijheel", Lat: 23.7331, Lng: 90.4181},
	}
}

// StopByID returns the fixture stop with the given ID.
func StopByID(id string) models.Stop {
	for _, s := range Stops() {
		if s.ID == id {
			return s
		}
	}
	panic("unknown fixture stop " + id)
}

// Route builds the ordered segments of one bus direction. distances[i] is
// the distance from stopIDs[i] to stopIDs[i+1]; missing values are zero.
func Route(busID string, dir models.Direction, distances []float64, stopIDs ...string) []models.RouteSegment {
	out := make([]models.RouteSegment, len(stopIDs))
	for i, id := range stopIDs {
		out[i] = models.RouteSegment{
			BusID:     busID,
			Direction: dir,
			Sequence:  i + 1,
			StopID:    id,
		}
		if i < len(distances) && i < len(stopIDs)-1 {
			out[i].DistanceToNextKm = distances[i]
		}
	}
	return out
}

// Network returns the fixture network:
//
//	bus-1  non-AC standard  Mohakhali .. Gulistan, both directions
//	bus-2  AC minibus       Banani .. Shahbag, both directions
//	bus-3  inactive         Farmgate .. Shahbag
//	bus-4  AC standard      loop Farmgate, Karwan Bazar, Shahbag, Farmgate, Motijheel (outbound only)
//	bus-5  non-AC double decker through all eight stops, segments 1,1,2,1,1,1,1 km
func Network() *models.Network {
	n := models.NewNetwork()
	n.Stops = Stops()
	n.Buses = []models.Bus{
		{ID: "bus-1", Name: "Bikolpo", IsAC: false, CoachType: "standard", Status: models.BusStatusActive},
		{ID: "bus-2", Name: "Green Dhaka", IsAC: true, CoachType: "minibus", Status: models.BusStatusActive},
		{ID: "bus-3", Name: "Retired Line", IsAC: true, CoachType: "standard", Status: "inactive"},
		{ID: "bus-4", Name: "Circular", IsAC: true, CoachType: "standard", Status: models.BusStatusActive},
		{ID: "bus-5", Name: "BRTC Double Decker", IsAC: false, CoachType: "double_decker", Status: models.BusStatusActive},
	}

	n.AddRoute("bus-1", models.DirectionOutbound, Route("bus-1", models.DirectionOutbound,
		[]float64{2.5, 0.8, 1.5, 1.0, 1.3}, Mohakhali, Farmgate, KarwanBazar, Shahbag, PressClub, Gulistan))
	n.AddRoute("bus-1", models.DirectionInbound, Route("bus-1", models.DirectionInbound,
		[]float64{1.3, 1.0, 1.5, 0.8, 2.5}, Gulistan, PressClub, Shahbag, KarwanBazar, Farmgate, Mohakhali))

	n.AddRoute("bus-2", models.DirectionOutbound, Route("bus-2", models.DirectionOutbound,
		[]float64{1.8, 2.5, 0.8, 1.5}, Banani, Mohakhali, Farmgate, KarwanBazar, Shahbag))
	n.AddRoute("bus-2", models.DirectionInbound, Route("bus-2", models.DirectionInbound,
		[]float64{1.5, 0.8, 2.5, 1.8}, Shahbag, KarwanBazar, Farmgate, Mohakhali, Banani))

	n.AddRoute("bus-3", models.DirectionOutbound, Route("bus-3", models.DirectionOutbound,
		[]float64{0.8, 1.5}, Farmgate, KarwanBazar, Shahbag))

	n.AddRoute("bus-4", models.DirectionOutbound, Route("bus-4", models.DirectionOutbound,
		[]float64{0.8, 1.5, 2.3, 4.0}, Farmgate, KarwanBazar, Shahbag, Farmgate, Motijheel))

	n.AddRoute("bus-5", models.DirectionOutbound, Route("bus-5", models.DirectionOutbound,
		[]float64{1, 1, 2, 1, 1, 1, 1}, Banani, Mohakhali, Farmgate, KarwanBazar, Shahbag, PressClub, Gulistan, Motijheel))

	return n
}
