package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"planner.commuteway.org/internal/models"
)

// BoundingBox defines the corners of a lat/lon box
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Contains checks whether the given latitude and longitude are within the bounding box
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ComputeBoundingBox computes the bounding box of a set of stops.
func ComputeBoundingBox(stops []models.Stop) (BoundingBox, error) {
	if len(stops) == 0 {
		return BoundingBox{}, fmt.Errorf("no stops to compute bounding box")
	}

	minLat := math.MaxFloat64
	maxLat := -math.MaxFloat64
	minLon := math.MaxFloat64
	maxLon := -math.MaxFloat64

	for _, stop := range stops {
		if !IsValidLatLon(stop.Lat, stop.Lng) {
			continue
		}
		minLat = math.Min(minLat, stop.Lat)
		maxLat = math.Max(maxLat, stop.Lat)
		minLon = math.Min(minLon, stop.Lng)
		maxLon = math.Max(maxLon, stop.Lng)
	}

	if minLat == math.MaxFloat64 {
		return BoundingBox{}, fmt.Errorf("no valid latitude/longitude found in stops")
	}

	return BoundingBox{
		MinLat: minLat,
		MaxLat: maxLat,
		MinLon: minLon,
		MaxLon: maxLon,
	}, nil
}

// BoundingBoxAround returns the smallest lat/lon box that contains every point
// within radiusMeters of center.
//
// The box is derived from an S2 cap, so it stays correct near the poles. When
// the cap crosses the antimeridian the longitude range is widened to the full
// [-180, 180] interval rather than returning an inverted box.
func BoundingBoxAround(center models.Coordinate, radiusMeters float64) BoundingBox {
	rect := searchCap(center, radiusMeters).RectBound()

	box := BoundingBox{
		MinLat: rect.Lo().Lat.Degrees(),
		MaxLat: rect.Hi().Lat.Degrees(),
		MinLon: rect.Lo().Lng.Degrees(),
		MaxLon: rect.Hi().Lng.Degrees(),
	}
	if rect.Lng.IsInverted() || rect.Lng.IsFull() {
		box.MinLon = -180
		box.MaxLon = 180
	}
	return box
}

// searchCap returns the spherical cap of the given radius around center.
func searchCap(center models.Coordinate, radiusMeters float64) s2.Cap {
	point := s2.PointFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lng))
	return s2.CapFromCenterAngle(point, s1.Angle(radiusMeters/earthRadiusInMeters))
}

// IsValidLatLon returns true if the given latitude and longitude values
// fall within the valid geographic coordinate bounds.
//
// Latitude must be between -90 and 90 degrees, and longitude must be
// between -180 and 180 degrees.
//
// Note: This function treats the coordinate (0,0) as invalid, even though it
// is a valid location in the Gulf of Guinea. This assumption is made to help
// detect uninitialized or placeholder coordinates commonly represented as (0,0).
func IsValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

// CoordinateError describes why a coordinate was rejected.
type CoordinateError struct {
	Field string
	Value models.Coordinate
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s: invalid coordinate (lat: %.6f, lng: %.6f)", e.Field, e.Value.Lat, e.Value.Lng)
}

// ValidateCoordinate returns a *CoordinateError when c is not a usable position.
func ValidateCoordinate(c models.Coordinate, field string) error {
	if !IsValidLatLon(c.Lat, c.Lng) {
		return &CoordinateError{Field: field, Value: c}
	}
	return nil
}

// earthRadiusInMeters represents the mean radius of the Earth in meters.
//
// This value (6,371,000 meters) is defined as the Earth's volumetric mean radius,
// which is commonly used for general geospatial calculations and spherical approximations.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusInMeters = 6371000

// HaversineDistance returns the great-circle distance in meters between two
// points given in decimal degrees.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusInMeters
}

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b models.Coordinate) float64 {
	return HaversineDistance(a.Lat, a.Lng, b.Lat, b.Lng)
}
