package geo

import (
	"github.com/golang/geo/s2"
	"planner.commuteway.org/internal/models"
)

// IndexLevel is the S2 cell level used to bucket stops, roughly 600m cells.
const IndexLevel = 14

// CellID returns the S2 cell at the given level that contains c.
func CellID(c models.Coordinate, level int) s2.CellID {
	ll := s2.LatLngFromDegrees(c.Lat, c.Lng)
	return s2.CellIDFromLatLng(ll).Parent(level)
}

// Covering returns the cells at the given level that cover every point within
// radiusMeters of center. The union may also contain coarser cells when the
// coverer normalizes, so callers should test membership with ContainsCellID.
func Covering(center models.Coordinate, radiusMeters float64, level int) s2.CellUnion {
	coverer := &s2.RegionCoverer{
		MinLevel: level,
		MaxLevel: level,
		MaxCells: 64,
	}
	return coverer.Covering(searchCap(center, radiusMeters))
}
