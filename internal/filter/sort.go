package filter

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"planner.commuteway.org/internal/models"
)

// SortBy names the field results are ordered by. The empty value keeps the
// order the results were produced in.
type SortBy string

const (
	SortNone          SortBy = ""
	SortJourneyLength SortBy = "journeyLength"
	SortTotalWalking  SortBy = "totalWalking"
	SortTotalDistance SortBy = "totalDistance"
	SortEstimatedTime SortBy = "estimatedTime"
	SortName          SortBy = "name"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// SortConfig is the active ordering. The zero value keeps the original order.
type SortConfig struct {
	By    SortBy `json:"sort_by"`
	Order Order  `json:"sort_order"`
}

// ParseSortBy accepts the empty string and every known field name.
func ParseSortBy(s string) (SortBy, error) {
	switch by := SortBy(s); by {
	case SortNone, SortJourneyLength, SortTotalWalking, SortTotalDistance, SortEstimatedTime, SortName:
		return by, nil
	}
	return SortNone, fmt.Errorf("unknown sort field %q", s)
}

// ParseOrder defaults to ascending for the empty string.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(s) {
	case "", string(OrderAsc):
		return OrderAsc, nil
	case string(OrderDesc):
		return OrderDesc, nil
	}
	return OrderAsc, fmt.Errorf("unknown sort order %q", s)
}

func (c SortConfig) comparator() func(a, b models.EnhancedBusResult) int {
	var key func(a, b models.EnhancedBusResult) int
	switch c.By {
	case SortJourneyLength:
		key = func(a, b models.EnhancedBusResult) int { return cmp.Compare(a.JourneyLengthKm, b.JourneyLengthKm) }
	case SortTotalWalking:
		key = func(a, b models.EnhancedBusResult) int { return cmp.Compare(a.TotalWalkingKm, b.TotalWalkingKm) }
	case SortTotalDistance:
		key = func(a, b models.EnhancedBusResult) int { return cmp.Compare(a.TotalDistanceKm, b.TotalDistanceKm) }
	case SortEstimatedTime:
		key = func(a, b models.EnhancedBusResult) int {
			return cmp.Compare(a.EstimatedTotalMinutes, b.EstimatedTotalMinutes)
		}
	case SortName:
		key = func(a, b models.EnhancedBusResult) int { return strings.Compare(a.Name, b.Name) }
	default:
		return nil
	}
	if c.Order == OrderDesc {
		return func(a, b models.EnhancedBusResult) int { return key(b, a) }
	}
	return key
}

// Sort returns a stably ordered copy of results. Equal elements keep their
// relative order in both directions.
func Sort(results []models.EnhancedBusResult, c SortConfig) []models.EnhancedBusResult {
	out := slices.Clone(results)
	if out == nil {
		out = []models.EnhancedBusResult{}
	}
	if cmpFn := c.comparator(); cmpFn != nil {
		slices.SortStableFunc(out, cmpFn)
	}
	return out
}
