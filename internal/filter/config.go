package filter

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Config is the serializable filter state. Nil fields are unset.
type Config struct {
	AC           *bool    `json:"ac,omitempty"`
	CoachTypes   []string `json:"coach_types,omitempty"`
	MinJourneyKm *float64 `json:"min_journey_km,omitempty"`
	MaxJourneyKm *float64 `json:"max_journey_km,omitempty"`
	MaxWalkingKm *float64 `json:"max_walking_km,omitempty"`
}

// Validate rejects negative or NaN bounds and inverted ranges.
func (c Config) Validate() error {
	check := func(name string, v *float64) error {
		if v != nil && (math.IsNaN(*v) || *v < 0) {
			return fmt.Errorf("%s must be a non-negative number", name)
		}
		return nil
	}
	if err := errors.Join(
		check("min_journey_km", c.MinJourneyKm),
		check("max_journey_km", c.MaxJourneyKm),
		check("max_walking_km", c.MaxWalkingKm),
	); err != nil {
		return err
	}
	if c.MinJourneyKm != nil && c.MaxJourneyKm != nil && *c.MinJourneyKm > *c.MaxJourneyKm {
		return fmt.Errorf("min_journey_km %.2f is greater than max_journey_km %.2f", *c.MinJourneyKm, *c.MaxJourneyKm)
	}
	return nil
}

// Spec rebuilds the fluent form of c. A missing journey bound is open.
func (c Config) Spec() *Spec {
	s := NewSpec()
	if c.AC != nil {
		s.WithAC(*c.AC)
	}
	if len(c.CoachTypes) > 0 {
		s.WithCoachTypes(c.CoachTypes...)
	}
	if c.MinJourneyKm != nil || c.MaxJourneyKm != nil {
		minKm, maxKm := 0.0, math.Inf(1)
		if c.MinJourneyKm != nil {
			minKm = *c.MinJourneyKm
		}
		if c.MaxJourneyKm != nil {
			maxKm = *c.MaxJourneyKm
		}
		s.WithJourneyLengthRange(minKm, maxKm)
	}
	if c.MaxWalkingKm != nil {
		s.WithMaxTotalWalking(*c.MaxWalkingKm)
	}
	return s
}

// IsZero reports whether no filter is set.
func (c Config) IsZero() bool {
	return c.AC == nil && len(c.CoachTypes) == 0 && c.MinJourneyKm == nil && c.MaxJourneyKm == nil && c.MaxWalkingKm == nil
}

// CacheKey encodes a filter, an ordering and a result generation as one
// string. Equivalent configurations produce the same key: coach types are
// compared as a set.
func CacheKey(c Config, sc SortConfig, generation uint64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))

	b.WriteByte('|')
	if c.AC != nil {
		b.WriteString(strconv.FormatBool(*c.AC))
	}

	b.WriteByte('|')
	types := slices.Clone(c.CoachTypes)
	slices.Sort(types)
	b.WriteString(strings.Join(slices.Compact(types), ","))

	for _, v := range []*float64{c.MinJourneyKm, c.MaxJourneyKm, c.MaxWalkingKm} {
		b.WriteByte('|')
		if v != nil {
			b.WriteString(strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}

	b.WriteByte('|')
	b.WriteString(string(sc.By))
	b.WriteByte('|')
	if sc.By != SortNone {
		order := sc.Order
		if order == "" {
			order = OrderAsc
		}
		b.WriteString(string(order))
	}
	return b.String()
}
