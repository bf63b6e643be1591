package planner

import (
	"slices"

	"planner.commuteway.org/internal/filter"
)

// reconfigure applies fn to copies of the filter and sort configuration and
// re-derives the displayed results from the stored ones. An invalid
// configuration is rejected and leaves the state unchanged apart from
// State.Error.
func (p *Planner) reconfigure(field string, fn func(f *filter.Config, sc *filter.SortConfig) error) error {
	var verr *ValidationError
	p.update(func(s *State) {
		f, sc := s.Filters, s.Sort
		err := fn(&f, &sc)
		if err == nil {
			err = f.Validate()
		}
		if err != nil {
			verr = invalid(field, err)
			s.Error = verr.Error()
			p.configError = true
			return
		}

		s.Filters, s.Sort = f, sc
		p.memo.Flush()
		s.DisplayedResults = p.displayLocked(s)
		if p.configError {
			s.Error = ""
			p.configError = false
		}
	})
	if verr != nil {
		return verr
	}
	return nil
}

// SetACFilter keeps only AC buses for true, only non-AC buses for false and
// clears the filter for nil.
func (p *Planner) SetACFilter(ac *bool) {
	_ = p.reconfigure("ac", func(f *filter.Config, _ *filter.SortConfig) error {
		f.AC = copyPtr(ac)
		return nil
	})
}

// SetCoachTypeFilter keeps buses of the given coach types. An empty list
// clears the filter.
func (p *Planner) SetCoachTypeFilter(types []string) {
	_ = p.reconfigure("coach_types", func(f *filter.Config, _ *filter.SortConfig) error {
		if len(types) == 0 {
			f.CoachTypes = nil
		} else {
			f.CoachTypes = append([]string(nil), types...)
		}
		return nil
	})
}

// SetJourneyLengthRange bounds the on-bus distance in km. A nil bound is open.
func (p *Planner) SetJourneyLengthRange(minKm, maxKm *float64) error {
	return p.reconfigure("journey_length", func(f *filter.Config, _ *filter.SortConfig) error {
		f.MinJourneyKm, f.MaxJourneyKm = copyPtr(minKm), copyPtr(maxKm)
		return nil
	})
}

// SetMaxWalkingDistance caps the total walking distance in km. Nil clears it.
func (p *Planner) SetMaxWalkingDistance(km *float64) error {
	return p.reconfigure("max_walking", func(f *filter.Config, _ *filter.SortConfig) error {
		f.MaxWalkingKm = copyPtr(km)
		return nil
	})
}

// SetFilters replaces every filter in one step, publishing a single
// snapshot. The ordering is kept.
func (p *Planner) SetFilters(c filter.Config) error {
	return p.reconfigure("filters", func(f *filter.Config, _ *filter.SortConfig) error {
		*f = filter.Config{
			AC:           copyPtr(c.AC),
			CoachTypes:   slices.Clone(c.CoachTypes),
			MinJourneyKm: copyPtr(c.MinJourneyKm),
			MaxJourneyKm: copyPtr(c.MaxJourneyKm),
			MaxWalkingKm: copyPtr(c.MaxWalkingKm),
		}
		return nil
	})
}

func (p *Planner) SetSortBy(by filter.SortBy) error {
	return p.reconfigure("sort_by", func(_ *filter.Config, sc *filter.SortConfig) error {
		parsed, err := filter.ParseSortBy(string(by))
		if err != nil {
			return err
		}
		sc.By = parsed
		return nil
	})
}

func (p *Planner) SetSortOrder(order filter.Order) error {
	return p.reconfigure("sort_order", func(_ *filter.Config, sc *filter.SortConfig) error {
		parsed, err := filter.ParseOrder(string(order))
		if err != nil {
			return err
		}
		sc.Order = parsed
		return nil
	})
}

// ClearAllFilters removes every filter and the ordering.
func (p *Planner) ClearAllFilters() {
	_ = p.reconfigure("filters", func(f *filter.Config, sc *filter.SortConfig) error {
		*f, *sc = filter.Config{}, filter.SortConfig{}
		return nil
	})
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
