package utils

import (
	"encoding/json"
	"time"
)

const YYYYMMDD = "20060102"

// ServiceDate is a calendar date serialized in the GTFS "YYYYMMDD" form,
// e.g. "20251231".
type ServiceDate time.Time

func (d ServiceDate) MarshalJSON() ([]byte, error) {
	if time.Time(d).IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(d).Format(YYYYMMDD))
}

func (d *ServiceDate) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = ServiceDate{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(YYYYMMDD, s)
	if err != nil {
		return err
	}
	*d = ServiceDate(t)
	return nil
}

func (d ServiceDate) Time() time.Time {
	return time.Time(d)
}
