package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/basflight/bas-console/internal/utils"
)

// DateRange bounds every statistics query by calendar day, both ends inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Today returns a range covering only the calendar day of now.
func Today(now time.Time) DateRange {
	day := utils.TruncateDay(now)
	return DateRange{Start: day, End: day}
}

// ParseDateRange builds a range from two YYYY-MM-DD values without reordering them.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := utils.ParseDate(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("start: %w", err)
	}
	e, err := utils.ParseDate(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("end: %w", err)
	}
	return DateRange{Start: s, End: e}, nil
}

// IsZero reports whether either bound is unset.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() || r.End.IsZero()
}

// Normalize truncates both bounds to calendar days and swaps them when out of order.
func (r DateRange) Normalize() DateRange {
	r.Start, r.End = utils.TruncateDay(r.Start), utils.TruncateDay(r.End)
	if r.End.Before(r.Start) {
		r.Start, r.End = r.End, r.Start
	}
	return r
}

// Equal compares ranges by calendar day.
func (r DateRange) Equal(other DateRange) bool {
	return r.StartDate() == other.StartDate() && r.EndDate() == other.EndDate()
}

// Days returns the inclusive number of calendar days in the range.
func (r DateRange) Days() int {
	if r.IsZero() {
		return 0
	}
	return utils.DaysInclusive(r.Start, r.End)
}

// StartDate renders the lower bound as YYYY-MM-DD.
func (r DateRange) StartDate() string { return utils.FormatDate(r.Start) }

// EndDate renders the upper bound as YYYY-MM-DD.
func (r DateRange) EndDate() string { return utils.FormatDate(r.End) }

func (r DateRange) String() string {
	return r.StartDate() + ".." + r.EndDate()
}

type dateRangeWire struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON encodes the range as {"start":"YYYY-MM-DD","end":"YYYY-MM-DD"}.
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeWire{Start: r.StartDate(), End: r.EndDate()})
}

// UnmarshalJSON accepts the form produced by MarshalJSON.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var wire dateRangeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	parsed, err := ParseDateRange(wire.Start, wire.End)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
