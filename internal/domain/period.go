package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthRange selects calendar months From..To inclusive. A range with From > To
// wraps over the year end (e.g. Oct-Dec-Jan). The zero value selects every month.
type MonthRange struct {
	From time.Month `json:"from,omitempty"`
	To   time.Month `json:"to,omitempty"`
}

// Monsoon is the June–September (JJAS) wet season.
var Monsoon = MonthRange{From: time.June, To: time.September}

// IsZero reports whether the range is unset.
func (m MonthRange) IsZero() bool { return m.From == 0 && m.To == 0 }

// Contains reports whether the month falls inside the range.
func (m MonthRange) Contains(month time.Month) bool {
	if m.IsZero() {
		return true
	}
	if m.From <= m.To {
		return month >= m.From && month <= m.To
	}
	return month >= m.From || month <= m.To
}

func (m MonthRange) String() string {
	if m.IsZero() {
		return "all months"
	}
	return m.From.String()[:3] + "-" + m.To.String()[:3]
}

// ParseMonthRange parses "6-9" style month ranges. An empty string yields the zero range.
func ParseMonthRange(s string) (MonthRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MonthRange{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return MonthRange{}, &ConfigurationError{Setting: "season", Reason: fmt.Sprintf("%q is not a FROM-TO month range", s)}
	}
	f, errF := strconv.Atoi(strings.TrimSpace(from))
	t, errT := strconv.Atoi(strings.TrimSpace(to))
	if errF != nil || errT != nil || f < 1 || f > 12 || t < 1 || t > 12 {
		return MonthRange{}, &ConfigurationError{Setting: "season", Reason: fmt.Sprintf("%q must use month numbers 1-12", s)}
	}
	return MonthRange{From: time.Month(f), To: time.Month(t)}, nil
}

// TimeRange is an analysis period: Start inclusive, End exclusive, optionally
// restricted to a season.
type TimeRange struct {
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Season MonthRange `json:"season,omitzero"`
}

// YearRange covers calendar years from..to inclusive.
func YearRange(from, to int) TimeRange {
	return TimeRange{
		Start: time.Date(from, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(to+1, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithSeason returns a copy restricted to the given season.
func (r TimeRange) WithSeason(season MonthRange) TimeRange {
	r.Season = season
	return r
}

// Contains reports whether t falls within the period and its season.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End) && r.Season.Contains(t.Month())
}

// Validate checks that the period is non-empty.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ConfigurationError{Setting: "period", Reason: "start and end are required"}
	}
	if !r.End.After(r.Start) {
		return &ConfigurationError{Setting: "period", Reason: fmt.Sprintf("end %s is not after start %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))}
	}
	return nil
}

// Years lists the calendar years touched by the period.
func (r TimeRange) Years() []int {
	if !r.End.After(r.Start) {
		return nil
	}
	last := r.End.Add(-time.Nanosecond).Year()
	years := make([]int, 0, last-r.Start.Year()+1)
	for y := r.Start.Year(); y <= last; y++ {
		years = append(years, y)
	}
	return years
}

// Year restricts the period to a single calendar year, keeping the season.
func (r TimeRange) Year(y int) TimeRange {
	out := YearRange(y, y).WithSeason(r.Season)
	if out.Start.Before(r.Start) {
		out.Start = r.Start
	}
	if out.End.After(r.End) {
		out.End = r.End
	}
	return out
}

func (r TimeRange) String() string {
	var span string
	if isYearStart(r.Start) && isYearStart(r.End) {
		span = fmt.Sprintf("%d-%d", r.Start.Year(), r.End.Year()-1)
	} else {
		span = r.Start.Format(time.DateOnly) + ".." + r.End.Format(time.DateOnly)
	}
	if r.Season.IsZero() {
		return span
	}
	return span + " (" + r.Season.String() + ")"
}

func isYearStart(t time.Time) bool {
	return t.Month() == time.January && t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
