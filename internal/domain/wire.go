package domain

import (
	"fmt"
	"math"
	"time"
)

// AxisDocument is the JSON form of an Axis. Time axes use RFC 3339 or
// YYYY-MM-DD strings in Times.
type AxisDocument struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values,omitempty"`
	Times  []string  `json:"times,omitempty"`
}

// RealizationDocument is the JSON form of one ensemble member. Null values mark
// missing data.
type RealizationDocument struct {
	ModelID       string            `json:"model_id"`
	MemberID      string            `json:"member_id,omitempty"`
	Axes          []AxisDocument    `json:"axes"`
	Values        []*float64        `json:"values"`
	Attrs         map[string]string `json:"attrs,omitempty"`
	UnitsOverride string            `json:"units_override,omitempty"`
	CellArea      []float64         `json:"cell_area,omitempty"`
}

// NewRealizationDocument encodes an input, writing NaN as null.
func NewRealizationDocument(in RealizationInput) RealizationDocument {
	doc := RealizationDocument{
		ModelID:       in.ModelID,
		MemberID:      in.MemberID,
		Attrs:         in.Field.Attrs,
		UnitsOverride: string(in.UnitsOverride),
		CellArea:      in.Field.CellArea,
		Values:        make([]*float64, len(in.Field.Values)),
	}
	for _, a := range in.Field.Axes {
		ad := AxisDocument{Name: a.Name, Values: a.Values}
		for _, t := range a.Times {
			ad.Times = append(ad.Times, t.UTC().Format(time.DateOnly))
		}
		doc.Axes = append(doc.Axes, ad)
	}
	for i, v := range in.Field.Values {
		if math.IsNaN(v) {
			continue
		}
		doc.Values[i] = &v
	}
	return doc
}

// ToInput decodes the document into a RealizationInput.
func (d RealizationDocument) ToInput() (RealizationInput, error) {
	in := RealizationInput{
		ModelID:       d.ModelID,
		MemberID:      d.MemberID,
		UnitsOverride: Units(d.UnitsOverride),
		Field: RawField{
			Attrs:    d.Attrs,
			CellArea: d.CellArea,
			Values:   make([]float64, len(d.Values)),
		},
	}
	for _, ad := range d.Axes {
		a := Axis{Name: ad.Name, Values: ad.Values}
		for _, s := range ad.Times {
			t, err := parseTimestamp(s)
			if err != nil {
				return RealizationInput{}, &ConfigurationError{
					Setting: "axis " + ad.Name,
					Reason:  fmt.Sprintf("member %s: %v", in.Label(), err),
				}
			}
			a.Times = append(a.Times, t)
		}
		in.Field.Axes = append(in.Field.Axes, a)
	}
	for i, v := range d.Values {
		if v == nil {
			in.Field.Values[i] = math.NaN()
			continue
		}
		in.Field.Values[i] = *v
	}
	return in, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q is neither YYYY-MM-DD nor RFC 3339", s)
	}
	return t.UTC(), nil
}

// PeriodDocument is the JSON form of a TimeRange in whole years.
type PeriodDocument struct {
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
	Season    string `json:"season,omitempty"`
}

// TimeRange converts the document, falling back to defaultSeason when no
// season is given. Season "all" selects every month.
func (p PeriodDocument) TimeRange(defaultSeason MonthRange) (TimeRange, error) {
	if p.EndYear < p.StartYear {
		return TimeRange{}, &ConfigurationError{Setting: "period", Reason: fmt.Sprintf("end_year %d before start_year %d", p.EndYear, p.StartYear)}
	}
	season := defaultSeason
	switch p.Season {
	case "":
	case "all":
		season = MonthRange{}
	default:
		s, err := ParseMonthRange(p.Season)
		if err != nil {
			return TimeRange{}, err
		}
		season = s
	}
	r := YearRange(p.StartYear, p.EndYear).WithSeason(season)
	return r, r.Validate()
}

// AnalysisRequestDocument is the JSON body of an analysis request.
//
// Baseline defaults to the configured baseline period. BaselineRealizations,
// when empty, means the baseline is computed from Realizations.
type AnalysisRequestDocument struct {
	Region               string                `json:"region"`
	Target               PeriodDocument        `json:"target"`
	Baseline             *PeriodDocument       `json:"baseline,omitempty"`
	Realizations         []RealizationDocument `json:"realizations"`
	BaselineRealizations []RealizationDocument `json:"baseline_realizations,omitempty"`
	Trends               bool                  `json:"trends,omitempty"`
	Partition            bool                  `json:"partition,omitempty"`
}
