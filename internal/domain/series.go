package domain

import (
	"slices"
	"time"
)

// RealizationInput is one ensemble member as delivered by the ingestion side.
type RealizationInput struct {
	ModelID  string
	MemberID string
	Field    RawField

	// UnitsOverride forces the source units when neither the units attribute
	// nor the magnitude heuristic can settle them.
	UnitsOverride Units
}

// Label identifies the member in logs and error messages.
func (r RealizationInput) Label() string { return memberLabel(r.ModelID, r.MemberID) }

// UnitSource records how the source units of a series were established.
type UnitSource string

const (
	UnitSourceAttribute UnitSource = "attribute"
	UnitSourceMagnitude UnitSource = "magnitude"
	UnitSourceOverride  UnitSource = "override"
)

// QualityReport summarizes data-quality findings for one normalized member.
type QualityReport struct {
	Member          string     `json:"member"`
	TotalCells      int        `json:"total_cells"`
	MissingCells    int        `json:"missing_cells"`
	MissingFraction float64    `json:"missing_fraction"`
	NaNValues       int        `json:"nan_values"`
	NegativeValues  int        `json:"negative_values"`
	Min             float64    `json:"min"`
	Max             float64    `json:"max"`
	SourceUnits     Units      `json:"source_units"`
	UnitSource      UnitSource `json:"unit_source"`
	UnitConfidence  float64    `json:"unit_confidence"`
}

// RealizationSeries is one normalized ensemble member. It is produced by the
// normalizer and must be treated as read-only afterwards.
type RealizationSeries struct {
	ModelID  string
	MemberID string
	Field    GriddedField

	// Missing flags spatial cells whose entire series is NaN. Flagged cells
	// stay in the grid but are excluded from index and region statistics.
	Missing []bool
	Quality QualityReport
}

// Label identifies the member in logs and error messages.
func (s RealizationSeries) Label() string { return memberLabel(s.ModelID, s.MemberID) }

// Raw converts the series back into a RawField with canonical axis names and a
// declared mm/day units attribute.
func (s RealizationSeries) Raw() RealizationInput {
	return RealizationInput{
		ModelID:  s.ModelID,
		MemberID: s.MemberID,
		Field: RawField{
			Axes: []Axis{
				{Name: "time", Times: slices.Clone(s.Field.Time)},
				{Name: "lat", Values: slices.Clone(s.Field.Lat)},
				{Name: "lon", Values: slices.Clone(s.Field.Lon)},
			},
			Values:   slices.Clone(s.Field.Values),
			Attrs:    map[string]string{UnitsAttr: string(UnitsDepthPerDay)},
			CellArea: slices.Clone(s.Field.CellArea),
		},
	}
}

// TimeSpan returns the first and last time step of the series.
func (s RealizationSeries) TimeSpan() (time.Time, time.Time) {
	if len(s.Field.Time) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Field.Time[0], s.Field.Time[len(s.Field.Time)-1]
}

func memberLabel(model, member string) string {
	switch {
	case model == "" && member == "":
		return "unnamed"
	case member == "":
		return model
	case model == "":
		return member
	default:
		return model + "/" + member
	}
}
