package domain

import (
	"maps"
	"slices"
	"time"
)

// Confidence summarizes ensemble agreement.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// Cap lowers c to ceiling when c is stronger.
func (c Confidence) Cap(ceiling Confidence) Confidence {
	if c.rank() > ceiling.rank() {
		return ceiling
	}
	return c
}

// AtLeast reports whether c is at least as strong as other.
func (c Confidence) AtLeast(other Confidence) bool { return c.rank() >= other.rank() }

// Percentiles are ensemble quantiles for one index.
type Percentiles struct {
	P10 float64 `json:"p10"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
}

// EnsembleResult aggregates region-level IndexResults across members for one period.
type EnsembleResult struct {
	Period      TimeRange             `json:"period"`
	Mean        IndexResult           `json:"mean"`
	Spread      IndexResult           `json:"spread"`
	Percentiles map[Field]Percentiles `json:"percentiles"`
	Confidence  Confidence            `json:"confidence_level"`
	SpreadRatio float64               `json:"spread_ratio"`
	NMembers    int                   `json:"n_members"`
	Members     []string              `json:"members"`
}

// Clone returns a deep copy.
func (e EnsembleResult) Clone() EnsembleResult {
	e.Mean = e.Mean.Clone()
	e.Spread = e.Spread.Clone()
	e.Percentiles = maps.Clone(e.Percentiles)
	e.Members = slices.Clone(e.Members)
	return e
}

// Direction classifies an anomaly.
type Direction string

const (
	DirectionIncrease   Direction = "increase"
	DirectionDecrease   Direction = "decrease"
	DirectionNegligible Direction = "negligible"
)

// FieldDelta compares one index between target and baseline. Percent is nil
// when the baseline mean is zero.
type FieldDelta struct {
	Field     Field     `json:"field"`
	Target    float64   `json:"target"`
	Baseline  float64   `json:"baseline"`
	Absolute  float64   `json:"absolute_delta"`
	Percent   *float64  `json:"percent_delta"`
	Direction Direction `json:"direction"`
}

// AnomalyResult compares a target-period ensemble with the baseline ensemble.
type AnomalyResult struct {
	Region         string             `json:"region"`
	Fields         []FieldDelta       `json:"fields"`
	CategoryDeltas map[string]float64 `json:"category_deltas"`
	// Direction is the headline PRCPTOT direction.
	Direction Direction `json:"direction"`

	RegionAdjustmentApplied bool   `json:"region_adjustment_applied"`
	AdjustmentNote          string `json:"adjustment_note,omitempty"`
}

// Field looks up the delta for f.
func (a AnomalyResult) Field(f Field) (FieldDelta, bool) {
	for _, d := range a.Fields {
		if d.Field == f {
			return d, true
		}
	}
	return FieldDelta{}, false
}

// Trend is a least-squares linear trend of annual ensemble-mean values.
type Trend struct {
	Field          Field   `json:"field"`
	SlopePerDecade float64 `json:"slope_per_decade"`
	Intercept      float64 `json:"intercept"`
	RSquared       float64 `json:"r_squared"`
	PValue         float64 `json:"p_value"`
	Years          int     `json:"years"`
	Significant    bool    `json:"significant"`
}

// SpatialStats describes one index across the valid grid cells of a region.
type SpatialStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// RegionSummary is one row of a partitioned regional breakdown. Spatial holds
// the member-averaged spread of each index over the region's cells.
type RegionSummary struct {
	Region   string                 `json:"region"`
	Priority int                    `json:"priority"`
	Ensemble EnsembleResult         `json:"ensemble"`
	Spatial  map[Field]SpatialStats `json:"spatial,omitempty"`
}

// Report is the complete result of one analysis request.
type Report struct {
	ID             string          `json:"id"`
	Region         string          `json:"region"`
	TargetPeriod   TimeRange       `json:"target_period"`
	BaselinePeriod TimeRange       `json:"baseline_period"`
	Target         EnsembleResult  `json:"target"`
	Baseline       EnsembleResult  `json:"baseline"`
	Anomaly        AnomalyResult   `json:"anomaly"`
	Trends         []Trend         `json:"trends,omitempty"`
	Regions        []RegionSummary `json:"regions,omitempty"`
	Quality        []QualityReport `json:"quality"`
	BaselineCached bool            `json:"baseline_cached"`
	GeneratedAt    time.Time       `json:"generated_at"`
}
