// Package compare measures how a target-period ensemble departs from the
// baseline ensemble and fits linear trends to annual series.
package compare

import (
	"fmt"
	"maps"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// DefaultDeadBand is the percent change inside which a delta is negligible.
const DefaultDeadBand = 5.0

// Comparator computes anomalies. It is safe for concurrent use.
type Comparator struct {
	deadBand float64
}

// New creates a Comparator with the given dead band in percent.
func New(deadBand float64) (*Comparator, error) {
	if !(deadBand >= 0) {
		return nil, &domain.ConfigurationError{Setting: "dead band", Reason: fmt.Sprintf("%v must be a non-negative percentage", deadBand)}
	}
	return &Comparator{deadBand: deadBand}, nil
}

// Compare derives per-field deltas of target against baseline. A non-default
// region adjustment is applied to each absolute delta before the percent
// change is taken, and is disclosed on the result.
func (c *Comparator) Compare(target, baseline domain.EnsembleResult, region domain.Region) domain.AnomalyResult {
	adj := region.Adjustment
	if adj.Scale == 0 {
		adj.Scale = 1
	}
	applied := !adj.IsDefault()

	out := domain.AnomalyResult{
		Region:                  region.Name,
		Fields:                  make([]domain.FieldDelta, 0, len(domain.IndexFields)),
		CategoryDeltas:          make(map[string]float64),
		RegionAdjustmentApplied: applied,
	}
	if applied {
		out.AdjustmentNote = adj.Note
		if out.AdjustmentNote == "" {
			out.AdjustmentNote = fmt.Sprintf("advisory regional adjustment for %s: scale %.2f, offset %+.1f%%", region.Name, adj.Scale, adj.Offset)
		}
	}

	for _, f := range domain.IndexFields {
		out.Fields = append(out.Fields, c.delta(f, target.Mean.Value(f), baseline.Mean.Value(f), adj))
	}
	if d, ok := out.Field(domain.FieldPRCPTOT); ok {
		out.Direction = d.Direction
	}

	for name := range maps.Keys(target.Mean.CategoryFractions) {
		out.CategoryDeltas[name] = target.Mean.CategoryFractions[name] - baseline.Mean.CategoryFractions[name]
	}
	for name := range maps.Keys(baseline.Mean.CategoryFractions) {
		out.CategoryDeltas[name] = target.Mean.CategoryFractions[name] - baseline.Mean.CategoryFractions[name]
	}
	return out
}

func (c *Comparator) delta(f domain.Field, target, baseline float64, adj domain.Adjustment) domain.FieldDelta {
	abs := target - baseline
	abs = abs*adj.Scale + adj.Offset/100*baseline

	d := domain.FieldDelta{Field: f, Target: target, Baseline: baseline, Absolute: abs}
	if baseline != 0 {
		pct := abs * 100 / baseline
		d.Percent = &pct
	}
	d.Direction = c.Direction(d.Percent, abs)
	return d
}

// Direction classifies a percent change against the dead band. When the
// percent change is undefined the sign of the absolute delta decides.
func (c *Comparator) Direction(percent *float64, absolute float64) domain.Direction {
	if percent == nil {
		switch {
		case absolute > 0:
			return domain.DirectionIncrease
		case absolute < 0:
			return domain.DirectionDecrease
		default:
			return domain.DirectionNegligible
		}
	}
	switch {
	case *percent > c.deadBand:
		return domain.DirectionIncrease
	case *percent < -c.deadBand:
		return domain.DirectionDecrease
	default:
		return domain.DirectionNegligible
	}
}
