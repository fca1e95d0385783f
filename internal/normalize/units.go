package normalize

import (
	"math"
	"slices"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// SecondsPerDay converts a flux in kg m-2 s-1 to mm/day.
const SecondsPerDay = 86400.0

// UnitThresholds tune the magnitude heuristic. Positive values whose 95th
// percentile is at most FluxUpper read as flux, at least DepthLower as depth;
// the band between them is ambiguous.
type UnitThresholds struct {
	FluxUpper     float64
	DepthLower    float64
	MinConfidence float64
}

// DefaultUnitThresholds returns the thresholds used when none are configured.
func DefaultUnitThresholds() UnitThresholds {
	return UnitThresholds{FluxUpper: 1e-3, DepthLower: 0.1, MinConfidence: 0.5}
}

// Validate checks that the thresholds describe a usable band.
func (t UnitThresholds) Validate() error {
	switch {
	case !(t.FluxUpper > 0):
		return &domain.ConfigurationError{Setting: "unit thresholds", Reason: "flux upper bound must be positive"}
	case !(t.DepthLower > t.FluxUpper):
		return &domain.ConfigurationError{Setting: "unit thresholds", Reason: "depth lower bound must exceed flux upper bound"}
	case t.MinConfidence < 0 || t.MinConfidence > 1:
		return &domain.ConfigurationError{Setting: "unit thresholds", Reason: "minimum confidence must be within 0..1"}
	}
	return nil
}

// UnitGuess is the outcome of DetectUnits. Confidence is within 0..1.
type UnitGuess struct {
	Units      domain.Units
	Confidence float64
	Source     domain.UnitSource
	// Statistic is the 95th percentile of positive values, 0 when the
	// attribute decided.
	Statistic float64
}

// unitSpellings maps each recognized unit to its accepted spellings and its
// multiplier into mm/day.
var unitSpellings = []struct {
	units     domain.Units
	factor    float64
	spellings []string
}{
	{domain.UnitsFlux, SecondsPerDay, []string{
		"kg m-2 s-1", "kg m^-2 s^-1", "kg m**-2 s**-1", "kg/m2/s", "kg/m^2/s", "kg/(m2 s)",
		"mm/s", "mm s-1", "mm/sec",
	}},
	{domain.UnitsDepthPerDay, 1, []string{
		"mm/day", "mm day-1", "mm d-1", "mm/d", "mm", "mm/24h",
	}},
	{domain.UnitsRateMetres, SecondsPerDay * 1000, []string{
		"m s-1", "m/s", "m s^-1", "m s**-1",
	}},
	{domain.UnitsHourly, 24, []string{
		"mm/hr", "mm/h", "mm h-1", "mm hr-1", "mm/hour",
	}},
	{domain.UnitsCentimetre, 10, []string{
		"cm/day", "cm day-1", "cm d-1", "cm/d", "cm",
	}},
	{domain.UnitsMetreDepth, 1000, []string{
		"m/day", "m day-1", "m d-1", "m/d", "m",
	}},
}

// ParseUnits recognizes a declared units string.
func ParseUnits(s string) (domain.Units, bool) {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	for _, u := range unitSpellings {
		if slices.Contains(u.spellings, s) {
			return u.units, true
		}
	}
	return domain.UnitsUnknown, false
}

// DetectUnits decides the units of a field. A recognized declared attribute
// wins with full confidence and an unrecognized one yields UnitsUnknown with
// confidence 0. Without an attribute the magnitude of the positive values is
// scored by its log distance from the ambiguous band. All-zero or all-missing
// data yields confidence 0.
func DetectUnits(declared string, values []float64, th UnitThresholds) UnitGuess {
	if strings.TrimSpace(declared) != "" {
		if u, ok := ParseUnits(declared); ok {
			return UnitGuess{Units: u, Confidence: 1, Source: domain.UnitSourceAttribute}
		}
		return UnitGuess{Source: domain.UnitSourceAttribute}
	}

	positive := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsInf(v, 0) {
			positive = append(positive, v)
		}
	}
	guess := UnitGuess{Source: domain.UnitSourceMagnitude}
	if len(positive) == 0 {
		return guess
	}
	p95, err := stats.Percentile(positive, 95)
	if err != nil || !(p95 > 0) {
		return guess
	}
	guess.Statistic = p95

	lo, hi := math.Log10(th.FluxUpper), math.Log10(th.DepthLower)
	mid, half := (lo+hi)/2, (hi-lo)/2
	d := (math.Log10(p95) - mid) / half

	guess.Confidence = math.Min(math.Abs(d)/2, 1)
	if d < 0 {
		guess.Units = domain.UnitsFlux
	} else {
		guess.Units = domain.UnitsDepthPerDay
	}
	return guess
}

// conversionFactor returns the multiplier into mm/day.
func conversionFactor(u domain.Units) float64 {
	for _, s := range unitSpellings {
		if s.units == u {
			return s.factor
		}
	}
	return 1
}
