// Package ensemble combines region-level index results from several model
// realizations into mean, spread, percentiles and a confidence level.
package ensemble

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// SpreadEstimator selects the standard deviation estimator.
type SpreadEstimator string

const (
	SpreadSample     SpreadEstimator = "sample"
	SpreadPopulation SpreadEstimator = "population"
)

// MinMembersForHigh is the ensemble size below which confidence is capped at medium.
const MinMembersForHigh = 3

// Options configures an Aggregator.
type Options struct {
	// HighBelow and MediumBelow are spread/mean ratio thresholds.
	HighBelow   float64
	MediumBelow float64
	Estimator   SpreadEstimator
	// Epsilon guards the ratio against near-zero means.
	Epsilon float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{HighBelow: 0.15, MediumBelow: 0.35, Estimator: SpreadSample, Epsilon: 1e-9}
}

// Validate checks the options.
func (o Options) Validate() error {
	if !(o.HighBelow > 0) || !(o.MediumBelow > o.HighBelow) {
		return &domain.ConfigurationError{
			Setting: "confidence thresholds",
			Reason:  fmt.Sprintf("need 0 < high (%v) < medium (%v)", o.HighBelow, o.MediumBelow),
		}
	}
	if o.Estimator != SpreadSample && o.Estimator != SpreadPopulation {
		return &domain.ConfigurationError{Setting: "spread estimator", Reason: fmt.Sprintf("%q is neither sample nor population", o.Estimator)}
	}
	if !(o.Epsilon > 0) {
		return &domain.ConfigurationError{Setting: "spread epsilon", Reason: "must be positive"}
	}
	return nil
}

// Aggregator reduces per-realization results. It is safe for concurrent use.
type Aggregator struct {
	opts Options
}

// New creates an Aggregator.
func New(opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{opts: opts}, nil
}

// Options returns the aggregator's configuration.
func (a *Aggregator) Options() Options { return a.opts }

// Aggregate combines one region-level result per realization. The outcome does
// not depend on the order of results; members only label the output.
func (a *Aggregator) Aggregate(period domain.TimeRange, results []domain.IndexResult, members []string) (domain.EnsembleResult, error) {
	n := len(results)
	if n == 0 {
		return domain.EnsembleResult{}, &domain.InsufficientDataError{
			Subject: "ensemble",
			Period:  period.String(),
			Reason:  "no realizations produced a result",
		}
	}

	out := domain.EnsembleResult{
		Period:      period,
		NMembers:    n,
		Members:     slices.Sorted(slices.Values(members)),
		Percentiles: make(map[domain.Field]domain.Percentiles, len(domain.HeadlineFields)),
	}
	column := make([]float64, n)

	for _, f := range domain.IndexFields {
		for i, r := range results {
			column[i] = r.Value(f)
		}
		mean, spread := a.moments(column)
		out.Mean.Set(f, mean)
		out.Spread.Set(f, spread)
	}
	for _, f := range domain.HeadlineFields {
		for i, r := range results {
			column[i] = r.Value(f)
		}
		out.Percentiles[f] = percentiles(column)
	}

	names := categoryNames(results)
	out.Mean.CategoryFractions = make(map[string]float64, len(names))
	out.Spread.CategoryFractions = make(map[string]float64, len(names))
	for _, name := range names {
		for i, r := range results {
			column[i] = r.CategoryFractions[name]
		}
		out.Mean.CategoryFractions[name], out.Spread.CategoryFractions[name] = a.moments(column)
	}

	for i, r := range results {
		column[i] = r.ValidDays
	}
	out.Mean.ValidDays, _ = a.moments(column)
	out.Mean.Coverage = minCoverage(results)

	out.SpreadRatio = a.spreadRatio(out.Mean, out.Spread)
	out.Confidence = a.Classify(out.SpreadRatio, n)
	return out, nil
}

// Classify maps a spread ratio and ensemble size to a confidence level.
func (a *Aggregator) Classify(ratio float64, n int) domain.Confidence {
	var c domain.Confidence
	switch {
	case ratio < a.opts.HighBelow:
		c = domain.ConfidenceHigh
	case ratio < a.opts.MediumBelow:
		c = domain.ConfidenceMedium
	default:
		c = domain.ConfidenceLow
	}
	if n < MinMembersForHigh {
		c = c.Cap(domain.ConfidenceMedium)
	}
	return c
}

// spreadRatio is the worst spread/|mean| over the headline fields.
func (a *Aggregator) spreadRatio(mean, spread domain.IndexResult) float64 {
	var worst float64
	for _, f := range domain.HeadlineFields {
		r := spread.Value(f) / math.Max(math.Abs(mean.Value(f)), a.opts.Epsilon)
		worst = math.Max(worst, r)
	}
	return worst
}

// moments returns mean and spread of values, which it sorts in place.
func (a *Aggregator) moments(values []float64) (float64, float64) {
	sort.Float64s(values)
	mean, err := stats.Mean(values)
	if err != nil {
		return 0, 0
	}
	if len(values) == 1 {
		return mean, 0
	}
	var sd float64
	if a.opts.Estimator == SpreadPopulation {
		sd, err = stats.StandardDeviationPopulation(values)
	} else {
		sd, err = stats.StandardDeviationSample(values)
	}
	if err != nil {
		return mean, 0
	}
	return mean, sd
}

// percentiles uses linear interpolation between closest ranks.
func percentiles(values []float64) domain.Percentiles {
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	return domain.Percentiles{
		P10: quantile(sorted, 0.10),
		P25: quantile(sorted, 0.25),
		P50: quantile(sorted, 0.50),
		P75: quantile(sorted, 0.75),
		P90: quantile(sorted, 0.90),
	}
}

func quantile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	h := p * float64(len(sorted)-1)
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

func categoryNames(results []domain.IndexResult) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		for name := range r.CategoryFractions {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func minCoverage(results []domain.IndexResult) domain.Coverage {
	c := results[0].Coverage
	for _, r := range results[1:] {
		c.ValidCells = min(c.ValidCells, r.Coverage.ValidCells)
		c.TotalCells = max(c.TotalCells, r.Coverage.TotalCells)
	}
	return c
}
