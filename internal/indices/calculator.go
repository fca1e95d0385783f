// Package indices computes ETCCDI-style rainfall indices per grid cell and
// reduces them to region-level results.
package indices

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// Rx5dayWindow is the accumulation window of Rx5day, in days.
const Rx5dayWindow = 5

// Options configures a Calculator.
type Options struct {
	WetDayThreshold    float64
	HeavyRainThreshold float64
	Categories         Categories
	MinValidFraction   float64
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		WetDayThreshold:    1.0,
		HeavyRainThreshold: 100,
		Categories:         DefaultCategories(),
		MinValidFraction:   0.5,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.Categories.Validate(); err != nil {
		return err
	}
	if !(o.WetDayThreshold > 0) {
		return &domain.ConfigurationError{Setting: "wet day threshold", Reason: "must be positive"}
	}
	if !(o.HeavyRainThreshold >= o.WetDayThreshold) {
		return &domain.ConfigurationError{Setting: "heavy rain threshold", Reason: "must not be below the wet day threshold"}
	}
	if o.MinValidFraction < 0 || o.MinValidFraction > 1 {
		return &domain.ConfigurationError{Setting: "minimum valid fraction", Reason: "must be within 0..1"}
	}
	return nil
}

// Calculator computes indices. It is safe for concurrent use.
type Calculator struct {
	opts Options
}

// New creates a Calculator.
func New(opts Options) (*Calculator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{opts: opts}, nil
}

// Options returns the calculator's configuration.
func (c *Calculator) Options() Options { return c.opts }

// Compute derives per-cell indices for one series over period. Missing cells
// keep their slot with zero ValidDays.
func (c *Calculator) Compute(s domain.RealizationSeries, period domain.TimeRange) (domain.CellIndices, error) {
	var steps []int
	for t, ts := range s.Field.Time {
		if period.Contains(ts) {
			steps = append(steps, t)
		}
	}
	if len(steps) == 0 {
		first, last := s.TimeSpan()
		return domain.CellIndices{}, &domain.InsufficientDataError{
			Subject: "member " + s.Label(),
			Period:  period.String(),
			Reason:  fmt.Sprintf("no time steps fall in the period (data covers %s to %s)", first.Format(time.DateOnly), last.Format(time.DateOnly)),
		}
	}

	times := make([]time.Time, len(steps))
	for k, t := range steps {
		times[k] = s.Field.Time[t]
	}

	n := s.Field.NumCells()
	out := domain.CellIndices{
		ModelID:  s.ModelID,
		MemberID: s.MemberID,
		Period:   period,
		Lat:      s.Field.Lat,
		Lon:      s.Field.Lon,
		CellArea: s.Field.CellArea,
		Cells:    make([]domain.IndexResult, n),
		Missing:  make([]bool, n),
	}
	values := make([]float64, len(steps))
	for cell := 0; cell < n; cell++ {
		if len(s.Missing) == n && s.Missing[cell] {
			out.Missing[cell] = true
			out.Cells[cell] = c.emptyResult()
			continue
		}
		for k, t := range steps {
			values[k] = s.Field.Values[t*n+cell]
		}
		out.Cells[cell] = c.Series(values, times)
	}
	return out, nil
}

func (c *Calculator) emptyResult() domain.IndexResult {
	r := domain.IndexResult{CategoryFractions: make(map[string]float64, len(c.opts.Categories))}
	for _, cat := range c.opts.Categories {
		r.CategoryFractions[cat.Name] = 0
	}
	return r
}

// Series computes indices for one daily series. NaN entries are missing days;
// times must be strictly increasing.
func (c *Calculator) Series(values []float64, times []time.Time) domain.IndexResult {
	r := c.emptyResult()
	counts := make([]int, len(c.opts.Categories))

	var (
		window             [Rx5dayWindow]float64
		runLen             int
		dryRun, wetRun     int
		prevDay            time.Time
		havePrev           bool
		validDays, wetDays int
	)
	for k, v := range values {
		if math.IsNaN(v) {
			runLen, dryRun, wetRun = 0, 0, 0
			havePrev = false
			continue
		}
		day := times[k]
		if !havePrev || !nextDay(prevDay, day) {
			runLen, dryRun, wetRun = 0, 0, 0
		}
		havePrev, prevDay = true, day

		validDays++
		counts[c.opts.Categories.Classify(v)]++
		r.Rx1day = math.Max(r.Rx1day, v)

		wet := v >= c.opts.WetDayThreshold
		if wet {
			wetDays++
			r.PRCPTOT += v
			wetRun++
			dryRun = 0
		} else {
			dryRun++
			wetRun = 0
		}
		r.CWD = math.Max(r.CWD, float64(wetRun))
		r.CDD = math.Max(r.CDD, float64(dryRun))
		if v >= c.opts.HeavyRainThreshold {
			r.HeavyRainDays++
		}

		window[runLen%Rx5dayWindow] = v
		runLen++
		var sum float64
		for i := 0; i < min(runLen, Rx5dayWindow); i++ {
			sum += window[i]
		}
		r.Rx5day = math.Max(r.Rx5day, sum)
	}

	r.ValidDays = float64(validDays)
	r.WetDays = float64(wetDays)
	if wetDays > 0 {
		r.SDII = r.PRCPTOT / float64(wetDays)
	}
	if validDays > 0 {
		for i, cat := range c.opts.Categories {
			r.CategoryFractions[cat.Name] = float64(counts[i]) / float64(validDays)
		}
	}
	return r
}

// nextDay reports whether b is the calendar day after a.
func nextDay(a, b time.Time) bool {
	ay, am, ad := a.AddDate(0, 0, 1).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
