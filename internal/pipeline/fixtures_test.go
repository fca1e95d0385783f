package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-analysis-service/internal/cache"
	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

// testCatalogue has one plain box, an adjusted twin excluded from
// partitioning, and a higher-priority east half.
const testCatalogue = `
regions:
  - name: Test Box
    priority: 1
    bounds: {lat_min: 18, lat_max: 21, lon_min: 76, lon_max: 79}
  - name: Adjusted
    bounds: {lat_min: 18, lat_max: 21, lon_min: 76, lon_max: 79}
    adjustment: {scale: 1, offset: 2, note: "test uplift"}
  - name: East Half
    priority: 2
    bounds: {lat_min: 18, lat_max: 21, lon_min: 77.5, lon_max: 79}
`

var (
	gridLat = []float64{19, 20}
	gridLon = []float64{77, 78}
)

// --- mocks ---

type recordingPublisher struct {
	mu      sync.Mutex
	reports []domain.Report
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, r domain.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reports = append(p.reports, r)
	return nil
}

var errUnavailable = errors.New("unavailable")

// --- builders ---

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testSettings() config.Analysis {
	a := config.DefaultAnalysis()
	a.BaselineStart, a.BaselineEnd = 1990, 1991
	return a
}

func newAnalyzer(t *testing.T, publisher pipeline.Publisher) (*pipeline.Analyzer, *observability.Metrics) {
	t.Helper()
	cat, err := region.Parse([]byte(testCatalogue))
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	baselines := cache.New(8, nil, discardLogger(), metrics)
	a, err := pipeline.New(testSettings(), cat, baselines, publisher, discardLogger(), metrics)
	require.NoError(t, err)
	return a, metrics
}

// monsoonDays lists every June-September day of the given years.
func monsoonDays(years ...int) []time.Time {
	var days []time.Time
	for _, y := range years {
		for d := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC); d.Month() <= time.September; d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	}
	return days
}

// makeInput builds a daily mm/day realization on the 2x2 test grid; every
// cell receives rain(day).
func makeInput(model string, days []time.Time, rain func(day time.Time) float64) domain.RealizationInput {
	n := len(gridLat) * len(gridLon)
	values := make([]float64, 0, len(days)*n)
	for _, d := range days {
		v := rain(d)
		for range n {
			values = append(values, v)
		}
	}
	return domain.RealizationInput{
		ModelID:  model,
		MemberID: "r1i1p1f1",
		Field: domain.RawField{
			Axes: []domain.Axis{
				{Name: "time", Times: days},
				{Name: "lat", Values: gridLat},
				{Name: "lon", Values: gridLon},
			},
			Values: values,
			Attrs:  map[string]string{domain.UnitsAttr: "mm/day"},
		},
	}
}

// scenarioEnsemble is three members raining a constant 5 mm/day before 2000
// and 5.6 mm/day after, scaled by 0.98, 1 and 1.02.
func scenarioEnsemble() []domain.RealizationInput {
	days := monsoonDays(1990, 1991, 2040, 2041)
	var out []domain.RealizationInput
	for _, m := range []struct {
		model  string
		factor float64
	}{{"MODEL-A", 0.98}, {"MODEL-B", 1}, {"MODEL-C", 1.02}} {
		out = append(out, makeInput(m.model, days, func(d time.Time) float64 {
			if d.Year() < 2000 {
				return 5 * m.factor
			}
			return 5.6 * m.factor
		}))
	}
	return out
}

func scenarioRequest() pipeline.Request {
	return pipeline.Request{
		Region:       "Test Box",
		Target:       domain.YearRange(2040, 2041).WithSeason(domain.Monsoon),
		Realizations: scenarioEnsemble(),
	}
}
