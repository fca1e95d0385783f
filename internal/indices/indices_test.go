package indices

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := New(DefaultOptions())
	require.NoError(t, err)
	return c
}

func dailyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

var june1 = time.Date(2000, time.June, 1, 0, 0, 0, 0, time.UTC)

func sumFractions(m map[string]float64) float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

// singleCell wraps one daily series as a 1x1 normalized series.
func singleCell(values []float64, times []time.Time) domain.RealizationSeries {
	return domain.RealizationSeries{
		ModelID: "m",
		Field: domain.GriddedField{
			Lat: []float64{15}, Lon: []float64{75},
			Time: times, Values: values, Units: domain.UnitsDepthPerDay,
		},
		Missing: []bool{false},
	}
}

func TestSeries_Scenario(t *testing.T) {
	c := newTestCalculator(t)
	r := c.Series([]float64{0, 5, 20, 150, 0, 0, 0}, dailyTimes(june1, 7))

	assert.InDelta(t, 175, r.PRCPTOT, 1e-12)
	assert.Equal(t, 150.0, r.Rx1day)
	assert.InDelta(t, 175, r.Rx5day, 1e-12)
	assert.InDelta(t, 4.0/7, r.CategoryFractions["none"], 1e-12)
	assert.InDelta(t, 1.0/7, r.CategoryFractions["light"], 1e-12)
	assert.InDelta(t, 1.0/7, r.CategoryFractions["moderate"], 1e-12)
	assert.InDelta(t, 1.0/7, r.CategoryFractions["extreme"], 1e-12)
	assert.Equal(t, 0.0, r.CategoryFractions["heavy"])
	assert.Equal(t, 0.0, r.CategoryFractions["very_heavy"])
	assert.InDelta(t, 1, sumFractions(r.CategoryFractions), 1e-9)

	assert.Equal(t, 7.0, r.ValidDays)
	assert.Equal(t, 3.0, r.WetDays)
	assert.InDelta(t, 175.0/3, r.SDII, 1e-12)
	assert.Equal(t, 3.0, r.CDD)
	assert.Equal(t, 3.0, r.CWD)
	assert.Equal(t, 1.0, r.HeavyRainDays)
}

func TestSeries_ScenarioWithCustomCategories(t *testing.T) {
	cats, err := ParseCategories("none:0, light:1, moderate:10, heavy:25, extreme:50")
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Categories = cats
	c, err := New(opts)
	require.NoError(t, err)

	r := c.Series([]float64{0, 5, 20, 150, 0, 0, 0}, dailyTimes(june1, 7))
	assert.Equal(t, map[string]float64{"none": 4.0 / 7, "light": 1.0 / 7, "moderate": 1.0 / 7, "heavy": 0, "extreme": 1.0 / 7}, r.CategoryFractions)
}

func TestSeries_Rx5daySlides(t *testing.T) {
	c := newTestCalculator(t)
	// Best 5-day window starts on day 3, which non-overlapping windows would miss.
	r := c.Series([]float64{0, 0, 10, 10, 10, 10, 10, 0, 0, 0}, dailyTimes(june1, 10))
	assert.Equal(t, 50.0, r.Rx5day)
}

func TestSeries_Rx5dayShortRun(t *testing.T) {
	c := newTestCalculator(t)
	r := c.Series([]float64{30, 40}, dailyTimes(june1, 2))
	assert.Equal(t, 70.0, r.Rx5day)
	assert.Equal(t, 40.0, r.Rx1day)
}

func TestSeries_WindowsBreakOnGapsAndMissing(t *testing.T) {
	c := newTestCalculator(t)

	t.Run("missing day", func(t *testing.T) {
		r := c.Series([]float64{20, 20, math.NaN(), 20, 20}, dailyTimes(june1, 5))
		assert.Equal(t, 40.0, r.Rx5day)
		assert.Equal(t, 2.0, r.CWD)
		assert.Equal(t, 4.0, r.ValidDays)
	})

	t.Run("calendar gap", func(t *testing.T) {
		times := []time.Time{june1, june1.AddDate(0, 0, 1), june1.AddDate(0, 0, 5), june1.AddDate(0, 0, 6)}
		r := c.Series([]float64{20, 20, 20, 20}, times)
		assert.Equal(t, 40.0, r.Rx5day)
		assert.Equal(t, 2.0, r.CWD)
	})
}

func TestSeries_DrySpell(t *testing.T) {
	c := newTestCalculator(t)
	r := c.Series([]float64{0.5, 0, 0, 3, 0, 0, 0, 0, 2}, dailyTimes(june1, 9))
	assert.Equal(t, 4.0, r.CDD)
	assert.Equal(t, 1.0, r.CWD)
	assert.Equal(t, 0.0, r.HeavyRainDays)
	assert.InDelta(t, 5, r.PRCPTOT, 1e-12, "0.5 mm is below the wet day threshold")
}

func TestSeries_AllMissing(t *testing.T) {
	c := newTestCalculator(t)
	r := c.Series([]float64{math.NaN(), math.NaN()}, dailyTimes(june1, 2))
	assert.Equal(t, 0.0, r.ValidDays)
	assert.Len(t, r.CategoryFractions, len(DefaultCategories()))
}

func TestSeries_Properties(t *testing.T) {
	c := newTestCalculator(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(120)
		values := make([]float64, n)
		for i := range values {
			switch {
			case rng.Float64() < 0.1:
				values[i] = math.NaN()
			case rng.Float64() < 0.4:
				values[i] = 0
			default:
				values[i] = rng.ExpFloat64() * 15
			}
		}
		times := dailyTimes(june1, n)

		r := c.Series(values, times)
		assert.GreaterOrEqual(t, r.Rx5day, r.Rx1day, "trial %d", trial)
		assert.GreaterOrEqual(t, r.PRCPTOT, 0.0)
		if r.ValidDays > 0 {
			assert.InDelta(t, 1, sumFractions(r.CategoryFractions), 1e-9, "trial %d", trial)
		}

		// Extending the period never lowers the wet-day total.
		prev := 0.0
		for k := 1; k <= n; k++ {
			p := c.Series(values[:k], times[:k]).PRCPTOT
			assert.GreaterOrEqual(t, p, prev)
			prev = p
		}
	}
}

func TestCompute_PeriodAndSeason(t *testing.T) {
	c := newTestCalculator(t)
	// May through September 2000, 10 mm every day.
	start := time.Date(2000, time.May, 1, 0, 0, 0, 0, time.UTC)
	times := dailyTimes(start, 153)
	values := make([]float64, len(times))
	for i := range values {
		values[i] = 10
	}
	s := singleCell(values, times)

	all, err := c.Compute(s, domain.YearRange(2000, 2000))
	require.NoError(t, err)
	assert.Equal(t, 1530.0, all.Cells[0].PRCPTOT)

	jjas, err := c.Compute(s, domain.YearRange(2000, 2000).WithSeason(domain.Monsoon))
	require.NoError(t, err)
	assert.Equal(t, 1220.0, jjas.Cells[0].PRCPTOT)
	assert.Equal(t, 122.0, jjas.Cells[0].ValidDays)

	_, err = c.Compute(s, domain.YearRange(2040, 2069))
	var dataErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &dataErr)
	assert.Contains(t, dataErr.Error(), "2040-2069")
}

func TestCompute_SeasonGapBreaksRuns(t *testing.T) {
	c := newTestCalculator(t)
	// 30 Sep and 1 Jun of the next year are not consecutive days.
	times := []time.Time{
		time.Date(2000, 9, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2000, 9, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2001, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2001, 6, 2, 0, 0, 0, 0, time.UTC),
	}
	s := singleCell([]float64{30, 30, 30, 30}, times)
	ci, err := c.Compute(s, domain.YearRange(2000, 2001).WithSeason(domain.Monsoon))
	require.NoError(t, err)
	assert.Equal(t, 60.0, ci.Cells[0].Rx5day)
}

func TestCompute_MissingCellsKeepSlot(t *testing.T) {
	c := newTestCalculator(t)
	times := dailyTimes(june1, 2)
	s := domain.RealizationSeries{
		Field: domain.GriddedField{
			Lat: []float64{15}, Lon: []float64{75, 76}, Time: times,
			Values: []float64{5, math.NaN(), 5, math.NaN()},
		},
		Missing: []bool{false, true},
	}
	ci, err := c.Compute(s, domain.YearRange(2000, 2000))
	require.NoError(t, err)
	require.Len(t, ci.Cells, 2)
	assert.True(t, ci.Missing[1])
	assert.Equal(t, 0.0, ci.Cells[1].ValidDays)
	assert.Equal(t, 10.0, ci.Cells[0].PRCPTOT)
}

func cellGrid(lat, lon []float64, fn func(i, j int) domain.IndexResult) domain.CellIndices {
	ci := domain.CellIndices{
		ModelID: "m", Lat: lat, Lon: lon,
		Period:  domain.YearRange(2000, 2000),
		Cells:   make([]domain.IndexResult, len(lat)*len(lon)),
		Missing: make([]bool, len(lat)*len(lon)),
	}
	for i := range lat {
		for j := range lon {
			ci.Cells[i*len(lon)+j] = fn(i, j)
		}
	}
	return ci
}

func TestAggregateToRegion_CosineWeights(t *testing.T) {
	c := newTestCalculator(t)
	ci := cellGrid([]float64{0, 60}, []float64{75}, func(i, _ int) domain.IndexResult {
		v := 100.0
		if i == 1 {
			v = 400
		}
		return domain.IndexResult{PRCPTOT: v, Rx1day: v / 10, Rx5day: v / 5, ValidDays: 10,
			CategoryFractions: map[string]float64{"none": 0.5, "light": 0.5}}
	})
	region := domain.BoxRegion("all", domain.BoundingBox{LatMin: -10, LatMax: 70, LonMin: 70, LonMax: 80})

	r, err := c.AggregateToRegion(ci, region)
	require.NoError(t, err)
	// Weights 1 and 0.5.
	assert.InDelta(t, 200, r.PRCPTOT, 1e-9)
	assert.InDelta(t, 20, r.Rx1day, 1e-9)
	assert.InDelta(t, 40, r.Rx5day, 1e-9)
	assert.InDelta(t, 1, sumFractions(r.CategoryFractions), 1e-9)
	assert.Equal(t, domain.Coverage{ValidCells: 2, TotalCells: 2}, r.Coverage)
}

func TestAggregateToRegion_CellArea(t *testing.T) {
	c := newTestCalculator(t)
	ci := cellGrid([]float64{10}, []float64{75, 76}, func(_, j int) domain.IndexResult {
		return domain.IndexResult{PRCPTOT: float64(100 * (j + 1)), ValidDays: 5}
	})
	ci.CellArea = []float64{3, 1}

	r, err := c.AggregateToRegion(ci, domain.BoxRegion("box", domain.IndiaDomain))
	require.NoError(t, err)
	assert.InDelta(t, 125, r.PRCPTOT, 1e-9)
}

func TestAggregateToRegion_ExcludesMissing(t *testing.T) {
	c := newTestCalculator(t)
	ci := cellGrid([]float64{10, 11}, []float64{75, 76}, func(i, j int) domain.IndexResult {
		return domain.IndexResult{PRCPTOT: 100, ValidDays: 5}
	})
	ci.Missing[3] = true
	ci.Cells[3] = domain.IndexResult{PRCPTOT: 1e9}

	r, err := c.AggregateToRegion(ci, domain.BoxRegion("box", domain.IndiaDomain))
	require.NoError(t, err)
	assert.InDelta(t, 100, r.PRCPTOT, 1e-6)
	assert.Equal(t, domain.Coverage{ValidCells: 3, TotalCells: 4}, r.Coverage)
}

func TestAggregateToRegion_Errors(t *testing.T) {
	c := newTestCalculator(t)
	ci := cellGrid([]float64{10, 11}, []float64{75, 76}, func(i, j int) domain.IndexResult {
		return domain.IndexResult{PRCPTOT: 100, ValidDays: 5}
	})

	t.Run("empty region", func(t *testing.T) {
		_, err := c.AggregateToRegion(ci, domain.BoxRegion("Northern", domain.BoundingBox{LatMin: 28, LatMax: 37, LonMin: 68, LonMax: 88}))
		var emptyErr *domain.EmptyRegionError
		require.ErrorAs(t, err, &emptyErr)
		assert.Equal(t, "Northern", emptyErr.Region)
	})

	t.Run("below minimum valid fraction", func(t *testing.T) {
		bad := cellGrid(ci.Lat, ci.Lon, func(i, j int) domain.IndexResult {
			return domain.IndexResult{PRCPTOT: 100, ValidDays: 5}
		})
		bad.Missing[0], bad.Missing[1], bad.Missing[2] = true, true, true

		_, err := c.AggregateToRegion(bad, domain.BoxRegion("box", domain.IndiaDomain))
		var dataErr *domain.InsufficientDataError
		require.ErrorAs(t, err, &dataErr)
		assert.Equal(t, 1, dataErr.Valid)
		assert.Equal(t, 4, dataErr.Total)
	})

	t.Run("exactly at minimum passes", func(t *testing.T) {
		half := cellGrid(ci.Lat, ci.Lon, func(i, j int) domain.IndexResult {
			return domain.IndexResult{PRCPTOT: 100, ValidDays: 5}
		})
		half.Missing[0], half.Missing[1] = true, true
		_, err := c.AggregateToRegion(half, domain.BoxRegion("box", domain.IndiaDomain))
		require.NoError(t, err)
	})
}

func TestAggregateSelection(t *testing.T) {
	c := newTestCalculator(t)
	ci := cellGrid([]float64{10}, []float64{75, 76, 77}, func(_, j int) domain.IndexResult {
		return domain.IndexResult{PRCPTOT: float64(j), ValidDays: 1}
	})
	r, err := c.AggregateSelection(ci, domain.BoxRegion("pick", domain.IndiaDomain), []bool{false, false, true})
	require.NoError(t, err)
	assert.InDelta(t, 2, r.PRCPTOT, 1e-12)
}

func TestSpatialSelection(t *testing.T) {
	ci := cellGrid([]float64{10, 11}, []float64{75, 76}, func(i, j int) domain.IndexResult {
		return domain.IndexResult{PRCPTOT: float64(100 * (2*i + j + 1)), Rx1day: 20, ValidDays: 5}
	})
	ci.Missing[3] = true

	got := SpatialSelection(ci, []bool{true, true, true, true})
	require.NotNil(t, got)
	// Valid cells 100, 200 and 300; the missing 400 is excluded.
	prcptot := got[domain.FieldPRCPTOT]
	assert.InDelta(t, 200, prcptot.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(20000.0/3), prcptot.Std, 1e-9)
	assert.InDelta(t, 100, prcptot.Min, 1e-9)
	assert.InDelta(t, 300, prcptot.Max, 1e-9)
	assert.Equal(t, domain.SpatialStats{Mean: 20, Min: 20, Max: 20}, got[domain.FieldRx1day])
	assert.Len(t, got, len(domain.IndexFields))

	assert.Nil(t, SpatialSelection(ci, []bool{false, false, false, true}), "only a missing cell selected")
}

func TestCategories_Validate(t *testing.T) {
	require.NoError(t, DefaultCategories().Validate())

	bad := map[string]string{
		"not starting at zero": "light:1,heavy:25",
		"not increasing":       "none:0,light:10,moderate:10",
		"duplicate name":       "none:0,light:1,light:10",
		"missing bound":        "none:0,light",
		"non numeric":          "none:0,light:one",
		"empty":                "",
	}
	for name, s := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCategories(s)
			assert.Equal(t, domain.KindConfiguration, domain.ErrorKind(err))
		})
	}
}

func TestCategories_Classify(t *testing.T) {
	cats := DefaultCategories()
	tests := map[float64]string{
		0: "none", 0.99: "none", 1: "light", 9.99: "light", 10: "moderate",
		25: "heavy", 50: "very_heavy", 99.9: "very_heavy", 100: "extreme", 1000: "extreme",
	}
	for v, want := range tests {
		assert.Equal(t, want, cats[cats.Classify(v)].Name, "value %v", v)
	}
	assert.Equal(t, "none:0,light:1,moderate:10,heavy:25,very_heavy:50,extreme:100", cats.String())
}

func TestOptions_Validate(t *testing.T) {
	opts := DefaultOptions()
	opts.MinValidFraction = 1.5
	_, err := New(opts)
	assert.Equal(t, domain.KindConfiguration, domain.ErrorKind(err))

	opts = DefaultOptions()
	opts.HeavyRainThreshold = 0.5
	_, err = New(opts)
	assert.Equal(t, domain.KindConfiguration, domain.ErrorKind(err))
}
