package ensemble

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

var period = domain.YearRange(2040, 2069).WithSeason(domain.Monsoon)

func newTestAggregator(t *testing.T, mutate func(*Options)) *Aggregator {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

// uniformMembers builds results whose headline fields all equal v[i].
func uniformMembers(v ...float64) []domain.IndexResult {
	out := make([]domain.IndexResult, len(v))
	for i, x := range v {
		out[i] = domain.IndexResult{
			PRCPTOT: x, Rx1day: x / 10, Rx5day: x / 4,
			CategoryFractions: map[string]float64{"none": 0.5, "light": 0.5},
			ValidDays:         122,
		}
	}
	return out
}

func TestAggregate_FiveMemberScenario(t *testing.T) {
	results := uniformMembers(900, 950, 1000, 1050, 1100)

	t.Run("population", func(t *testing.T) {
		a := newTestAggregator(t, func(o *Options) { o.Estimator = SpreadPopulation })
		e, err := a.Aggregate(period, results, nil)
		require.NoError(t, err)
		assert.InDelta(t, 1000, e.Mean.PRCPTOT, 1e-9)
		assert.InDelta(t, 70.7107, e.Spread.PRCPTOT, 1e-3)
		assert.InDelta(t, 0.0707, e.SpreadRatio, 1e-4)
		assert.Equal(t, domain.ConfidenceHigh, e.Confidence)
		assert.Equal(t, 5, e.NMembers)
	})

	t.Run("sample", func(t *testing.T) {
		a := newTestAggregator(t, nil)
		e, err := a.Aggregate(period, results, nil)
		require.NoError(t, err)
		assert.InDelta(t, 79.0569, e.Spread.PRCPTOT, 1e-3)
		assert.InDelta(t, 0.0791, e.SpreadRatio, 1e-4)
		assert.Equal(t, domain.ConfidenceHigh, e.Confidence)
	})
}

func TestAggregate_Percentiles(t *testing.T) {
	a := newTestAggregator(t, nil)
	e, err := a.Aggregate(period, uniformMembers(1100, 900, 1000, 1050, 950), nil)
	require.NoError(t, err)

	p := e.Percentiles[domain.FieldPRCPTOT]
	assert.InDelta(t, 920, p.P10, 1e-9)
	assert.InDelta(t, 950, p.P25, 1e-9)
	assert.InDelta(t, 1000, p.P50, 1e-9)
	assert.InDelta(t, 1050, p.P75, 1e-9)
	assert.InDelta(t, 1080, p.P90, 1e-9)
	assert.Len(t, e.Percentiles, len(domain.HeadlineFields))
}

func TestAggregate_SingleMember(t *testing.T) {
	a := newTestAggregator(t, nil)
	e, err := a.Aggregate(period, uniformMembers(800), []string{"m/r1"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.Spread.PRCPTOT)
	assert.Equal(t, 0.0, e.SpreadRatio)
	assert.Equal(t, domain.ConfidenceMedium, e.Confidence, "small ensembles cap at medium")
	assert.Equal(t, 1, e.NMembers)
	assert.Equal(t, 800.0, e.Percentiles[domain.FieldPRCPTOT].P90)
}

func TestAggregate_SmallEnsembleCap(t *testing.T) {
	a := newTestAggregator(t, nil)
	e, err := a.Aggregate(period, uniformMembers(1000, 1001), nil)
	require.NoError(t, err)
	assert.Less(t, e.SpreadRatio, 0.15)
	assert.Equal(t, domain.ConfidenceMedium, e.Confidence)

	e, err = a.Aggregate(period, uniformMembers(100, 1000), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceLow, e.Confidence, "the cap never raises confidence")
}

func TestAggregate_WorstFieldDecides(t *testing.T) {
	a := newTestAggregator(t, nil)
	results := uniformMembers(1000, 1000, 1000, 1000)
	for i := range results {
		results[i].Rx1day = float64(50 + 30*i)
	}
	e, err := a.Aggregate(period, results, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.Spread.PRCPTOT)
	assert.Equal(t, domain.ConfidenceLow, e.Confidence)
}

func TestAggregate_NonHeadlineFieldsIgnoredForConfidence(t *testing.T) {
	a := newTestAggregator(t, nil)
	results := uniformMembers(1000, 1000, 1000)
	results[0].CDD, results[1].CDD, results[2].CDD = 1, 40, 90
	e, err := a.Aggregate(period, results, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfidenceHigh, e.Confidence)
	assert.Greater(t, e.Spread.CDD, 0.0)
}

func TestAggregate_ZeroMeanUsesEpsilon(t *testing.T) {
	a := newTestAggregator(t, nil)
	e, err := a.Aggregate(period, uniformMembers(0, 0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.SpreadRatio)
	assert.Equal(t, domain.ConfidenceHigh, e.Confidence)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	a := newTestAggregator(t, nil)
	rng := rand.New(rand.NewPCG(3, 5))

	results := make([]domain.IndexResult, 9)
	members := make([]string, len(results))
	for i := range results {
		results[i] = domain.IndexResult{
			PRCPTOT: 600 + rng.Float64()*900,
			Rx1day:  40 + rng.Float64()*200,
			Rx5day:  120 + rng.Float64()*400,
			SDII:    rng.Float64() * 30,
			CDD:     float64(rng.IntN(60)),
			CategoryFractions: map[string]float64{
				"none": 0.3 + rng.Float64()*0.1, "light": 0.2, "heavy": 0.1,
			},
			ValidDays: 122,
		}
		members[i] = string(rune('a' + i))
	}
	want, err := a.Aggregate(period, results, members)
	require.NoError(t, err)

	for trial := 0; trial < 20; trial++ {
		rng.Shuffle(len(results), func(i, j int) {
			results[i], results[j] = results[j], results[i]
			members[i], members[j] = members[j], members[i]
		})
		got, err := a.Aggregate(period, results, members)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
			t.Fatalf("shuffle %d changed the result (-want +got):\n%s", trial, diff)
		}
	}
}

func TestAggregate_ConfidenceMonotoneInSpread(t *testing.T) {
	a := newTestAggregator(t, nil)
	rank := map[domain.Confidence]int{domain.ConfidenceLow: 0, domain.ConfidenceMedium: 1, domain.ConfidenceHigh: 2}

	for _, n := range []int{1, 2, 3, 5, 10} {
		prev := 3
		for _, width := range []float64{0, 10, 50, 100, 200, 400, 800, 1600} {
			v := make([]float64, n)
			for i := range v {
				v[i] = 1000 + width*(float64(i)-float64(n-1)/2)
			}
			e, err := a.Aggregate(period, uniformMembers(v...), nil)
			require.NoError(t, err)
			r := rank[e.Confidence]
			assert.LessOrEqual(t, r, prev, "n=%d width=%v", n, width)
			if n < MinMembersForHigh {
				assert.NotEqual(t, domain.ConfidenceHigh, e.Confidence)
			}
			prev = r
		}
	}
}

func TestAggregate_CategoryFractionsStayNormalized(t *testing.T) {
	a := newTestAggregator(t, nil)
	results := []domain.IndexResult{
		{CategoryFractions: map[string]float64{"none": 0.7, "light": 0.3}},
		{CategoryFractions: map[string]float64{"none": 0.5, "light": 0.5}},
		{CategoryFractions: map[string]float64{"none": 0.6, "light": 0.4}},
	}
	e, err := a.Aggregate(period, results, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, e.Mean.CategoryFractions["none"], 1e-12)
	assert.InDelta(t, 1, e.Mean.CategoryFractions["none"]+e.Mean.CategoryFractions["light"], 1e-9)
}

func TestAggregate_Empty(t *testing.T) {
	a := newTestAggregator(t, nil)
	_, err := a.Aggregate(period, nil, nil)
	assert.Equal(t, domain.KindInsufficientData, domain.ErrorKind(err))
}

func TestClassify(t *testing.T) {
	a := newTestAggregator(t, nil)
	tests := []struct {
		ratio float64
		n     int
		want  domain.Confidence
	}{
		{0.149, 5, domain.ConfidenceHigh},
		{0.15, 5, domain.ConfidenceMedium},
		{0.349, 5, domain.ConfidenceMedium},
		{0.35, 5, domain.ConfidenceLow},
		{0.01, 2, domain.ConfidenceMedium},
		{0.01, 3, domain.ConfidenceHigh},
		{0.5, 2, domain.ConfidenceLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, a.Classify(tt.ratio, tt.n), "ratio=%v n=%d", tt.ratio, tt.n)
	}
}

func TestOptions_Validate(t *testing.T) {
	bad := []Options{
		{HighBelow: 0.35, MediumBelow: 0.15, Estimator: SpreadSample, Epsilon: 1e-9},
		{HighBelow: 0.15, MediumBelow: 0.35, Estimator: "robust", Epsilon: 1e-9},
		{HighBelow: 0.15, MediumBelow: 0.35, Estimator: SpreadSample},
	}
	for _, o := range bad {
		_, err := New(o)
		assert.Equal(t, domain.KindConfiguration, domain.ErrorKind(err))
	}
}
