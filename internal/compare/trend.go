package compare

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// MinTrendYears is the shortest annual series a trend is fitted to.
const MinTrendYears = 3

// SignificanceLevel is the two-tailed p-value below which a trend is significant.
const SignificanceLevel = 0.05

// FitTrend fits an ordinary least-squares line to annual values and tests the
// slope against zero with a two-tailed Student's t test.
func FitTrend(f domain.Field, years []int, values []float64) (domain.Trend, error) {
	if len(years) != len(values) {
		return domain.Trend{}, &domain.ConfigurationError{Setting: "trend input", Reason: fmt.Sprintf("%d years but %d values", len(years), len(values))}
	}
	var xs, ys []float64
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		xs = append(xs, float64(years[i]))
		ys = append(ys, v)
	}
	n := len(xs)
	if n < MinTrendYears {
		return domain.Trend{}, &domain.InsufficientDataError{
			Subject: "trend of " + string(f),
			Valid:   n,
			Total:   len(values),
			Reason:  fmt.Sprintf("%d usable years, at least %d required", n, MinTrendYears),
		}
	}

	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, intercept, slope)

	meanX := stat.Mean(xs, nil)
	var sse, sxx float64
	for i := range xs {
		resid := ys[i] - (intercept + slope*xs[i])
		sse += resid * resid
		sxx += (xs[i] - meanX) * (xs[i] - meanX)
	}
	df := float64(n - 2)
	p := 1.0
	switch se := math.Sqrt(sse / df / sxx); {
	case se > 0:
		tStat := slope / se
		tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
		p = 2 * (1 - tDist.CDF(math.Abs(tStat)))
	case slope != 0:
		p = 0
	}
	if math.IsNaN(r2) {
		r2 = 0
	}

	return domain.Trend{
		Field:          f,
		SlopePerDecade: slope * 10,
		Intercept:      intercept,
		RSquared:       r2,
		PValue:         p,
		Years:          n,
		Significant:    p < SignificanceLevel,
	}, nil
}
