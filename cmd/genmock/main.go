// Command genmock writes a deterministic synthetic ensemble analysis request
// over the Indian monsoon domain. Rainfall follows two orographic maxima, the
// Western Ghats and the Northeast hills, with a per-member wetting trend
// between the baseline and target periods.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/jjas_request.json -members 5 -region Western
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/normalize"
)

type options struct {
	out           string
	region        string
	members       int
	seed          uint64
	resolution    float64
	baselineStart int
	baselineEnd   int
	targetStart   int
	targetEnd     int
	fluxEvery     int
	trends        bool
}

// maximum is a Gaussian rainfall bump in mm/day.
type maximum struct {
	lat, lon, sigma, peak float64
}

var climatology = []maximum{
	{lat: 15, lon: 74, sigma: 2, peak: 14},      // Western Ghats
	{lat: 25.5, lon: 91.5, sigma: 2.5, peak: 16}, // Northeast hills
	{lat: 22, lon: 82, sigma: 5, peak: 4},        // monsoon trough
}

func main() {
	var o options
	flag.StringVar(&o.out, "out", "", "output path for the request JSON")
	flag.StringVar(&o.region, "region", "Western", "region to analyze")
	flag.IntVar(&o.members, "members", 5, "ensemble members")
	flag.Uint64Var(&o.seed, "seed", 42, "random seed")
	flag.Float64Var(&o.resolution, "res", 2, "grid spacing in degrees")
	flag.IntVar(&o.baselineStart, "baseline-start", 1990, "first baseline year")
	flag.IntVar(&o.baselineEnd, "baseline-end", 1994, "last baseline year")
	flag.IntVar(&o.targetStart, "target-start", 2040, "first target year")
	flag.IntVar(&o.targetEnd, "target-end", 2044, "last target year")
	flag.IntVar(&o.fluxEvery, "flux-every", 3, "every Nth member is written as kg m-2 s-1 flux (0 disables)")
	flag.BoolVar(&o.trends, "trends", false, "request trend estimates")
	flag.Parse()

	if o.out == "" {
		flag.Usage()
		log.Fatal("missing required flag: -out")
	}
	doc, err := generate(o)
	if err != nil {
		log.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(o.out, data, 0o644); err != nil { //nolint:gosec // fixture file
		log.Fatal(err)
	}
	log.Printf("wrote %d members to %s (%d bytes)", len(doc.Realizations), o.out, len(data))
}

func generate(o options) (domain.AnalysisRequestDocument, error) {
	if o.members < 1 {
		return domain.AnalysisRequestDocument{}, fmt.Errorf("need at least one member, got %d", o.members)
	}
	if !(o.resolution > 0) {
		return domain.AnalysisRequestDocument{}, fmt.Errorf("grid spacing must be positive, got %v", o.resolution)
	}
	if o.baselineEnd < o.baselineStart || o.targetEnd < o.targetStart || o.targetStart <= o.baselineEnd {
		return domain.AnalysisRequestDocument{}, fmt.Errorf("need ordered, non-overlapping baseline and target periods")
	}

	lat := axis(domain.IndiaDomain.LatMin+o.resolution/2, domain.IndiaDomain.LatMax, o.resolution)
	lon := axis(domain.IndiaDomain.LonMin+o.resolution/2, domain.IndiaDomain.LonMax, o.resolution)
	var days []time.Time
	for y := o.baselineStart; y <= o.targetEnd; y++ {
		if y > o.baselineEnd && y < o.targetStart {
			continue
		}
		for d := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC); d.Month() <= time.September; d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	}

	doc := domain.AnalysisRequestDocument{
		Region:   o.region,
		Target:   domain.PeriodDocument{StartYear: o.targetStart, EndYear: o.targetEnd},
		Baseline: &domain.PeriodDocument{StartYear: o.baselineStart, EndYear: o.baselineEnd},
		Trends:   o.trends,
	}
	for m := range o.members {
		flux := o.fluxEvery > 0 && (m+1)%o.fluxEvery == 0
		in := member(o, m, lat, lon, days, flux)
		doc.Realizations = append(doc.Realizations, domain.NewRealizationDocument(in))
	}
	return doc, nil
}

func axis(from, to, step float64) []float64 {
	var out []float64
	for v := from; v <= to; v += step {
		out = append(out, math.Round(v*1000)/1000)
	}
	return out
}

// member draws one realization. Each day is wet with probability 0.6 and wet
// amounts are Gamma distributed around the cell climatology. Target years
// are scaled by a member-specific wetting factor; cells over the Bay of
// Bengal are left missing.
func member(o options, m int, lat, lon []float64, days []time.Time, flux bool) domain.RealizationInput {
	src := rand.NewPCG(o.seed, uint64(m)+1)
	rng := rand.New(src)
	const pWet, shape = 0.6, 0.8
	factor := 1.06 + 0.02*float64(m)

	values := make([]float64, 0, len(days)*len(lat)*len(lon))
	for _, d := range days {
		scale := 1.0
		if d.Year() >= o.targetStart {
			scale = factor
		}
		for _, la := range lat {
			for _, lo := range lon {
				if la < 20 && lo > 85 {
					values = append(values, math.NaN())
					continue
				}
				var v float64
				if rng.Float64() < pWet {
					mean := scale * cellMean(la, lo) / pWet
					v = distuv.Gamma{Alpha: shape, Beta: shape / mean, Src: src}.Rand()
				}
				if flux {
					v /= normalize.SecondsPerDay
				}
				values = append(values, v)
			}
		}
	}

	units := "mm/day"
	if flux {
		units = "kg m-2 s-1"
	}
	return domain.RealizationInput{
		ModelID:  fmt.Sprintf("SYN-%02d", m+1),
		MemberID: "r1i1p1f1",
		Field: domain.RawField{
			Axes: []domain.Axis{
				{Name: "time", Times: days},
				{Name: "lat", Values: lat},
				{Name: "lon", Values: lon},
			},
			Values: values,
			Attrs:  map[string]string{domain.UnitsAttr: units},
		},
	}
}

func cellMean(lat, lon float64) float64 {
	v := 1.5
	for _, c := range climatology {
		d2 := (lat-c.lat)*(lat-c.lat) + (lon-c.lon)*(lon-c.lon)
		v += c.peak * math.Exp(-d2/(2*c.sigma*c.sigma))
	}
	return v
}
