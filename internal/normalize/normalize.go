// Package normalize turns decoded model output into normalized rainfall series:
// canonical (time, lat, lon) layout, -180..180 longitudes, clipped extent and
// mm/day units.
package normalize

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// CoordinateHints lists candidate axis names per role, tried in order and
// matched case-insensitively. An empty list falls back to the default.
type CoordinateHints struct {
	Lat  []string
	Lon  []string
	Time []string
}

// DefaultHints returns the candidate names seen across common model outputs.
func DefaultHints() CoordinateHints {
	return CoordinateHints{
		Lat:  []string{"lat", "latitude", "y", "rlat"},
		Lon:  []string{"lon", "longitude", "x", "rlon"},
		Time: []string{"time", "t", "date"},
	}
}

func (h CoordinateHints) withDefaults() CoordinateHints {
	d := DefaultHints()
	if len(h.Lat) == 0 {
		h.Lat = d.Lat
	}
	if len(h.Lon) == 0 {
		h.Lon = d.Lon
	}
	if len(h.Time) == 0 {
		h.Time = d.Time
	}
	return h
}

// Normalizer converts RealizationInputs into RealizationSeries.
type Normalizer struct {
	units  UnitThresholds
	logger *slog.Logger
}

// New creates a Normalizer.
func New(units UnitThresholds, logger *slog.Logger) (*Normalizer, error) {
	if err := units.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{units: units, logger: logger}, nil
}

// axisRef locates a role's axis in storage order.
type axisRef struct {
	pos    int
	stride int
}

// Normalize detects coordinates and units, clips to target and returns a new
// series. The input is never modified.
func (n *Normalizer) Normalize(in domain.RealizationInput, hints CoordinateHints, target domain.BoundingBox) (domain.RealizationSeries, error) {
	label := in.Label()
	if err := target.Validate(); err != nil {
		return domain.RealizationSeries{}, err
	}
	raw := in.Field
	hints = hints.withDefaults()

	if len(raw.Axes) != 3 {
		return domain.RealizationSeries{}, &domain.ConfigurationError{
			Setting: "field shape",
			Reason:  fmt.Sprintf("member %s has %d axes [%s], want time, lat and lon", label, len(raw.Axes), strings.Join(raw.AxisNames(), ", ")),
		}
	}
	size := 1
	for _, a := range raw.Axes {
		size *= a.Len()
	}
	if size != len(raw.Values) {
		return domain.RealizationSeries{}, &domain.ConfigurationError{
			Setting: "field shape",
			Reason:  fmt.Sprintf("member %s has %d values but axes imply %d", label, len(raw.Values), size),
		}
	}

	timeAx, err := findAxis(raw, "time", hints.Time)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	latAx, err := findAxis(raw, "latitude", hints.Lat)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	lonAx, err := findAxis(raw, "longitude", hints.Lon)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	if timeAx.pos == latAx.pos || timeAx.pos == lonAx.pos || latAx.pos == lonAx.pos {
		return domain.RealizationSeries{}, &domain.ConfigurationError{
			Setting: "coordinates",
			Reason:  fmt.Sprintf("member %s: one axis matched several roles in [%s]", label, strings.Join(raw.AxisNames(), ", ")),
		}
	}

	times := raw.Axes[timeAx.pos].Times
	if len(times) == 0 {
		return domain.RealizationSeries{}, &domain.ConfigurationError{Setting: "time axis", Reason: fmt.Sprintf("member %s: axis %q carries no timestamps", label, raw.Axes[timeAx.pos].Name)}
	}
	for t := 1; t < len(times); t++ {
		if !times[t].After(times[t-1]) {
			return domain.RealizationSeries{}, &domain.ConfigurationError{Setting: "time axis", Reason: fmt.Sprintf("member %s: time not strictly increasing at %s", label, times[t].Format("2006-01-02"))}
		}
	}

	latOrder, err := latitudeOrder(raw.Axes[latAx.pos].Values, label)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	lonOrder, lonWrapped, err := longitudeOrder(raw.Axes[lonAx.pos].Values, label)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	rawLat := raw.Axes[latAx.pos].Values

	// Clip in normalized coordinates.
	var latIdx, lonIdx []int
	for _, i := range latOrder {
		if rawLat[i] >= target.LatMin-1e-9 && rawLat[i] <= target.LatMax+1e-9 {
			latIdx = append(latIdx, i)
		}
	}
	for _, j := range lonOrder {
		if lonWrapped[j] >= target.LonMin-1e-9 && lonWrapped[j] <= target.LonMax+1e-9 {
			lonIdx = append(lonIdx, j)
		}
	}
	if len(latIdx) == 0 || len(lonIdx) == 0 {
		return domain.RealizationSeries{}, &domain.EmptyRegionError{
			Region: "member " + label,
			Box:    target,
			Extent: domain.BoundingBox{
				LatMin: rawLat[latOrder[0]], LatMax: rawLat[latOrder[len(latOrder)-1]],
				LonMin: lonWrapped[lonOrder[0]], LonMax: lonWrapped[lonOrder[len(lonOrder)-1]],
			},
		}
	}

	guess, err := n.sourceUnits(in, label)
	if err != nil {
		return domain.RealizationSeries{}, err
	}
	factor := conversionFactor(guess.Units)

	nLatRaw, nLonRaw := raw.Axes[latAx.pos].Len(), raw.Axes[lonAx.pos].Len()
	if raw.CellArea != nil && len(raw.CellArea) != nLatRaw*nLonRaw {
		return domain.RealizationSeries{}, &domain.ConfigurationError{
			Setting: "cell area",
			Reason:  fmt.Sprintf("member %s has %d cell areas for a %dx%d grid", label, len(raw.CellArea), nLatRaw, nLonRaw),
		}
	}

	out := domain.GriddedField{
		Lat:    make([]float64, len(latIdx)),
		Lon:    make([]float64, len(lonIdx)),
		Time:   slices.Clone(times),
		Values: make([]float64, len(times)*len(latIdx)*len(lonIdx)),
		Units:  domain.UnitsDepthPerDay,
	}
	for i, src := range latIdx {
		out.Lat[i] = rawLat[src]
	}
	for j, src := range lonIdx {
		out.Lon[j] = lonWrapped[src]
	}
	if raw.CellArea != nil {
		out.CellArea = make([]float64, len(latIdx)*len(lonIdx))
		for i, si := range latIdx {
			for j, sj := range lonIdx {
				out.CellArea[i*len(lonIdx)+j] = raw.CellArea[si*nLonRaw+sj]
			}
		}
	}

	q := domain.QualityReport{
		Member:         label,
		TotalCells:     out.NumCells(),
		SourceUnits:    guess.Units,
		UnitSource:     guess.Source,
		UnitConfidence: guess.Confidence,
		Min:            math.Inf(1),
		Max:            math.Inf(-1),
	}
	valid := make([]bool, out.NumCells())
	for t := range times {
		for i, si := range latIdx {
			for j, sj := range lonIdx {
				v := raw.Values[t*timeAx.stride+si*latAx.stride+sj*lonAx.stride]
				switch {
				case math.IsNaN(v) || math.IsInf(v, 0):
					q.NaNValues++
					v = math.NaN()
				case v < 0:
					q.NegativeValues++
					v = math.NaN()
				default:
					v *= factor
					valid[i*len(lonIdx)+j] = true
					q.Min = math.Min(q.Min, v)
					q.Max = math.Max(q.Max, v)
				}
				out.Values[out.Offset(t, i, j)] = v
			}
		}
	}

	missing := make([]bool, len(valid))
	for c, ok := range valid {
		if !ok {
			missing[c] = true
			q.MissingCells++
		}
	}
	q.MissingFraction = float64(q.MissingCells) / float64(q.TotalCells)
	if q.MissingCells == q.TotalCells {
		q.Min, q.Max = 0, 0
	}
	if q.MissingCells > 0 || q.NegativeValues > 0 {
		n.logger.Warn("realization has missing data",
			"member", label,
			"missing_cells", q.MissingCells,
			"total_cells", q.TotalCells,
			"negative_values", q.NegativeValues,
		)
	}

	return domain.RealizationSeries{
		ModelID:  in.ModelID,
		MemberID: in.MemberID,
		Field:    out,
		Missing:  missing,
		Quality:  q,
	}, nil
}

// sourceUnits resolves the units from the override, the attribute or the
// magnitude heuristic, in that order.
func (n *Normalizer) sourceUnits(in domain.RealizationInput, label string) (UnitGuess, error) {
	if in.UnitsOverride != domain.UnitsUnknown {
		u, ok := ParseUnits(string(in.UnitsOverride))
		if !ok {
			return UnitGuess{}, &domain.ConfigurationError{
				Setting: "units override",
				Reason:  fmt.Sprintf("member %s: %q is not a recognized rainfall unit", label, in.UnitsOverride),
			}
		}
		return UnitGuess{Units: u, Confidence: 1, Source: domain.UnitSourceOverride}, nil
	}

	declared := in.Field.Attrs[domain.UnitsAttr]
	guess := DetectUnits(declared, in.Field.Values, n.units)
	if guess.Confidence < n.units.MinConfidence || guess.Units == domain.UnitsUnknown {
		if guess.Source != domain.UnitSourceAttribute {
			declared = ""
		}
		return UnitGuess{}, &domain.UnitAmbiguousError{
			Member:     label,
			Declared:   declared,
			Guess:      guess.Units,
			Confidence: guess.Confidence,
			Required:   n.units.MinConfidence,
			Statistic:  guess.Statistic,
		}
	}
	if guess.Source == domain.UnitSourceMagnitude {
		n.logger.Debug("units inferred from magnitude",
			"member", label,
			"units", guess.Units,
			"confidence", guess.Confidence,
			"p95", guess.Statistic,
		)
	}
	return guess, nil
}

// findAxis returns the first axis whose name matches a candidate, trying
// candidates in order.
func findAxis(f domain.RawField, role string, candidates []string) (axisRef, error) {
	for _, c := range candidates {
		for pos, a := range f.Axes {
			if strings.EqualFold(a.Name, c) {
				stride := 1
				for _, later := range f.Axes[pos+1:] {
					stride *= later.Len()
				}
				return axisRef{pos: pos, stride: stride}, nil
			}
		}
	}
	return axisRef{}, &domain.CoordinateNotFoundError{
		Axis:       role,
		Candidates: candidates,
		Available:  f.AxisNames(),
	}
}

// latitudeOrder returns source indices in ascending latitude order.
func latitudeOrder(lat []float64, label string) ([]int, error) {
	if len(lat) == 0 {
		return nil, &domain.ConfigurationError{Setting: "latitude axis", Reason: fmt.Sprintf("member %s: axis is empty", label)}
	}
	for _, v := range lat {
		if math.IsNaN(v) || v < -90 || v > 90 {
			return nil, &domain.ConfigurationError{Setting: "latitude axis", Reason: fmt.Sprintf("member %s: latitude %v outside -90..90", label, v)}
		}
	}
	if err := strictlyMonotonic(lat, "latitude axis", label); err != nil {
		return nil, err
	}
	order := make([]int, len(lat))
	for i := range order {
		order[i] = i
	}
	if len(lat) > 1 && lat[0] > lat[1] {
		slices.Reverse(order)
	}
	return order, nil
}

// longitudeOrder wraps longitudes into -180..180 and returns the source indices
// in ascending wrapped order along with the wrapped values. Mixed or rolled
// conventions are accepted as long as no two points collide after wrapping.
func longitudeOrder(lon []float64, label string) ([]int, []float64, error) {
	if len(lon) == 0 {
		return nil, nil, &domain.ConfigurationError{Setting: "longitude axis", Reason: fmt.Sprintf("member %s: axis is empty", label)}
	}
	wrapped := make([]float64, len(lon))
	for i, v := range lon {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, &domain.ConfigurationError{Setting: "longitude axis", Reason: fmt.Sprintf("member %s: longitude is not a number", label)}
		}
		wrapped[i] = WrapLongitude(v)
	}
	order := make([]int, len(lon))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return wrapped[order[a]] < wrapped[order[b]] })
	for k := 1; k < len(order); k++ {
		if wrapped[order[k]] == wrapped[order[k-1]] {
			return nil, nil, &domain.ConfigurationError{
				Setting: "longitude axis",
				Reason:  fmt.Sprintf("member %s: longitude %v appears twice after wrapping to -180..180", label, wrapped[order[k]]),
			}
		}
	}
	return order, wrapped, nil
}

// WrapLongitude maps a longitude in degrees onto -180..180.
func WrapLongitude(lon float64) float64 {
	w := math.Mod(lon+180, 360)
	if w < 0 {
		w += 360
	}
	w -= 180
	if w == -180 && lon > 0 {
		return 180
	}
	return w
}

func strictlyMonotonic(v []float64, setting, label string) error {
	if len(v) < 2 {
		return nil
	}
	increasing := v[1] > v[0]
	for i := 1; i < len(v); i++ {
		if (increasing && !(v[i] > v[i-1])) || (!increasing && !(v[i] < v[i-1])) {
			return &domain.ConfigurationError{
				Setting: setting,
				Reason:  fmt.Sprintf("member %s: coordinates not strictly monotonic at index %d", label, i),
			}
		}
	}
	return nil
}
