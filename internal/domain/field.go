package domain

import (
	"fmt"
	"math"
	"time"
)

// Units tags the physical unit of a rainfall field.
type Units string

const (
	UnitsUnknown Units = ""
	// UnitsFlux is a precipitation mass flux in kg m-2 s-1 (equivalently mm/s of water).
	UnitsFlux Units = "kg m-2 s-1"
	// UnitsDepthPerDay is accumulated depth per day in millimetres.
	UnitsDepthPerDay Units = "mm/day"
	// UnitsRateMetres is a liquid water rate in m s-1.
	UnitsRateMetres Units = "m s-1"
	UnitsHourly     Units = "mm/hr"
	UnitsCentimetre Units = "cm/day"
	// UnitsMetreDepth is a daily accumulation in metres, as reanalyses report it.
	UnitsMetreDepth Units = "m/day"
)

// UnitsAttr is the attribute key carrying a declared units string.
const UnitsAttr = "units"

// Axis is a named coordinate vector. Spatial axes carry Values, time axes carry Times.
type Axis struct {
	Name   string
	Values []float64
	Times  []time.Time
}

// Len returns the number of coordinate points on the axis.
func (a Axis) Len() int {
	if len(a.Times) > 0 {
		return len(a.Times)
	}
	return len(a.Values)
}

// RawField is a decoded but not yet normalized rainfall field. Values are stored
// row-major in the order of Axes; NaN marks a missing value.
type RawField struct {
	Axes   []Axis
	Values []float64
	Attrs  map[string]string

	// CellArea optionally gives the true area of each spatial cell, indexed
	// [latIndex*len(lon)+lonIndex] over the raw latitude and longitude axes.
	CellArea []float64
}

// AxisNames lists the axis names in storage order.
func (f RawField) AxisNames() []string {
	names := make([]string, len(f.Axes))
	for i, a := range f.Axes {
		names[i] = a.Name
	}
	return names
}

// BoundingBox is a geographic box in degrees with inclusive bounds.
type BoundingBox struct {
	LatMin float64 `json:"lat_min" yaml:"lat_min"`
	LatMax float64 `json:"lat_max" yaml:"lat_max"`
	LonMin float64 `json:"lon_min" yaml:"lon_min"`
	LonMax float64 `json:"lon_max" yaml:"lon_max"`
}

// IndiaDomain is the default analysis extent: 6°N–37°N, 68°E–97°E.
var IndiaDomain = BoundingBox{LatMin: 6, LatMax: 37, LonMin: 68, LonMax: 97}

// coordEpsilon absorbs float noise in grid coordinates when testing inclusive bounds.
const coordEpsilon = 1e-9

// Contains reports whether the point lies inside the box, bounds included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin-coordEpsilon && lat <= b.LatMax+coordEpsilon &&
		lon >= b.LonMin-coordEpsilon && lon <= b.LonMax+coordEpsilon
}

// Validate checks that the box is well formed.
func (b BoundingBox) Validate() error {
	if math.IsNaN(b.LatMin) || math.IsNaN(b.LatMax) || math.IsNaN(b.LonMin) || math.IsNaN(b.LonMax) {
		return &ConfigurationError{Setting: "bounding box", Reason: "bounds must be numbers"}
	}
	if b.LatMin > b.LatMax {
		return &ConfigurationError{Setting: "bounding box", Reason: fmt.Sprintf("lat_min %.4f exceeds lat_max %.4f", b.LatMin, b.LatMax)}
	}
	if b.LonMin > b.LonMax {
		return &ConfigurationError{Setting: "bounding box", Reason: fmt.Sprintf("lon_min %.4f exceeds lon_max %.4f", b.LonMin, b.LonMax)}
	}
	if b.LatMin < -90 || b.LatMax > 90 {
		return &ConfigurationError{Setting: "bounding box", Reason: "latitude outside -90..90"}
	}
	return nil
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("lat %.2f..%.2f, lon %.2f..%.2f", b.LatMin, b.LatMax, b.LonMin, b.LonMax)
}

// GriddedField is a normalized (time, lat, lon) rainfall array in mm/day.
// Lat and Lon are strictly increasing, Time strictly increasing, and
// len(Values) == len(Time)*len(Lat)*len(Lon).
type GriddedField struct {
	Lat      []float64
	Lon      []float64
	Time     []time.Time
	Values   []float64
	Units    Units
	CellArea []float64 // optional, len(Lat)*len(Lon)
}

// NumCells is the number of spatial cells.
func (g GriddedField) NumCells() int { return len(g.Lat) * len(g.Lon) }

// Offset returns the flat index of (t, i, j).
func (g GriddedField) Offset(t, i, j int) int {
	return (t*len(g.Lat)+i)*len(g.Lon) + j
}

// At returns the value at time step t, latitude i, longitude j.
func (g GriddedField) At(t, i, j int) float64 { return g.Values[g.Offset(t, i, j)] }

// CellSeries copies the time series of spatial cell c (c = i*len(Lon)+j).
func (g GriddedField) CellSeries(c int) []float64 {
	n := g.NumCells()
	out := make([]float64, len(g.Time))
	for t := range g.Time {
		out[t] = g.Values[t*n+c]
	}
	return out
}

// Extent returns the coordinate extent of the field.
func (g GriddedField) Extent() BoundingBox {
	if len(g.Lat) == 0 || len(g.Lon) == 0 {
		return BoundingBox{}
	}
	return BoundingBox{LatMin: g.Lat[0], LatMax: g.Lat[len(g.Lat)-1], LonMin: g.Lon[0], LonMax: g.Lon[len(g.Lon)-1]}
}
