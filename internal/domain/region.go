package domain

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Adjustment is an advisory regional correction applied to anomaly deltas.
// Scale multiplies the absolute delta; Offset adds percentage points of the baseline.
type Adjustment struct {
	Scale  float64 `json:"scale" yaml:"scale"`
	Offset float64 `json:"offset" yaml:"offset"`
	Note   string  `json:"note,omitempty" yaml:"note"`
}

// NoAdjustment is the identity adjustment.
var NoAdjustment = Adjustment{Scale: 1}

// IsDefault reports whether applying a leaves every delta unchanged.
func (a Adjustment) IsDefault() bool { return a.Scale == 1 && a.Offset == 0 }

// Region is a named analysis area. Polygon, when set, takes precedence over
// Bounds for membership tests; Bounds stays the polygon's envelope.
type Region struct {
	Name       string        `json:"name"`
	Priority   int           `json:"priority"`
	Bounds     BoundingBox   `json:"bounds"`
	Polygon    *geom.Polygon `json:"-"`
	Adjustment Adjustment    `json:"adjustment"`
}

// BoxRegion builds an unadjusted region from a bounding box.
func BoxRegion(name string, box BoundingBox) Region {
	return Region{Name: name, Bounds: box, Adjustment: NoAdjustment}
}

// Contains reports whether the grid cell centre lies in the region. Polygon
// coordinates are (lon, lat); points inside a hole are outside the region.
func (r Region) Contains(lat, lon float64) bool {
	if !r.Bounds.Contains(lat, lon) {
		return false
	}
	if r.Polygon == nil || r.Polygon.NumLinearRings() == 0 {
		return true
	}
	pt := geom.Coord{lon, lat}
	layout := r.Polygon.Layout()
	if !xy.IsPointInRing(layout, pt, r.Polygon.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < r.Polygon.NumLinearRings(); i++ {
		if xy.IsPointInRing(layout, pt, r.Polygon.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

func (r Region) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Bounds)
}
