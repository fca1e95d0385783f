// Package region loads the catalogue of named analysis regions and resolves
// grid cells to regions.
package region

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

//go:embed regions.yaml
var defaultCatalogue []byte

type fileSchema struct {
	Regions []regionSchema `yaml:"regions"`
}

type regionSchema struct {
	Name       string              `yaml:"name"`
	Priority   int                 `yaml:"priority"`
	Bounds     *domain.BoundingBox `yaml:"bounds"`
	Polygon    [][]float64         `yaml:"polygon"`
	Adjustment *adjustmentSchema   `yaml:"adjustment"`
}

type adjustmentSchema struct {
	Scale  *float64 `yaml:"scale"`
	Offset float64  `yaml:"offset"`
	Note   string   `yaml:"note"`
}

// Catalogue is an immutable, ordered set of regions.
type Catalogue struct {
	regions []domain.Region
	byName  map[string]int
}

// Default returns the built-in catalogue.
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// LoadFile reads a catalogue from a YAML file.
func LoadFile(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read catalogue %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "region: catalogue %s", path)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (*Catalogue, error) {
	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "region: parse catalogue")
	}
	if len(f.Regions) == 0 {
		return nil, &domain.ConfigurationError{Setting: "region catalogue", Reason: "no regions defined"}
	}

	c := &Catalogue{byName: make(map[string]int, len(f.Regions))}
	for _, rs := range f.Regions {
		r, err := rs.toRegion()
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(r.Name)
		if _, dup := c.byName[key]; dup {
			return nil, &domain.ConfigurationError{Setting: "region catalogue", Reason: fmt.Sprintf("region %q defined twice", r.Name)}
		}
		c.byName[key] = len(c.regions)
		c.regions = append(c.regions, r)
	}
	return c, nil
}

func (rs regionSchema) toRegion() (domain.Region, error) {
	name := strings.TrimSpace(rs.Name)
	if name == "" {
		return domain.Region{}, &domain.ConfigurationError{Setting: "region catalogue", Reason: "region without a name"}
	}
	r := domain.Region{Name: name, Priority: rs.Priority, Adjustment: domain.NoAdjustment}
	if rs.Priority < 0 {
		return domain.Region{}, &domain.ConfigurationError{Setting: "region " + name, Reason: "priority must not be negative"}
	}

	switch {
	case len(rs.Polygon) > 0:
		poly, envelope, err := buildPolygon(name, rs.Polygon)
		if err != nil {
			return domain.Region{}, err
		}
		r.Polygon = poly
		r.Bounds = envelope
	case rs.Bounds != nil:
		r.Bounds = *rs.Bounds
	default:
		return domain.Region{}, &domain.ConfigurationError{Setting: "region " + name, Reason: "needs bounds or a polygon"}
	}
	if err := r.Bounds.Validate(); err != nil {
		return domain.Region{}, fmt.Errorf("region %s: %w", name, err)
	}

	if a := rs.Adjustment; a != nil {
		r.Adjustment.Offset = a.Offset
		r.Adjustment.Note = a.Note
		if a.Scale != nil {
			if !(*a.Scale > 0) {
				return domain.Region{}, &domain.ConfigurationError{Setting: "region " + name, Reason: "adjustment scale must be positive"}
			}
			r.Adjustment.Scale = *a.Scale
		}
	}
	return r, nil
}

// buildPolygon turns [lon, lat] vertices into a closed go-geom polygon and its envelope.
func buildPolygon(name string, vertices [][]float64) (*geom.Polygon, domain.BoundingBox, error) {
	flat := make([]float64, 0, 2*len(vertices)+2)
	box := domain.BoundingBox{LatMin: math.Inf(1), LatMax: math.Inf(-1), LonMin: math.Inf(1), LonMax: math.Inf(-1)}
	for _, v := range vertices {
		if len(v) != 2 {
			return nil, domain.BoundingBox{}, &domain.ConfigurationError{Setting: "region " + name, Reason: "polygon vertices must be [lon, lat] pairs"}
		}
		lon, lat := v[0], v[1]
		flat = append(flat, lon, lat)
		box.LonMin, box.LonMax = math.Min(box.LonMin, lon), math.Max(box.LonMax, lon)
		box.LatMin, box.LatMax = math.Min(box.LatMin, lat), math.Max(box.LatMax, lat)
	}
	if n := len(flat); flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}
	if len(flat) < 8 {
		return nil, domain.BoundingBox{}, &domain.ConfigurationError{Setting: "region " + name, Reason: "polygon needs at least three distinct vertices"}
	}

	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
		return nil, domain.BoundingBox{}, &domain.ConfigurationError{Setting: "region " + name, Reason: err.Error()}
	}
	return poly, box, nil
}

// Regions returns the regions in catalogue order.
func (c *Catalogue) Regions() []domain.Region {
	out := make([]domain.Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Lookup finds a region by case-insensitive name.
func (c *Catalogue) Lookup(name string) (domain.Region, bool) {
	i, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return domain.Region{}, false
	}
	return c.regions[i], true
}

// Names lists region names in catalogue order.
func (c *Catalogue) Names() []string {
	out := make([]string, len(c.regions))
	for i, r := range c.regions {
		out[i] = r.Name
	}
	return out
}

// Partition assigns every grid cell to at most one region: the one with the
// highest priority containing the cell centre, earlier catalogue entries
// winning ties. Regions with priority 0 take no part. The result maps region
// names to lat-major cell masks; regions that win no cell are omitted.
func (c *Catalogue) Partition(lat, lon []float64) map[string][]bool {
	n := len(lat) * len(lon)
	out := make(map[string][]bool)
	for i, la := range lat {
		for j, lo := range lon {
			best := -1
			for k, r := range c.regions {
				if r.Priority <= 0 || !r.Contains(la, lo) {
					continue
				}
				if best < 0 || r.Priority > c.regions[best].Priority {
					best = k
				}
			}
			if best < 0 {
				continue
			}
			name := c.regions[best].Name
			mask, ok := out[name]
			if !ok {
				mask = make([]bool, n)
				out[name] = mask
			}
			mask[i*len(lon)+j] = true
		}
	}
	return out
}
