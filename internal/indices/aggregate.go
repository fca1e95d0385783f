package indices

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// AggregateToRegion reduces per-cell indices to an area-weighted region mean.
// Cells are weighted by their true area when known, else by cos(latitude).
// Missing cells and cells without valid days in the period are excluded.
func (c *Calculator) AggregateToRegion(cells domain.CellIndices, region domain.Region) (domain.IndexResult, error) {
	nLon := len(cells.Lon)
	selected := make([]bool, len(cells.Cells))
	for i, lat := range cells.Lat {
		for j, lon := range cells.Lon {
			selected[i*nLon+j] = region.Contains(lat, lon)
		}
	}
	return c.AggregateSelection(cells, region, selected)
}

// AggregateSelection is AggregateToRegion over an explicit cell selection, as
// produced by a priority partition of overlapping regions.
func (c *Calculator) AggregateSelection(cells domain.CellIndices, region domain.Region, selected []bool) (domain.IndexResult, error) {
	nLon := len(cells.Lon)
	hasArea := len(cells.CellArea) == len(cells.Cells)

	var (
		total   int
		weights []float64
		days    []float64
	)
	values := make(map[domain.Field][]float64, len(domain.IndexFields))
	fractions := make(map[string][]float64, len(c.opts.Categories))

	for idx, cell := range cells.Cells {
		if idx >= len(selected) || !selected[idx] {
			continue
		}
		total++
		if (idx < len(cells.Missing) && cells.Missing[idx]) || cell.ValidDays == 0 {
			continue
		}
		var w float64
		if hasArea {
			w = cells.CellArea[idx]
		} else {
			w = math.Cos(cells.Lat[idx/nLon] * math.Pi / 180)
		}
		if !(w > 0) {
			continue
		}
		weights = append(weights, w)
		for _, f := range domain.IndexFields {
			values[f] = append(values[f], cell.Value(f))
		}
		for _, cat := range c.opts.Categories {
			fractions[cat.Name] = append(fractions[cat.Name], cell.CategoryFractions[cat.Name])
		}
		days = append(days, cell.ValidDays)
	}
	valid := len(weights)

	if total == 0 {
		return domain.IndexResult{}, &domain.EmptyRegionError{
			Region: region.Name,
			Box:    region.Bounds,
			Extent: extent(cells),
		}
	}
	cov := domain.Coverage{ValidCells: valid, TotalCells: total}
	if valid == 0 || cov.Fraction() < c.opts.MinValidFraction {
		return domain.IndexResult{}, &domain.InsufficientDataError{
			Subject:  "region aggregation of " + cells.Label(),
			Region:   region.Name,
			Period:   cells.Period.String(),
			Valid:    valid,
			Total:    total,
			Required: c.opts.MinValidFraction,
		}
	}

	out := c.emptyResult()
	for _, f := range domain.IndexFields {
		out.Set(f, stat.Mean(values[f], weights))
	}
	for _, cat := range c.opts.Categories {
		out.CategoryFractions[cat.Name] = stat.Mean(fractions[cat.Name], weights)
	}
	out.ValidDays = stat.Mean(days, weights)
	out.Coverage = cov
	return out, nil
}

// SpatialSelection summarizes every index over the valid selected cells with
// an unweighted mean, population standard deviation and extremes. It returns
// nil when no selected cell is valid.
func SpatialSelection(cells domain.CellIndices, selected []bool) map[domain.Field]domain.SpatialStats {
	values := make(map[domain.Field][]float64, len(domain.IndexFields))
	for idx, cell := range cells.Cells {
		if idx >= len(selected) || !selected[idx] {
			continue
		}
		if (idx < len(cells.Missing) && cells.Missing[idx]) || cell.ValidDays == 0 {
			continue
		}
		for _, f := range domain.IndexFields {
			values[f] = append(values[f], cell.Value(f))
		}
	}
	if len(values) == 0 {
		return nil
	}

	out := make(map[domain.Field]domain.SpatialStats, len(domain.IndexFields))
	for _, f := range domain.IndexFields {
		mean, std := stat.PopMeanStdDev(values[f], nil)
		out[f] = domain.SpatialStats{Mean: mean, Std: std, Min: floats.Min(values[f]), Max: floats.Max(values[f])}
	}
	return out
}

func extent(cells domain.CellIndices) domain.BoundingBox {
	if len(cells.Lat) == 0 || len(cells.Lon) == 0 {
		return domain.BoundingBox{}
	}
	return domain.BoundingBox{
		LatMin: cells.Lat[0], LatMax: cells.Lat[len(cells.Lat)-1],
		LonMin: cells.Lon[0], LonMax: cells.Lon[len(cells.Lon)-1],
	}
}
