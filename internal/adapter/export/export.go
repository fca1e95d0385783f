// Package export writes analysis reports as JSON documents or XLSX workbooks.
package export

import (
	"cmp"
	"encoding/json"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/indices"
)

// Sheet names of the workbook, in order.
const (
	SheetSummary    = "Summary"
	SheetEnsemble   = "Ensemble"
	SheetAnomaly    = "Anomaly"
	SheetCategories = "Categories"
	SheetTrends     = "Trends"
	SheetQuality    = "Quality"
)

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "export: encode report")
	}
	return nil
}

// WriteXLSX writes the report as a workbook with one sheet per result section.
func WriteXLSX(w io.Writer, r domain.Report) error {
	f := xlsx.NewFile()
	builders := []struct {
		name  string
		build func(*xlsx.Sheet, domain.Report)
	}{
		{SheetSummary, summarySheet},
		{SheetEnsemble, ensembleSheet},
		{SheetAnomaly, anomalySheet},
		{SheetCategories, categoriesSheet},
		{SheetTrends, trendsSheet},
		{SheetQuality, qualitySheet},
	}
	for _, b := range builders {
		sheet, err := f.AddSheet(b.name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", b.name)
		}
		b.build(sheet, r)
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func summarySheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Field", "Value")
	addStrings(s, "Report ID", r.ID)
	addStrings(s, "Region", r.Region)
	addStrings(s, "Target period", r.TargetPeriod.String())
	addStrings(s, "Baseline period", r.BaselinePeriod.String())
	addStrings(s, "Direction", string(r.Anomaly.Direction))
	if d, ok := r.Anomaly.Field(domain.FieldPRCPTOT); ok && d.Percent != nil {
		addLabelled(s, "PRCPTOT change (%)", *d.Percent)
	} else {
		addStrings(s, "PRCPTOT change (%)", "undefined")
	}
	addStrings(s, "Confidence", string(r.Target.Confidence))
	addLabelled(s, "Spread ratio", r.Target.SpreadRatio)
	addLabelled(s, "Members", float64(r.Target.NMembers))
	addStrings(s, "Baseline cached", boolString(r.BaselineCached))
	if r.Anomaly.RegionAdjustmentApplied {
		addStrings(s, "Region adjustment", r.Anomaly.AdjustmentNote)
	}
	addStrings(s, "Generated at", r.GeneratedAt.UTC().Format(time.RFC3339))
}

func ensembleSheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Period", "Field", "Mean", "Spread", "P10", "P25", "P50", "P75", "P90")
	for _, e := range []struct {
		label string
		res   domain.EnsembleResult
	}{{"target", r.Target}, {"baseline", r.Baseline}} {
		for _, f := range domain.IndexFields {
			row := s.AddRow()
			row.AddCell().SetString(e.label)
			row.AddCell().SetString(string(f))
			row.AddCell().SetFloat(e.res.Mean.Value(f))
			row.AddCell().SetFloat(e.res.Spread.Value(f))
			if p, ok := e.res.Percentiles[f]; ok {
				for _, v := range []float64{p.P10, p.P25, p.P50, p.P75, p.P90} {
					row.AddCell().SetFloat(v)
				}
			}
		}
	}
}

func anomalySheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Field", "Target", "Baseline", "Absolute", "Percent", "Direction")
	for _, d := range r.Anomaly.Fields {
		row := s.AddRow()
		row.AddCell().SetString(string(d.Field))
		row.AddCell().SetFloat(d.Target)
		row.AddCell().SetFloat(d.Baseline)
		row.AddCell().SetFloat(d.Absolute)
		if d.Percent != nil {
			row.AddCell().SetFloat(*d.Percent)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(string(d.Direction))
	}
}

func categoriesSheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Category", "Target", "Baseline", "Delta")
	for _, name := range categoryOrder(r.Anomaly.CategoryDeltas) {
		row := s.AddRow()
		row.AddCell().SetString(name)
		row.AddCell().SetFloat(r.Target.Mean.CategoryFractions[name])
		row.AddCell().SetFloat(r.Baseline.Mean.CategoryFractions[name])
		row.AddCell().SetFloat(r.Anomaly.CategoryDeltas[name])
	}
}

func trendsSheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Field", "Slope per decade", "Intercept", "R squared", "P value", "Years", "Significant")
	for _, t := range r.Trends {
		row := s.AddRow()
		row.AddCell().SetString(string(t.Field))
		row.AddCell().SetFloat(t.SlopePerDecade)
		row.AddCell().SetFloat(t.Intercept)
		row.AddCell().SetFloat(t.RSquared)
		row.AddCell().SetFloat(t.PValue)
		row.AddCell().SetInt(t.Years)
		row.AddCell().SetString(boolString(t.Significant))
	}
}

func qualitySheet(s *xlsx.Sheet, r domain.Report) {
	addStrings(s, "Member", "Total cells", "Missing cells", "Missing fraction", "NaN values",
		"Negative values", "Min", "Max", "Source units", "Unit source", "Unit confidence")
	for _, q := range r.Quality {
		row := s.AddRow()
		row.AddCell().SetString(q.Member)
		row.AddCell().SetInt(q.TotalCells)
		row.AddCell().SetInt(q.MissingCells)
		row.AddCell().SetFloat(q.MissingFraction)
		row.AddCell().SetInt(q.NaNValues)
		row.AddCell().SetInt(q.NegativeValues)
		row.AddCell().SetFloat(q.Min)
		row.AddCell().SetFloat(q.Max)
		row.AddCell().SetString(string(q.SourceUnits))
		row.AddCell().SetString(string(q.UnitSource))
		row.AddCell().SetFloat(q.UnitConfidence)
	}
}

// categoryOrder lists the default categories in threshold order, then any
// custom ones by name.
func categoryOrder(deltas map[string]float64) []string {
	defaults := indices.DefaultCategories().Names()
	rank := func(name string) int {
		if i := slices.Index(defaults, name); i >= 0 {
			return i
		}
		return len(defaults)
	}
	names := slices.Sorted(maps.Keys(deltas))
	slices.SortStableFunc(names, func(a, b string) int { return cmp.Compare(rank(a), rank(b)) })
	return names
}

func addStrings(s *xlsx.Sheet, values ...string) {
	row := s.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addLabelled(s *xlsx.Sheet, label string, v float64) {
	row := s.AddRow()
	row.AddCell().SetString(label)
	row.AddCell().SetFloat(v)
}

func boolString(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
