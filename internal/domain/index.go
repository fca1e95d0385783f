package domain

import "maps"

// Field names a scalar rainfall index.
type Field string

const (
	FieldPRCPTOT       Field = "PRCPTOT"
	FieldRx1day        Field = "Rx1day"
	FieldRx5day        Field = "Rx5day"
	FieldSDII          Field = "SDII"
	FieldCDD           Field = "CDD"
	FieldCWD           Field = "CWD"
	FieldWetDays       Field = "wet_days"
	FieldHeavyRainDays Field = "heavy_rain_days"
)

// IndexFields are the scalar indices carried by every IndexResult, in report order.
var IndexFields = []Field{
	FieldPRCPTOT, FieldRx1day, FieldRx5day,
	FieldSDII, FieldCDD, FieldCWD, FieldWetDays, FieldHeavyRainDays,
}

// HeadlineFields drive ensemble confidence and percentiles.
var HeadlineFields = []Field{FieldPRCPTOT, FieldRx1day, FieldRx5day}

// Coverage reports how many cells contributed to a region-aggregated result.
type Coverage struct {
	ValidCells int `json:"valid_cells"`
	TotalCells int `json:"total_cells"`
}

// Fraction returns ValidCells/TotalCells, or 0 for an empty region.
func (c Coverage) Fraction() float64 {
	if c.TotalCells == 0 {
		return 0
	}
	return float64(c.ValidCells) / float64(c.TotalCells)
}

// IndexResult holds rainfall indices for one cell or region, one member and one period.
// Rx5day >= Rx1day always holds, and CategoryFractions sums to 1 whenever ValidDays > 0.
type IndexResult struct {
	PRCPTOT       float64 `json:"prcptot"`
	Rx1day        float64 `json:"rx1day"`
	Rx5day        float64 `json:"rx5day"`
	SDII          float64 `json:"sdii"`
	CDD           float64 `json:"cdd"`
	CWD           float64 `json:"cwd"`
	WetDays       float64 `json:"wet_days"`
	HeavyRainDays float64 `json:"heavy_rain_days"`

	CategoryFractions map[string]float64 `json:"category_fractions"`

	ValidDays float64  `json:"valid_days"`
	Coverage  Coverage `json:"coverage,omitzero"`
}

// Value returns the named scalar index.
func (r IndexResult) Value(f Field) float64 {
	switch f {
	case FieldPRCPTOT:
		return r.PRCPTOT
	case FieldRx1day:
		return r.Rx1day
	case FieldRx5day:
		return r.Rx5day
	case FieldSDII:
		return r.SDII
	case FieldCDD:
		return r.CDD
	case FieldCWD:
		return r.CWD
	case FieldWetDays:
		return r.WetDays
	case FieldHeavyRainDays:
		return r.HeavyRainDays
	default:
		return 0
	}
}

// Set assigns the named scalar index.
func (r *IndexResult) Set(f Field, v float64) {
	switch f {
	case FieldPRCPTOT:
		r.PRCPTOT = v
	case FieldRx1day:
		r.Rx1day = v
	case FieldRx5day:
		r.Rx5day = v
	case FieldSDII:
		r.SDII = v
	case FieldCDD:
		r.CDD = v
	case FieldCWD:
		r.CWD = v
	case FieldWetDays:
		r.WetDays = v
	case FieldHeavyRainDays:
		r.HeavyRainDays = v
	}
}

// Clone returns a deep copy.
func (r IndexResult) Clone() IndexResult {
	r.CategoryFractions = maps.Clone(r.CategoryFractions)
	return r
}

// CellIndices holds per-cell results for one member and one period, laid out
// lat-major like the source grid.
type CellIndices struct {
	ModelID  string
	MemberID string
	Period   TimeRange
	Lat      []float64
	Lon      []float64
	CellArea []float64
	Cells    []IndexResult
	Missing  []bool
}

// Label identifies the member in logs and error messages.
func (c CellIndices) Label() string { return memberLabel(c.ModelID, c.MemberID) }
