package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/rainfall-analysis-service/internal/compare"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
)

const tolerance = 1e-6

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// errValidationFailed is returned after the phase report has been printed.
var errValidationFailed = errors.New("validation failed")

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run a request and check the result invariants",
		Long: `Runs a request end to end and checks the invariants of every stage:
input shape, data quality, index consistency, ensemble statistics and
anomaly classification. Prints PASS or FAIL per phase.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			analyzer, err := opts.newAnalyzer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			doc, err := readRequest(input)
			if err != nil {
				return err
			}
			if !runValidation(cmd.Context(), cmd.OutOrStdout(), analyzer, doc) {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "request JSON file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runValidation prints the phase table and details and reports whether every
// phase passed.
func runValidation(ctx context.Context, out io.Writer, analyzer *pipeline.Analyzer, doc domain.AnalysisRequestDocument) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintln(out, "=== Rainfall Analysis Invariant Validation ===")
	fmt.Fprintln(out)

	shape := validateInputShape(doc)
	phases := []*phase{shape}

	var report domain.Report
	run := &phase{name: "Analysis run"}
	if shape.passed() {
		req, err := analyzer.RequestFromDocument(doc)
		if err == nil {
			report, err = analyzer.Analyze(ctx, req)
		}
		if err != nil {
			run.errorf("%s: %v", kindOf(err), err)
		}
	} else {
		run.errorf("skipped: input shape invalid")
	}
	phases = append(phases, run)

	if run.passed() {
		cmp, _ := compare.New(analyzer.Settings().DeadBandPct)
		phases = append(phases,
			validateQuality(report, len(doc.Realizations)+len(doc.BaselineRealizations)),
			validateIndices(report),
			validateEnsemble(report),
			validateAnomaly(report, cmp),
		)
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}
	if run.passed() {
		fmt.Fprintf(out, "\nRegion %s, %d members, direction %s, confidence %s\n",
			report.Region, report.Target.NMembers, report.Anomaly.Direction, report.Target.Confidence)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
	} else {
		fmt.Fprintln(out, "\nValidation FAILED.")
	}
	return allPassed
}

func kindOf(err error) string {
	if k := domain.ErrorKind(err); k != "" {
		return k
	}
	return "error"
}

func validateInputShape(doc domain.AnalysisRequestDocument) *phase {
	p := &phase{name: "Input shape"}
	if doc.Region == "" {
		p.errorf("region is empty")
	}
	if len(doc.Realizations) == 0 {
		p.errorf("no realizations")
	}
	for _, set := range [][]domain.RealizationDocument{doc.Realizations, doc.BaselineRealizations} {
		for _, r := range set {
			label := r.ModelID + "/" + r.MemberID
			if len(r.Axes) != 3 {
				p.errorf("%s: %d axes, want 3", label, len(r.Axes))
				continue
			}
			size := 1
			for _, a := range r.Axes {
				size *= max(len(a.Values), len(a.Times))
			}
			if size != len(r.Values) {
				p.errorf("%s: %d values, axes imply %d", label, len(r.Values), size)
			}
		}
	}
	return p
}

func validateQuality(r domain.Report, members int) *phase {
	p := &phase{name: "Data quality"}
	if len(r.Quality) != members {
		p.errorf("%d quality reports for %d members", len(r.Quality), members)
	}
	for _, q := range r.Quality {
		if q.MissingFraction < 0 || q.MissingFraction > 1 {
			p.errorf("%s: missing fraction %v outside [0, 1]", q.Member, q.MissingFraction)
		}
		if q.MissingCells > q.TotalCells {
			p.errorf("%s: %d missing of %d cells", q.Member, q.MissingCells, q.TotalCells)
		}
		if q.SourceUnits == "" {
			p.errorf("%s: source units not recorded", q.Member)
		}
		if q.UnitConfidence < 0 || q.UnitConfidence > 1 {
			p.errorf("%s: unit confidence %v outside [0, 1]", q.Member, q.UnitConfidence)
		}
	}
	return p
}

func validateIndices(r domain.Report) *phase {
	p := &phase{name: "Index consistency"}
	for _, e := range []struct {
		label string
		res   domain.IndexResult
	}{{"target", r.Target.Mean}, {"baseline", r.Baseline.Mean}} {
		m := e.res
		for _, f := range domain.IndexFields {
			if v := m.Value(f); math.IsNaN(v) || v < 0 {
				p.errorf("%s %s = %v, want a non-negative number", e.label, f, v)
			}
		}
		if m.Rx1day > m.Rx5day+tolerance {
			p.errorf("%s Rx1day %v exceeds Rx5day %v", e.label, m.Rx1day, m.Rx5day)
		}
		if m.HeavyRainDays > m.WetDays+tolerance {
			p.errorf("%s heavy rain days %v exceed wet days %v", e.label, m.HeavyRainDays, m.WetDays)
		}
		var sum float64
		for _, v := range m.CategoryFractions {
			sum += v
		}
		if len(m.CategoryFractions) > 0 && math.Abs(sum-1) > tolerance {
			p.errorf("%s category fractions sum to %v, want 1", e.label, sum)
		}
	}
	return p
}

func validateEnsemble(r domain.Report) *phase {
	p := &phase{name: "Ensemble statistics"}
	for _, e := range []struct {
		label string
		res   domain.EnsembleResult
	}{{"target", r.Target}, {"baseline", r.Baseline}} {
		if e.res.NMembers != len(e.res.Members) {
			p.errorf("%s: n_members %d but %d member labels", e.label, e.res.NMembers, len(e.res.Members))
		}
		if !slices.IsSorted(e.res.Members) {
			p.errorf("%s: members not sorted", e.label)
		}
		if e.res.SpreadRatio < 0 || math.IsNaN(e.res.SpreadRatio) {
			p.errorf("%s: spread ratio %v", e.label, e.res.SpreadRatio)
		}
		switch e.res.Confidence {
		case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		default:
			p.errorf("%s: unknown confidence %q", e.label, e.res.Confidence)
		}
		for f, pc := range e.res.Percentiles {
			if !(pc.P10 <= pc.P25 && pc.P25 <= pc.P50 && pc.P50 <= pc.P75 && pc.P75 <= pc.P90) {
				p.errorf("%s %s: percentiles out of order %+v", e.label, f, pc)
			}
		}
	}
	return p
}

func validateAnomaly(r domain.Report, cmp *compare.Comparator) *phase {
	p := &phase{name: "Anomaly classification"}
	if len(r.Anomaly.Fields) != len(domain.IndexFields) {
		p.errorf("%d field deltas, want %d", len(r.Anomaly.Fields), len(domain.IndexFields))
	}
	for _, d := range r.Anomaly.Fields {
		if (d.Percent == nil) != (d.Baseline == 0) {
			p.errorf("%s: percent defined=%t with baseline %v", d.Field, d.Percent != nil, d.Baseline)
		}
		if !r.Anomaly.RegionAdjustmentApplied && math.Abs(d.Absolute-(d.Target-d.Baseline)) > tolerance {
			p.errorf("%s: absolute %v != target %v - baseline %v", d.Field, d.Absolute, d.Target, d.Baseline)
		}
		if want := cmp.Direction(d.Percent, d.Absolute); d.Direction != want {
			p.errorf("%s: direction %s, dead band gives %s", d.Field, d.Direction, want)
		}
	}
	if d, ok := r.Anomaly.Field(domain.FieldPRCPTOT); ok && d.Direction != r.Anomaly.Direction {
		p.errorf("overall direction %s differs from PRCPTOT direction %s", r.Anomaly.Direction, d.Direction)
	}
	if r.Anomaly.RegionAdjustmentApplied && r.Anomaly.AdjustmentNote == "" {
		p.errorf("region adjustment applied without a note")
	}
	return p
}
