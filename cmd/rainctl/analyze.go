package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/rainfall-analysis-service/internal/adapter/export"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
)

type analyzeOptions struct {
	inputs   []string
	jsonOut  string
	xlsxOut  string
	parallel int
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	ao := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one or more request files",
		Long: `Runs each request and prints a summary table. With several inputs the
analyses run concurrently and share one baseline cache; output paths then get
the input's base name appended.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			analyzer, err := opts.newAnalyzer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			reports, err := runAnalyses(cmd.Context(), analyzer, ao.inputs, ao.parallel)
			if err != nil {
				return err
			}
			for i, r := range reports {
				if err := writeOutputs(r, ao, ao.inputs[i], len(reports) > 1); err != nil {
					return err
				}
			}
			return printSummary(cmd.OutOrStdout(), ao.inputs, reports)
		},
	}
	cmd.Flags().StringSliceVarP(&ao.inputs, "input", "i", nil, "request JSON file (repeatable)")
	cmd.Flags().StringVar(&ao.jsonOut, "json", "", "write the report as JSON to this path")
	cmd.Flags().StringVar(&ao.xlsxOut, "xlsx", "", "write the report as an XLSX workbook to this path")
	cmd.Flags().IntVar(&ao.parallel, "parallel", 4, "maximum concurrent analyses")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runAnalyses runs every input, at most parallel at a time. Reports keep the
// order of inputs; the first failure cancels the rest.
func runAnalyses(ctx context.Context, analyzer *pipeline.Analyzer, inputs []string, parallel int) ([]domain.Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reports := make([]domain.Report, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, path := range inputs {
		g.Go(func() error {
			doc, err := readRequest(path)
			if err != nil {
				return err
			}
			req, err := analyzer.RequestFromDocument(doc)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			report, err := analyzer.Analyze(ctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func writeOutputs(r domain.Report, ao *analyzeOptions, input string, suffix bool) error {
	if ao.jsonOut != "" {
		if err := writeFile(outputPath(ao.jsonOut, input, suffix), func(w io.Writer) error { return export.WriteJSON(w, r) }); err != nil {
			return err
		}
	}
	if ao.xlsxOut != "" {
		if err := writeFile(outputPath(ao.xlsxOut, input, suffix), func(w io.Writer) error { return export.WriteXLSX(w, r) }); err != nil {
			return err
		}
	}
	return nil
}

// outputPath turns out.json into out-<input base>.json when suffix is set.
func outputPath(out, input string, suffix bool) string {
	if !suffix {
		return out
	}
	ext := filepath.Ext(out)
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return strings.TrimSuffix(out, ext) + "-" + base + ext
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer func() { err = errors.Join(err, f.Close()) }()
	return write(f)
}

func printSummary(out io.Writer, inputs []string, reports []domain.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INPUT\tREGION\tTARGET\tPRCPTOT CHANGE\tDIRECTION\tCONFIDENCE\tMEMBERS\tBASELINE")
	for i, r := range reports {
		change := "undefined"
		if d, ok := r.Anomaly.Field(domain.FieldPRCPTOT); ok && d.Percent != nil {
			change = fmt.Sprintf("%+.1f%%", *d.Percent)
		}
		baseline := "computed"
		if r.BaselineCached {
			baseline = "cached"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			filepath.Base(inputs[i]), r.Region, r.TargetPeriod, change,
			r.Anomaly.Direction, r.Target.Confidence, r.Target.NMembers, baseline)
		if r.Anomaly.RegionAdjustmentApplied {
			fmt.Fprintf(w, "\t\tnote: %s\t\t\t\t\t\n", r.Anomaly.AdjustmentNote)
		}
	}
	return w.Flush()
}
