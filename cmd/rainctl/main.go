// Command rainctl runs rainfall analyses from request files without the
// HTTP service.
//
// Usage:
//
//	rainctl analyze -i request.json [-i other.json] [--json report.json] [--xlsx report.xlsx]
//	rainctl validate -i request.json
//	rainctl regions
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/rainfall-analysis-service/internal/cache"
	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

type globalOptions struct {
	regionsFile string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "rainctl",
		Short:         "Rainfall ensemble analysis CLI",
		Long:          `Runs precipitation index, ensemble and baseline anomaly analyses over CMIP-style request files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.regionsFile, "regions", "", "region catalogue YAML (default: built-in catalogue)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newAnalyzeCmd(opts), newValidateCmd(opts), newRegionsCmd(opts))
	return root
}

func (o *globalOptions) catalogue() (*region.Catalogue, error) {
	if o.regionsFile == "" {
		return region.Default()
	}
	return region.LoadFile(o.regionsFile)
}

// newAnalyzer builds an analyzer from the environment's analysis settings.
// Logs go to stderr so stdout stays parseable.
func (o *globalOptions) newAnalyzer(stderr io.Writer) (*pipeline.Analyzer, error) {
	settings, err := config.LoadAnalysis()
	if err != nil {
		return nil, err
	}
	cat, err := o.catalogue()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLoggerTo(stderr, o.logLevel, "text")
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	baselines := cache.New(cache.DefaultCapacity, nil, logger, metrics)
	return pipeline.New(settings, cat, baselines, nil, logger, metrics)
}

func readRequest(path string) (domain.AnalysisRequestDocument, error) {
	var doc domain.AnalysisRequestDocument
	f, err := os.Open(path)
	if err != nil {
		return doc, eris.Wrapf(err, "open request %s", path)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return doc, eris.Wrapf(err, "decode request %s", path)
	}
	return doc, nil
}
