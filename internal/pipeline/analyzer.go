// Package pipeline runs analysis requests through the engine: normalization,
// index calculation, ensemble aggregation and baseline comparison.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/rainfall-analysis-service/internal/cache"
	"github.com/couchcryptid/rainfall-analysis-service/internal/compare"
	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/ensemble"
	"github.com/couchcryptid/rainfall-analysis-service/internal/indices"
	"github.com/couchcryptid/rainfall-analysis-service/internal/normalize"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

// Publisher delivers finished reports downstream.
type Publisher interface {
	Publish(ctx context.Context, report domain.Report) error
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// Analyzer orchestrates one analysis request end to end. It is safe for
// concurrent use; the baseline cache is the only state shared between requests.
type Analyzer struct {
	settings   config.Analysis
	hints      normalize.CoordinateHints
	normalizer *normalize.Normalizer
	calculator *indices.Calculator
	aggregator *ensemble.Aggregator
	comparator *compare.Comparator
	catalogue  *region.Catalogue
	baselines  *cache.BaselineCache
	publisher  Publisher
	optionsKey string

	checks  []readinessCheck
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New builds an Analyzer from validated settings. Pass a nil baselines cache
// to recompute every baseline, and a nil publisher to skip publishing.
func New(settings config.Analysis, catalogue *region.Catalogue, baselines *cache.BaselineCache, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics) (*Analyzer, error) {
	if catalogue == nil {
		return nil, errors.New("pipeline: region catalogue is required")
	}
	n, err := normalize.New(settings.Units, logger)
	if err != nil {
		return nil, err
	}
	calc, err := indices.New(settings.Indices)
	if err != nil {
		return nil, err
	}
	agg, err := ensemble.New(settings.Ensemble)
	if err != nil {
		return nil, err
	}
	cmp, err := compare.New(settings.DeadBandPct)
	if err != nil {
		return nil, err
	}

	a := &Analyzer{
		settings:   settings,
		hints:      normalize.DefaultHints(),
		normalizer: n,
		calculator: calc,
		aggregator: agg,
		comparator: cmp,
		catalogue:  catalogue,
		baselines:  baselines,
		publisher:  publisher,
		optionsKey: optionsKey(settings),
		logger:     logger,
		metrics:    metrics,
	}
	a.ready.Store(true)
	metrics.EngineReady.Set(1)
	return a, nil
}

// AddReadinessCheck registers a dependency probe consulted by CheckReadiness.
// Call it before the analyzer starts serving.
func (a *Analyzer) AddReadinessCheck(name string, check func(ctx context.Context) error) {
	a.checks = append(a.checks, readinessCheck{name: name, check: check})
}

// CheckReadiness returns nil while the analyzer is open and every registered
// dependency answers.
func (a *Analyzer) CheckReadiness(ctx context.Context) error {
	if !a.ready.Load() {
		return errors.New("analyzer is closed")
	}
	for _, c := range a.checks {
		if err := c.check(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// Close marks the analyzer not ready. In-flight requests finish normally.
func (a *Analyzer) Close() {
	a.ready.Store(false)
	a.metrics.EngineReady.Set(0)
}

// Catalogue returns the region catalogue the analyzer resolves names against.
func (a *Analyzer) Catalogue() *region.Catalogue { return a.catalogue }

// Settings returns the analysis settings.
func (a *Analyzer) Settings() config.Analysis { return a.settings }

// Analyze runs one request and publishes the report when a publisher is set.
// Publishing failures are logged but do not fail the request; the publisher
// counts its own outcomes.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (domain.Report, error) {
	start := time.Now()
	report, err := a.analyze(ctx, req)
	a.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	a.metrics.AnalysesTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		a.logger.Warn("analysis failed", "region", req.Region, "kind", domain.ErrorKind(err), "error", err)
		return domain.Report{}, err
	}

	a.logger.Info("analysis complete",
		"id", report.ID,
		"region", report.Region,
		"members", report.Target.NMembers,
		"direction", report.Anomaly.Direction,
		"confidence", report.Target.Confidence,
		"baseline_cached", report.BaselineCached,
		"duration", time.Since(start),
	)
	a.publish(ctx, report)
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request) (domain.Report, error) {
	rg, err := a.lookupRegion(req.Region)
	if err != nil {
		return domain.Report{}, err
	}
	baselinePeriod := req.Baseline
	if baselinePeriod.Start.IsZero() && baselinePeriod.End.IsZero() {
		baselinePeriod = a.settings.BaselinePeriod()
	}
	if err := req.Target.Validate(); err != nil {
		return domain.Report{}, fmt.Errorf("target period: %w", err)
	}
	if err := baselinePeriod.Validate(); err != nil {
		return domain.Report{}, fmt.Errorf("baseline period: %w", err)
	}
	if len(req.Realizations) == 0 {
		return domain.Report{}, &domain.InsufficientDataError{
			Subject: "ensemble", Region: rg.Name, Period: req.Target.String(), Reason: "no realizations supplied",
		}
	}

	target, err := a.normalizeAll(req.Realizations)
	if err != nil {
		return domain.Report{}, err
	}
	quality := qualityOf(target)

	baseInputs, baseSeries := req.Realizations, target
	if len(req.BaselineRealizations) > 0 {
		baseInputs = req.BaselineRealizations
		if baseSeries, err = a.normalizeAll(baseInputs); err != nil {
			return domain.Report{}, fmt.Errorf("baseline: %w", err)
		}
		quality = append(quality, qualityOf(baseSeries)...)
	}

	targetEns, err := a.ensembleFor(target, rg, req.Target)
	if err != nil {
		return domain.Report{}, fmt.Errorf("target: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}
	baselineEns, outcome, err := a.baselineFor(ctx, baseInputs, baseSeries, rg, baselinePeriod)
	if err != nil {
		return domain.Report{}, fmt.Errorf("baseline: %w", err)
	}

	report := domain.Report{
		ID:             uuid.NewString(),
		Region:         rg.Name,
		TargetPeriod:   req.Target,
		BaselinePeriod: baselinePeriod,
		Target:         targetEns,
		Baseline:       baselineEns,
		Anomaly:        a.comparator.Compare(targetEns, baselineEns, rg),
		Quality:        quality,
		BaselineCached: outcome != cache.OutcomeMiss,
		GeneratedAt:    domain.Now(),
	}
	if req.Trends {
		report.Trends = a.trends(target, rg, req.Target)
	}
	if req.Partition {
		if report.Regions, err = a.partition(target, req.Target); err != nil {
			return domain.Report{}, fmt.Errorf("partition: %w", err)
		}
	}
	return report, nil
}

// Regions aggregates the target period of req over every catalogue region
// that wins at least one grid cell under priority partitioning.
func (a *Analyzer) Regions(ctx context.Context, req Request) ([]domain.RegionSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Target.Validate(); err != nil {
		return nil, fmt.Errorf("target period: %w", err)
	}
	if len(req.Realizations) == 0 {
		return nil, &domain.InsufficientDataError{Subject: "regional statistics", Period: req.Target.String(), Reason: "no realizations supplied"}
	}
	series, err := a.normalizeAll(req.Realizations)
	if err != nil {
		return nil, err
	}
	return a.partition(series, req.Target)
}

func (a *Analyzer) lookupRegion(name string) (domain.Region, error) {
	rg, ok := a.catalogue.Lookup(name)
	if !ok {
		return domain.Region{}, &domain.ConfigurationError{
			Setting: "region",
			Reason:  fmt.Sprintf("%q is not in the catalogue; known regions: %v", name, a.catalogue.Names()),
		}
	}
	return rg, nil
}

func (a *Analyzer) normalizeAll(inputs []domain.RealizationInput) ([]domain.RealizationSeries, error) {
	out := make([]domain.RealizationSeries, len(inputs))
	for i, in := range inputs {
		s, err := a.normalizer.Normalize(in, a.hints, a.settings.Domain)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: %w", in.Label(), err)
		}
		a.metrics.RealizationsNormalized.Inc()
		a.metrics.MissingCells.Add(float64(s.Quality.MissingCells))
		a.metrics.UnitDetections.WithLabelValues(string(s.Quality.UnitSource)).Inc()
		out[i] = s
	}
	return out, nil
}

// ensembleFor is the single path from normalized members to an ensemble for
// one region and period; target, baseline and trend years all go through it.
// Every member must produce a result, so target and baseline ensembles always
// cover the same members; the first failing member fails the ensemble.
func (a *Analyzer) ensembleFor(series []domain.RealizationSeries, rg domain.Region, period domain.TimeRange) (domain.EnsembleResult, error) {
	results := make([]domain.IndexResult, 0, len(series))
	members := make([]string, 0, len(series))
	for _, s := range series {
		r, err := a.memberResult(s, rg, period)
		if err != nil {
			var insufficient *domain.InsufficientDataError
			if errors.As(err, &insufficient) && insufficient.Region == "" {
				insufficient.Region = rg.Name
			}
			return domain.EnsembleResult{}, fmt.Errorf("%s: %w", s.Label(), err)
		}
		results = append(results, r)
		members = append(members, s.Label())
	}
	return a.aggregator.Aggregate(period, results, members)
}

func (a *Analyzer) memberResult(s domain.RealizationSeries, rg domain.Region, period domain.TimeRange) (domain.IndexResult, error) {
	cells, err := a.calculator.Compute(s, period)
	if err != nil {
		return domain.IndexResult{}, err
	}
	return a.calculator.AggregateToRegion(cells, rg)
}

func (a *Analyzer) baselineFor(ctx context.Context, inputs []domain.RealizationInput, series []domain.RealizationSeries, rg domain.Region, period domain.TimeRange) (domain.EnsembleResult, cache.Outcome, error) {
	compute := func(context.Context) (domain.EnsembleResult, error) {
		return a.ensembleFor(series, rg, period)
	}
	if a.baselines == nil {
		v, err := compute(ctx)
		return v, cache.OutcomeMiss, err
	}
	key := cache.NewKey(cache.KeyInput{Region: rg, Period: period, Inputs: inputs, Options: a.optionsKey})
	v, outcome, err := a.baselines.Get(ctx, key, compute)
	if err == nil {
		a.logger.Debug("baseline resolved", "region", rg.Name, "period", period.String(), "cache", outcome)
	}
	return v, outcome, err
}

// trends fits a linear trend to the annual ensemble means of the headline
// indices. Years without data are skipped; fields with too few years are omitted.
func (a *Analyzer) trends(series []domain.RealizationSeries, rg domain.Region, period domain.TimeRange) []domain.Trend {
	var years []int
	values := make(map[domain.Field][]float64, len(domain.HeadlineFields))
	for _, y := range period.Years() {
		ens, err := a.ensembleFor(series, rg, period.Year(y))
		if err != nil {
			a.logger.Debug("trend year skipped", "year", y, "error", err)
			continue
		}
		years = append(years, y)
		for _, f := range domain.HeadlineFields {
			values[f] = append(values[f], ens.Mean.Value(f))
		}
	}

	var out []domain.Trend
	for _, f := range domain.HeadlineFields {
		tr, err := compare.FitTrend(f, years, values[f])
		if err != nil {
			a.logger.Debug("trend not fitted", "field", f, "error", err)
			continue
		}
		out = append(out, tr)
	}
	return out
}

func (a *Analyzer) partition(series []domain.RealizationSeries, period domain.TimeRange) ([]domain.RegionSummary, error) {
	results := make(map[string][]domain.IndexResult)
	members := make(map[string][]string)
	spatial := make(map[string][]map[domain.Field]domain.SpatialStats)
	for _, s := range series {
		cells, err := a.calculator.Compute(s, period)
		if err != nil {
			var insufficient *domain.InsufficientDataError
			if errors.As(err, &insufficient) {
				continue
			}
			return nil, fmt.Errorf("%s: %w", s.Label(), err)
		}
		for name, mask := range a.catalogue.Partition(cells.Lat, cells.Lon) {
			rg, _ := a.catalogue.Lookup(name)
			r, err := a.calculator.AggregateSelection(cells, rg, mask)
			if err != nil {
				a.logger.Debug("region skipped for member", "region", name, "member", s.Label(), "error", err)
				continue
			}
			results[name] = append(results[name], r)
			members[name] = append(members[name], s.Label())
			spatial[name] = append(spatial[name], indices.SpatialSelection(cells, mask))
		}
	}

	var out []domain.RegionSummary
	for _, rg := range a.catalogue.Regions() {
		if len(results[rg.Name]) == 0 {
			continue
		}
		ens, err := a.aggregator.Aggregate(period, results[rg.Name], members[rg.Name])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rg.Name, err)
		}
		out = append(out, domain.RegionSummary{
			Region:   rg.Name,
			Priority: rg.Priority,
			Ensemble: ens,
			Spatial:  meanSpatial(spatial[rg.Name]),
		})
	}
	if len(out) == 0 {
		return nil, &domain.EmptyRegionError{Region: "every partition region", Box: a.settings.Domain, Extent: series[0].Field.Extent()}
	}
	return out, nil
}

// meanSpatial averages per-member spatial statistics field by field.
func meanSpatial(perMember []map[domain.Field]domain.SpatialStats) map[domain.Field]domain.SpatialStats {
	var n float64
	sum := make(map[domain.Field]domain.SpatialStats, len(domain.IndexFields))
	for _, m := range perMember {
		if m == nil {
			continue
		}
		n++
		for f, st := range m {
			acc := sum[f]
			acc.Mean += st.Mean
			acc.Std += st.Std
			acc.Min += st.Min
			acc.Max += st.Max
			sum[f] = acc
		}
	}
	if n == 0 {
		return nil
	}
	for f, acc := range sum {
		sum[f] = domain.SpatialStats{Mean: acc.Mean / n, Std: acc.Std / n, Min: acc.Min / n, Max: acc.Max / n}
	}
	return sum
}

func (a *Analyzer) publish(ctx context.Context, report domain.Report) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, report); err != nil {
		a.logger.Error("publish report failed", "id", report.ID, "error", err)
	}
}

func qualityOf(series []domain.RealizationSeries) []domain.QualityReport {
	out := make([]domain.QualityReport, len(series))
	for i, s := range series {
		out[i] = s.Quality
	}
	return out
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if kind := domain.ErrorKind(err); kind != "" {
		return kind
	}
	return "error"
}

// optionsKey renders every setting that changes a baseline ensemble.
func optionsKey(s config.Analysis) string {
	return fmt.Sprintf("domain=%s units=%+v wet=%g heavy=%g categories=%s min_valid=%g ensemble=%+v",
		s.Domain, s.Units, s.Indices.WetDayThreshold, s.Indices.HeavyRainThreshold,
		s.Indices.Categories, s.Indices.MinValidFraction, s.Ensemble)
}
