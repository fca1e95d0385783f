package pipeline

import (
	"fmt"

	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
)

// Request is one analysis: an ensemble over the target period compared with
// the baseline ensemble for the same region.
type Request struct {
	Region string
	Target domain.TimeRange
	// Baseline defaults to the configured baseline period when zero.
	Baseline     domain.TimeRange
	Realizations []domain.RealizationInput
	// BaselineRealizations default to Realizations when empty, for inputs
	// that span both periods.
	BaselineRealizations []domain.RealizationInput

	Trends    bool
	Partition bool
}

// RequestFromDocument converts the wire form of a request, filling periods
// from the analyzer's settings.
func (a *Analyzer) RequestFromDocument(doc domain.AnalysisRequestDocument) (Request, error) {
	target, err := doc.Target.TimeRange(a.settings.WetSeason)
	if err != nil {
		return Request{}, fmt.Errorf("target period: %w", err)
	}
	baseline := a.settings.BaselinePeriod()
	if doc.Baseline != nil {
		if baseline, err = doc.Baseline.TimeRange(a.settings.WetSeason); err != nil {
			return Request{}, fmt.Errorf("baseline period: %w", err)
		}
	}

	req := Request{
		Region:    doc.Region,
		Target:    target,
		Baseline:  baseline,
		Trends:    doc.Trends,
		Partition: doc.Partition,
	}
	if req.Realizations, err = toInputs(doc.Realizations); err != nil {
		return Request{}, err
	}
	if req.BaselineRealizations, err = toInputs(doc.BaselineRealizations); err != nil {
		return Request{}, fmt.Errorf("baseline: %w", err)
	}
	return req, nil
}

func toInputs(docs []domain.RealizationDocument) ([]domain.RealizationInput, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]domain.RealizationInput, len(docs))
	for i, d := range docs {
		in, err := d.ToInput()
		if err != nil {
			return nil, fmt.Errorf("realization %d: %w", i, err)
		}
		out[i] = in
	}
	return out, nil
}
