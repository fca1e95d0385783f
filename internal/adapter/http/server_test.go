package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	httpadapter "github.com/couchcryptid/rainfall-analysis-service/internal/adapter/http"
	"github.com/couchcryptid/rainfall-analysis-service/internal/adapter/export"
	"github.com/couchcryptid/rainfall-analysis-service/internal/cache"
	"github.com/couchcryptid/rainfall-analysis-service/internal/config"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/observability"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

const testCatalogue = `
regions:
  - name: Test Box
    priority: 1
    bounds: {lat_min: 18, lat_max: 21, lon_min: 76, lon_max: 79}
  - name: Ghats
    bounds: {lat_min: 18, lat_max: 21, lon_min: 76, lon_max: 79}
    adjustment: {scale: 1.1, note: "orographic"}
`

func newTestServer(t *testing.T) (*httpadapter.Server, *pipeline.Analyzer) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat, err := region.Parse([]byte(testCatalogue))
	require.NoError(t, err)

	settings := config.DefaultAnalysis()
	settings.BaselineStart, settings.BaselineEnd = 1990, 1990
	metrics := observability.NewMetricsForTesting()
	a, err := pipeline.New(settings, cat, cache.New(4, nil, logger, metrics), nil, logger, metrics)
	require.NoError(t, err)
	return httpadapter.NewServer(":0", a, logger), a
}

// requestDocument is a 1x1 grid raining 4 mm/day in the 1990 monsoon and
// 5 mm/day in the 2040 monsoon for two models.
func requestDocument() domain.AnalysisRequestDocument {
	var days []time.Time
	for _, y := range []int{1990, 2040} {
		for d := time.Date(y, time.June, 1, 0, 0, 0, 0, time.UTC); d.Month() <= time.September; d = d.AddDate(0, 0, 1) {
			days = append(days, d)
		}
	}
	doc := domain.AnalysisRequestDocument{
		Region: "Test Box",
		Target: domain.PeriodDocument{StartYear: 2040, EndYear: 2040},
	}
	for i, model := range []string{"MODEL-A", "MODEL-B"} {
		values := make([]float64, len(days))
		for j, d := range days {
			values[j] = 4 + float64(i)*0.1
			if d.Year() == 2040 {
				values[j] = 5 + float64(i)*0.1
			}
		}
		doc.Realizations = append(doc.Realizations, domain.NewRealizationDocument(domain.RealizationInput{
			ModelID:  model,
			MemberID: "r1i1p1f1",
			Field: domain.RawField{
				Axes: []domain.Axis{
					{Name: "time", Times: days},
					{Name: "lat", Values: []float64{19.5}},
					{Name: "lon", Values: []float64{77.5}},
				},
				Values: values,
				Attrs:  map[string]string{domain.UnitsAttr: "mm/day"},
			},
		}))
	}
	return doc
}

func postAnalyze(t *testing.T, srv http.Handler, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, &buf))
	return rec
}

func TestAnalyze_ReturnsReport(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postAnalyze(t, srv, "/v1/analyze", requestDocument())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "Test Box", report.Region)
	assert.Equal(t, 2, report.Target.NMembers)
	assert.Equal(t, domain.DirectionIncrease, report.Anomaly.Direction)
	assert.Len(t, report.Quality, 2)
}

func TestAnalyze_XLSX(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postAnalyze(t, srv, "/v1/analyze?format=xlsx", requestDocument())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, export.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := xlsx.OpenBinary(rec.Body.Bytes())
	require.NoError(t, err)
	assert.NotNil(t, f.Sheet[export.SheetSummary])
}

func TestAnalyze_MalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewBufferString("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body["kind"])
}

func TestAnalyze_TypedErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.AnalysisRequestDocument)
		kind   string
	}{
		{
			name:   "unknown region",
			mutate: func(d *domain.AnalysisRequestDocument) { d.Region = "Atlantis" },
			kind:   domain.KindConfiguration,
		},
		{
			name:   "bad season",
			mutate: func(d *domain.AnalysisRequestDocument) { d.Target.Season = "summer" },
			kind:   domain.KindConfiguration,
		},
		{
			name:   "no realizations",
			mutate: func(d *domain.AnalysisRequestDocument) { d.Realizations = nil },
			kind:   domain.KindInsufficientData,
		},
		{
			name: "missing latitude axis",
			mutate: func(d *domain.AnalysisRequestDocument) {
				for i := range d.Realizations {
					d.Realizations[i].Axes[1].Name = "row"
				}
			},
			kind: domain.KindCoordinateNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			doc := requestDocument()
			tt.mutate(&doc)

			rec := postAnalyze(t, srv, "/v1/analyze", doc)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAnalyze_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/analyze", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegions(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/regions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Regions []struct {
			Name       string            `json:"name"`
			Priority   int               `json:"priority"`
			Adjustment domain.Adjustment `json:"adjustment"`
			Polygon    bool              `json:"polygon"`
		} `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Regions, 2)
	assert.Equal(t, "Test Box", body.Regions[0].Name)
	assert.Equal(t, 1, body.Regions[0].Priority)
	assert.Equal(t, "orographic", body.Regions[1].Adjustment.Note)
	assert.False(t, body.Regions[1].Polygon)
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503AfterClose(t *testing.T) {
	srv, a := newTestServer(t)
	a.Close()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "analyzer is closed", body["error"])
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	srv, a := newTestServer(t)
	a.AddReadinessCheck("redis", func(context.Context) error { return assert.AnError })
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
