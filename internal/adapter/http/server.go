package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/rainfall-analysis-service/internal/adapter/export"
	"github.com/couchcryptid/rainfall-analysis-service/internal/domain"
	"github.com/couchcryptid/rainfall-analysis-service/internal/pipeline"
	"github.com/couchcryptid/rainfall-analysis-service/internal/region"
)

// MaxRequestBytes caps the size of an analysis request body.
const MaxRequestBytes = 256 << 20

// Analyzer runs analyses for the API.
type Analyzer interface {
	sharedobs.ReadinessChecker
	RequestFromDocument(doc domain.AnalysisRequestDocument) (pipeline.Request, error)
	Analyze(ctx context.Context, req pipeline.Request) (domain.Report, error)
	Catalogue() *region.Catalogue
}

// Server exposes the analysis API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /v1/analyze, /v1/regions, /healthz,
// /readyz, and /metrics routes.
func NewServer(addr string, analyzer Analyzer, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		analyzer: analyzer,
		logger:   logger,
	}

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /v1/regions", s.handleRegions)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(analyzer))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const kindBadRequest = "bad_request"

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var doc domain.AnalysisRequestDocument
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err := dec.Decode(&doc); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorBody{Error: "decode request: " + err.Error(), Kind: kindBadRequest})
		return
	}

	req, err := s.analyzer.RequestFromDocument(doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "xlsx" {
		var buf bytes.Buffer
		if err := export.WriteXLSX(&buf, report); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", export.XLSXContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.ID+`.xlsx"`)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes()) //nolint:errcheck // client went away
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

// writeError maps typed engine errors to 422 and cancellation to 503.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case domain.ErrorKind(err) != "":
		status, kind = http.StatusUnprocessableEntity, domain.ErrorKind(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusServiceUnavailable, "unavailable"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("analysis request failed", "path", r.URL.Path, "error", err)
	} else {
		s.logger.Info("analysis request rejected", "path", r.URL.Path, "kind", kind, "error", err)
	}
	sharedobs.WriteJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

type regionView struct {
	Name       string             `json:"name"`
	Priority   int                `json:"priority"`
	Bounds     domain.BoundingBox `json:"bounds"`
	Adjustment domain.Adjustment  `json:"adjustment"`
	Polygon    bool               `json:"polygon"`
}

func (s *Server) handleRegions(w http.ResponseWriter, _ *http.Request) {
	regions := s.analyzer.Catalogue().Regions()
	out := make([]regionView, len(regions))
	for i, rg := range regions {
		out[i] = regionView{
			Name:       rg.Name,
			Priority:   rg.Priority,
			Bounds:     rg.Bounds,
			Adjustment: rg.Adjustment,
			Polygon:    rg.Polygon != nil,
		}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"regions": out})
}
