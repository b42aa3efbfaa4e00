// Package dashboard serves the agreement charts and the JSON tables behind
// them. Every request reads one pipeline snapshot, so a page never mixes
// results from two runs.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/annotations"
	"github.com/banshee-data/agreement.report/internal/httputil"
	"github.com/banshee-data/agreement.report/internal/monitoring"
	"github.com/banshee-data/agreement.report/internal/pipeline"
	"github.com/banshee-data/agreement.report/internal/version"
)

// DefaultAssetsHost serves the echarts javascript.
const DefaultAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// SnapshotSource is satisfied by *pipeline.Cache.
type SnapshotSource interface {
	Get(ctx context.Context) (*pipeline.Snapshot, error)
	Invalidate()
}

// Server renders the dashboard for one experiment scheme.
type Server struct {
	source     SnapshotSource
	scheme     annotations.Scheme
	assetsHost string
}

// NewServer returns a dashboard reading results from source.
func NewServer(source SnapshotSource, scheme annotations.Scheme) *Server {
	return &Server{source: source, scheme: scheme, assetsHost: DefaultAssetsHost}
}

// SetAssetsHost points chart pages at a different echarts asset location.
func (s *Server) SetAssetsHost(host string) {
	s.assetsHost = host
}

// ServeMux registers every dashboard route on a new mux.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/charts/differences", s.handleDifferencesChart)
	mux.HandleFunc("/charts/kappa", s.handleKappaChart)
	mux.HandleFunc("/charts/counts", s.handleCountsChart)
	mux.HandleFunc("/charts/pooled", s.handlePooledChart)
	mux.HandleFunc("/charts/contingency", s.handleContingencyChart)

	mux.HandleFunc("/api/differences", s.handleDifferences)
	mux.HandleFunc("/api/kappa", s.handleKappa)
	mux.HandleFunc("/api/counts", s.handleCounts)
	mux.HandleFunc("/api/contingency", s.handleContingency)
	mux.HandleFunc("/api/pooled", s.handlePooled)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/skipped", s.handleSkipped)
	mux.HandleFunc("/api/refresh", s.handleRefresh)

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// snapshot fetches the current result or writes an error response. A failed
// pipeline run never falls back to partial or older data.
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) (*pipeline.Snapshot, bool) {
	snap, err := s.source.Get(r.Context())
	if err != nil {
		monitoring.Logf("dashboard: pipeline unavailable: %v", err)
		httputil.ServiceUnavailable(w, fmt.Sprintf("pipeline run failed: %v", err))
		return nil, false
	}
	return snap, true
}

// filter parses round, group and category query parameters.
func (s *Server) filter(r *http.Request) (agreement.Filter, error) {
	q := r.URL.Query()
	var f agreement.Filter
	var err error
	if f.Round, err = httputil.IntParam(q, "round"); err != nil {
		return f, err
	}
	if f.Round > s.scheme.Rounds {
		return f, fmt.Errorf("round must be at most %d", s.scheme.Rounds)
	}
	if f.Group, err = httputil.IntParam(q, "group"); err != nil {
		return f, err
	}
	if f.Group > s.scheme.Groups {
		return f, fmt.Errorf("group must be at most %d", s.scheme.Groups)
	}
	f.Category = q.Get("category")
	if f.Category != "" && s.scheme.CategoryIndex(f.Category) < 0 {
		return f, fmt.Errorf("unknown category %q", f.Category)
	}
	return f, nil
}

// filterWithDefaults is filter with unset fields replaced by the first
// round, group and category, for charts that show a single selection.
func (s *Server) filterWithDefaults(r *http.Request) (agreement.Filter, error) {
	f, err := s.filter(r)
	if err != nil {
		return f, err
	}
	if f.Round == 0 {
		f.Round = 1
	}
	if f.Group == 0 {
		f.Group = 1
	}
	if f.Category == "" {
		f.Category = s.scheme.Categories[0]
	}
	return f, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.source.Invalidate()
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id":      snap.RunID.String(),
		"computed_at": snap.ComputedAt.Format(time.RFC3339),
		"duration_ms": snap.Duration.Milliseconds(),
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf("[%s] %s %s %.2fms",
			strconv.Itoa(lrw.statusCode), r.Method, r.URL.RequestURI(),
			float64(time.Since(start).Nanoseconds())/1e6)
	})
}
