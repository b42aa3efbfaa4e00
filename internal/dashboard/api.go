package dashboard

import (
	"net/http"

	"github.com/banshee-data/agreement.report/internal/agreement"
	"github.com/banshee-data/agreement.report/internal/httputil"
	"github.com/banshee-data/agreement.report/internal/pipeline"
)

// tableResponse wraps every JSON table with the run it came from.
type tableResponse struct {
	RunID string      `json:"run_id"`
	Rows  interface{} `json:"rows"`
}

// serveTable handles the shared GET, filter and snapshot steps of the /api
// table endpoints.
func (s *Server) serveTable(w http.ResponseWriter, r *http.Request, rows func(*agreement.Result, agreement.Filter) interface{}) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	f, err := s.filter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.snapshot(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, tableResponse{RunID: snap.RunID.String(), Rows: rows(snap.Result, f)})
}

// nonNil keeps empty tables as [] rather than null in JSON.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}

func (s *Server) handleDifferences(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.DifferencesFor(f))
	})
}

func (s *Server) handleKappa(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.KappasFor(f))
	})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.CountsFor(f))
	})
}

func (s *Server) handleContingency(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.ContingenciesFor(f))
	})
}

func (s *Server) handlePooled(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.PooledFor(f))
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		return nonNil(res.SummariesFor(f))
	})
}

func (s *Server) handleSkipped(w http.ResponseWriter, r *http.Request) {
	s.serveTable(w, r, func(res *agreement.Result, f agreement.Filter) interface{} {
		var out []agreement.SkippedTriple
		for _, sk := range res.Skipped {
			if f.Match(sk.Key) {
				out = append(out, sk)
			}
		}
		return nonNil(out)
	})
}

var _ SnapshotSource = (*pipeline.Cache)(nil)
