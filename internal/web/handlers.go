package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rteval-parser/internal/queue"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type countsResponse struct {
	Counts map[queue.Status]int64 `json:"counts"`
	Total  int64                  `json:"total"`
}

func (s *Server) handleQueueCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.Counts(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	resp := countsResponse{Counts: counts}
	for _, n := range counts {
		resp.Total += n
	}
	writeJSON(w, http.StatusOK, resp)
}

type stuckResponse struct {
	OlderThan string        `json:"older_than"`
	Jobs      []queue.Entry `json:"jobs"`
}

// handleStuckJobs lists jobs assigned or in progress for longer than
// ?older_than (a Go duration), defaulting to the configured threshold.
func (s *Server) handleStuckJobs(w http.ResponseWriter, r *http.Request) {
	olderThan := s.stuckAfter
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.respondError(w, r, fmt.Errorf("%w: older_than must be a positive duration", errBadRequest), http.StatusBadRequest)
			return
		}
		olderThan = d
	}

	jobs, err := s.queue.Stuck(r.Context(), olderThan)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []queue.Entry{}
	}
	writeJSON(w, http.StatusOK, stuckResponse{OlderThan: olderThan.String(), Jobs: jobs})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	submID, err := strconv.ParseInt(chi.URLParam(r, "submid"), 10, 64)
	if err != nil || submID < 1 {
		s.respondError(w, r, fmt.Errorf("%w: submid must be a positive integer", errBadRequest), http.StatusBadRequest)
		return
	}

	entry, err := s.queue.Get(r.Context(), submID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
