package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docreview/internal/pipeline"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/reviewui"
	"github.com/dgallion1/docreview/internal/source"
	"github.com/dgallion1/docreview/internal/storage"
)

var nowFunc = time.Now

// handleAggregate copies the staged extraction results of an execution into
// the layout reconciliation works on.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")
	copied, err := storage.Aggregate(r.Context(), s.store, executionID, s.log)
	if err != nil {
		s.log.Error("aggregate failed", "execution_id", executionID, "copied", len(copied), "error", err)
		jsonError(w, "aggregate: "+err.Error(), http.StatusBadGateway)
		return
	}
	if copied == nil {
		copied = []storage.CopiedArtifact{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"execution_id": executionID,
		"copied":       copied,
	})
}

// handleReviewInput returns the review payload for an execution, or 204 when
// every field is above the threshold.
func (s *Server) handleReviewInput(w http.ResponseWriter, r *http.Request) {
	in, ok := s.buildReviewInput(w, r)
	if !ok {
		return
	}
	if in == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"loop_name": review.LoopName(nowFunc()),
		"input":     in,
	})
}

// handleReviewSheet renders the fields awaiting review as an HTML page.
func (s *Server) handleReviewSheet(w http.ResponseWriter, r *http.Request) {
	in, ok := s.buildReviewInput(w, r)
	if !ok {
		return
	}
	page, err := reviewui.RenderSheet(in)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// buildReviewInput reads the threshold and optional source document from the
// query and scans the execution. It writes the error response itself and
// reports false when the request cannot be served.
func (s *Server) buildReviewInput(w http.ResponseWriter, r *http.Request) (*review.Input, bool) {
	executionID := chi.URLParam(r, "executionID")
	q := r.URL.Query()

	threshold := s.cfg.ConfidenceThreshold
	if v := q.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 || t > 1 {
			jsonError(w, fmt.Sprintf("invalid threshold %q", v), http.StatusBadRequest)
			return nil, false
		}
		threshold = t
	}

	pageCount := 0
	if key := q.Get("source"); key != "" {
		n, err := s.sourcePageCount(r, key)
		if err != nil {
			code := http.StatusUnprocessableEntity
			if errors.Is(err, storage.ErrNotFound) {
				code = http.StatusNotFound
			}
			jsonError(w, err.Error(), code)
			return nil, false
		}
		pageCount = n
	}

	in, err := pipeline.ReviewInput(r.Context(), s.store, executionID, threshold, pageCount, s.log)
	if err != nil {
		s.log.Error("build review input", "execution_id", executionID, "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return nil, false
	}
	return in, true
}

func (s *Server) sourcePageCount(r *http.Request, key string) (int, error) {
	data, err := s.store.Load(r.Context(), key)
	if err != nil {
		return 0, fmt.Errorf("load source document: %w", err)
	}
	return source.PageCount(bytes.NewReader(data), int64(len(data)))
}
