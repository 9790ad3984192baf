package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dgallion1/docreview/internal/ledger"
	"github.com/dgallion1/docreview/internal/storage"
)

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.store.(*storage.Instrumented)
	if !ok {
		jsonError(w, "storage stats unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"backend":     s.cfg.StorageBackend,
		"queue_depth": s.orchestrator.QueueDepth(),
		"stats":       inst.Snapshot(),
	})
}

// handleListRuns lists recorded reconciliation runs of an execution.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		jsonError(w, "run ledger unavailable", http.StatusServiceUnavailable)
		return
	}
	executionID := r.URL.Query().Get("execution_id")
	if executionID == "" {
		jsonError(w, "execution_id query parameter is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.ledger.ListByExecution(r.Context(), executionID, limit)
	if err != nil {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []ledger.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"runs": runs})
}
