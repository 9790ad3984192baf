package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docreview/internal/pipeline"
	"github.com/dgallion1/docreview/internal/review"
	"github.com/dgallion1/docreview/internal/reviewui"
)

// handleSubmitReview queues the reconciliation of a review session output.
func (s *Server) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("body exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	session, err := review.ParseSessionOutput(data, s.log)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := session.Batch.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.orchestrator.SubmitSession(session)
	if err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.log.Info("review queued",
		"job_id", job.ID,
		"execution_id", session.ExecutionID,
		"corrections", len(session.Batch.Corrections))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":       job.ID,
		"execution_id": job.ExecutionID,
		"status":       pipeline.StatusQueued,
		"corrections":  len(session.Batch.Corrections),
		"poll_url":     fmt.Sprintf("/api/reviews/%s/status", job.ID),
	})
}

func (s *Server) handleReviewStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job.Snapshot())
}

// handleReviewTemplate serves the task template reviewers answer in.
func (s *Server) handleReviewTemplate(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ReviewTemplate == "" {
		jsonError(w, "no review template configured", http.StatusNotFound)
		return
	}
	tmpl, err := reviewui.LoadTemplateFile(s.cfg.ReviewTemplate)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			jsonError(w, "review template not found", http.StatusNotFound)
			return
		}
		s.log.Error("load review template", "path", s.cfg.ReviewTemplate, "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Task-UI-Name", reviewui.TaskUIName)
	io.WriteString(w, tmpl)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
