package api

import (
	"fmt"
	"net/http"

	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListAnnotations(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	annotations, err := s.annotations.ListAnnotations(r.Context(), doc.ID)
	if err != nil && len(annotations) == 0 {
		jsonError(w, "failed to list annotations: "+err.Error(), http.StatusBadGateway)
		return
	}
	if err != nil {
		s.log.Warn("partial annotation listing", "doc_id", doc.ID, "error", err)
	}
	if annotations == nil {
		annotations = []pathstore.Annotation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"annotations": annotations})
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	if err := s.annotations.DeleteAnnotation(r.Context(), doc.ID, chi.URLParam(r, "annID")); err != nil {
		jsonError(w, "failed to delete annotation: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reanchorRequest struct {
	Highlight bool   `json:"highlight"`
	Class     string `json:"class,omitempty"`
}

// handleReanchor queues a background job that resolves every stored
// annotation of the document.
func (s *Server) handleReanchor(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req reanchorRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	job, err := pipeline.NewJob(doc.ID, req.Highlight, req.Class)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"doc_id":   job.DocID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/reanchor/%s/status", job.ID),
	})
}

func (s *Server) handleReanchorStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}
