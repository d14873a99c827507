package api

import (
	"net/http"

	"github.com/dgallion1/docanchor/internal/highlight"
	"github.com/dgallion1/docanchor/internal/session"
	"github.com/go-chi/chi/v5"
)

type highlightRequest struct {
	spanRequest
	Class string `json:"class,omitempty"`
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req highlightRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var hl *highlight.Highlight
	err := doc.Do(func(c *session.Core) error {
		span, err := req.resolve(c)
		if err != nil {
			return err
		}
		class := req.Class
		if class == "" {
			class = c.Class
		}
		hl, err = c.Highlights.Highlight(span, class)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hl)
}

type updateHighlightRequest struct {
	Active    *bool `json:"active,omitempty"`
	Temporary *bool `json:"temporary,omitempty"`
}

func (s *Server) handleUpdateHighlight(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req updateHighlightRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "hlID")
	var hl *highlight.Highlight
	doc.Do(func(c *session.Core) error {
		var found bool
		if hl, found = c.Highlights.Get(id); !found {
			return nil
		}
		if req.Active != nil {
			c.Highlights.SetActive(hl, *req.Active)
		}
		if req.Temporary != nil {
			c.Highlights.SetTemporary(hl, *req.Temporary)
		}
		return nil
	})
	if hl == nil {
		jsonError(w, "highlight not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "hlID")
	found := false
	err := doc.Do(func(c *session.Core) error {
		hl, ok := c.Highlights.Get(id)
		if !ok {
			return nil
		}
		found = true
		return c.Highlights.Remove(hl)
	})
	if !found {
		jsonError(w, "highlight not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
