package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/parser"
	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/dgallion1/docanchor/internal/session"
	"github.com/dgallion1/docanchor/internal/textindex"
	"github.com/go-chi/chi/v5"
)

type documentView struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	Length    int       `json:"length"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(d *session.Document) documentView {
	v := documentView{ID: d.ID, Filename: d.Filename, Title: d.Title, CreatedAt: d.CreatedAt}
	d.Do(func(c *session.Core) error {
		v.Length = c.Index.GetDocLength()
		return nil
	})
	return v
}

// handleListDocuments lists every loaded document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.sessions.List()
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		out = append(out, viewOf(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

// handleUpload parses an uploaded file and loads it for anchoring.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	doc, err := s.sessions.Open(filename, bytes.NewReader(data), r.FormValue("title"))
	if err != nil {
		s.log.Warn("upload rejected", "filename", filename, "error", err)
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(doc))
}

// handleGetDocument renders the live document, highlights included.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := doc.Do(func(c *session.Core) error {
		return doctree.Render(&buf, c.Doc)
	})
	if err != nil {
		jsonError(w, "render failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// handleDeleteDocument unloads a document and drops its stored annotations.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.sessions.Remove(docID); err != nil {
		writeError(w, err)
		return
	}
	annotationsDeleted := true
	if err := s.annotations.DeleteAnnotations(r.Context(), docID); err != nil {
		s.log.Error("delete annotations failed", "doc_id", docID, "error", err)
		annotationsDeleted = false
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":              docID,
		"annotations_deleted": annotationsDeleted,
	})
}

// document looks up the {docID} route parameter, writing a 404 if unknown.
func (s *Server) document(w http.ResponseWriter, r *http.Request) (*session.Document, bool) {
	doc, err := s.sessions.Get(chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return doc, true
}

// errBadRequest marks request validation failures.
type errBadRequest string

func (e errBadRequest) Error() string { return string(e) }

func badRequest(format string, args ...any) error {
	return errBadRequest(fmt.Sprintf(format, args...))
}

// writeError maps core errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		bad       errBadRequest
		malformed *selector.MalformedSelectorError
		desync    *textindex.IndexDesyncError
		anchoring *anchor.AnchoringError
	)
	switch {
	case errors.As(err, &bad), errors.As(err, &malformed):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &desync):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &anchoring):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"attempts": anchoring.Attempts,
		})
	default:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var malformed *selector.MalformedSelectorError
		if errors.As(err, &malformed) {
			writeError(w, err)
			return false
		}
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
