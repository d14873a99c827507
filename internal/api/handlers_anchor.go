package api

import (
	"net/http"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/highlight"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/pathstore"
	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/dgallion1/docanchor/internal/session"
)

// spanRequest names a span either by corpus offsets or by tree positions.
type spanRequest struct {
	Start *int                    `json:"start,omitempty"`
	End   *int                    `json:"end,omitempty"`
	Range *selector.RangeSelector `json:"range,omitempty"`
}

func (sr spanRequest) resolve(c *session.Core) (doctree.Range, error) {
	if sr.Range != nil {
		return sr.Range.Resolve(c.Root)
	}
	if sr.Start == nil || sr.End == nil {
		return doctree.Range{}, badRequest("start and end, or range, are required")
	}
	start, end := *sr.Start, *sr.End
	if start < 0 || end <= start || end > c.Index.GetDocLength() {
		return doctree.Range{}, badRequest("span [%d,%d) is outside the document (length %d)", start, end, c.Index.GetDocLength())
	}
	m, err := c.Index.MapRange(start, end)
	if err != nil {
		return doctree.Range{}, badRequest("%s", err)
	}
	return m.Range, nil
}

type buildSelectorsRequest struct {
	spanRequest
	Save  bool   `json:"save"`
	Class string `json:"class,omitempty"`
	Note  string `json:"note,omitempty"`
}

// handleBuildSelectors captures a span as a selector set, optionally saving
// it as an annotation.
func (s *Server) handleBuildSelectors(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req buildSelectorsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		set   selector.Set
		quote string
		start int
		end   int
	)
	err := doc.Do(func(c *session.Core) error {
		span, err := req.resolve(c)
		if err != nil {
			return err
		}
		if set, err = c.Resolver.BuildSelectors(span); err != nil {
			return badRequest("%s", err)
		}
		start, end, err = c.Index.RangeOffsets(span)
		if err != nil {
			return err
		}
		quote = c.Index.GetContentForRange(start, end)
		// The captured span is the user's selection until the next capture.
		doc.Select(span)
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"selectors": set,
		"quote":     quote,
		"start":     start,
		"end":       end,
	}
	if req.Save {
		a := &pathstore.Annotation{
			DocumentID: doc.ID,
			Selectors:  set,
			Quote:      quote,
			Class:      req.Class,
			Note:       req.Note,
			Status:     pathstore.StatusAnchored,
			Strategy:   string(anchor.StrategyRange),
			Start:      start,
			End:        end,
		}
		if err := s.annotations.PutAnnotation(r.Context(), a); err != nil {
			s.log.Error("save annotation failed", "doc_id", doc.ID, "error", err)
			jsonError(w, "save annotation: "+err.Error(), http.StatusBadGateway)
			return
		}
		resp["annotation"] = a
	}
	writeJSON(w, http.StatusOK, resp)
}

type resolveRequest struct {
	Selectors    selector.Set `json:"selectors"`
	Quote        string       `json:"quote,omitempty"`
	AnnotationID string       `json:"annotation_id,omitempty"`
	Highlight    bool         `json:"highlight"`
	Class        string       `json:"class,omitempty"`
}

// handleResolve re-locates a selector set, or a stored annotation, in the
// current document.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AnnotationID != "" {
		a, err := s.annotations.GetAnnotation(r.Context(), doc.ID, req.AnnotationID)
		if err != nil {
			jsonError(w, "load annotation: "+err.Error(), http.StatusBadGateway)
			return
		}
		if a == nil {
			jsonError(w, "annotation not found", http.StatusNotFound)
			return
		}
		req.Selectors, req.Quote = a.Selectors, a.Quote
		if req.Class == "" {
			req.Class = a.Class
		}
	}
	for _, sel := range req.Selectors {
		if err := sel.Validate(); err != nil {
			writeError(w, err)
			return
		}
	}

	var (
		result *anchor.Anchor
		hl     *highlight.Highlight
	)
	err := doc.Do(func(c *session.Core) error {
		var err error
		if result, err = c.Resolver.Resolve(req.Selectors, req.Quote); err != nil {
			return err
		}
		if !req.Highlight {
			return nil
		}
		class := req.Class
		if class == "" {
			class = c.Class
		}
		hl, err = c.Highlights.Highlight(result.Range, class)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"anchor": result}
	if hl != nil {
		resp["highlight"] = hl
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Pattern             string `json:"pattern"`
	Engine              string `json:"engine"`
	Expected            *int   `json:"expected,omitempty"`
	ExpectedEnd         *int   `json:"expected_end,omitempty"`
	Prefix              string `json:"prefix,omitempty"`
	Suffix              string `json:"suffix,omitempty"`
	CaseSensitive       bool   `json:"case_sensitive"`
	Distinct            bool   `json:"distinct"`
	MatchDistance       int    `json:"match_distance,omitempty"`
	WithFuzzyComparison bool   `json:"with_fuzzy_comparison"`
}

// handleSearch runs one of the search engines over the document text.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.document(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	contextual := req.Engine == string(matcher.KindContext)
	var kind matcher.Kind
	if !contextual {
		var err error
		if kind, err = matcher.ParseKind(req.Engine); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Pattern == "" {
			jsonError(w, "pattern is required", http.StatusBadRequest)
			return
		}
	}

	var res *matcher.Result
	err := doc.Do(func(c *session.Core) error {
		var err error
		if contextual {
			res, err = c.Matcher.SearchWithContext(req.Prefix, req.Suffix, req.Pattern, req.Expected, req.ExpectedEnd, matcher.ContextOptions{
				MatchDistance:       req.MatchDistance,
				WithFuzzyComparison: req.WithFuzzyComparison,
			})
		} else {
			res, err = c.Matcher.Search(kind, req.Pattern, req.Expected, matcher.SearchOptions{
				CaseSensitive:       req.CaseSensitive,
				Distinct:            req.Distinct,
				MatchDistance:       req.MatchDistance,
				WithFuzzyComparison: req.WithFuzzyComparison,
			})
		}
		if err != nil {
			return badRequest("%s", err)
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Matches == nil {
		res.Matches = []matcher.Match{}
	}
	writeJSON(w, http.StatusOK, res)
}
