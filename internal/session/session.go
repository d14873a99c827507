// Package session keeps the documents loaded into the service in memory and
// serializes every call into the anchoring core per document.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/highlight"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/parser"
	"github.com/dgallion1/docanchor/internal/textindex"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// ErrNotFound is returned for unknown document IDs.
var ErrNotFound = errors.New("document not found")

// Config is applied to every document the store opens.
type Config struct {
	ContextWindow  int
	HighlightClass string
	Parser         parser.Options
	Matcher        matcher.Config
	Anchor         anchor.Config
}

// Core bundles the anchoring components that operate on one DOM.
type Core struct {
	Doc        *html.Node
	Root       *html.Node
	Index      *textindex.Index
	Matcher    *matcher.Matcher
	Resolver   *anchor.Resolver
	Highlights *highlight.Manager
	// Class is the default highlight class.
	Class string
}

// Document is one loaded document.
type Document struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`

	mu        sync.Mutex
	core      Core
	selection *doctree.Range
}

// Do runs fn with exclusive access to the document's core.
func (d *Document) Do(fn func(c *Core) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(&d.core)
}

// CurrentSelection implements textindex.SelectionKeeper.
func (d *Document) CurrentSelection() (doctree.Range, bool) {
	if d.selection == nil {
		return doctree.Range{}, false
	}
	return *d.selection, true
}

// RestoreSelection implements textindex.SelectionKeeper.
func (d *Document) RestoreSelection(r doctree.Range) {
	d.selection = &r
}

// Select records the user's current selection. Must be called inside Do.
func (d *Document) Select(r doctree.Range) {
	d.selection = &r
}

// ClearSelection drops the current selection. Must be called inside Do.
func (d *Document) ClearSelection() {
	d.selection = nil
}

// Store is the in-memory registry of loaded documents.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Document
	cfg  Config
	log  *slog.Logger
}

func NewStore(cfg Config, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if cfg.HighlightClass == "" {
		cfg.HighlightClass = highlight.DefaultClass
	}
	if cfg.Anchor.PatternMatchThreshold <= 0 {
		cfg.Anchor.PatternMatchThreshold = cfg.Matcher.PatternMatchThreshold
	}
	return &Store{docs: make(map[string]*Document), cfg: cfg, log: log}
}

// Open parses r with the parser registered for filename and registers the
// resulting document.
func (s *Store) Open(filename string, r io.Reader, title string) (*Document, error) {
	p, err := parser.ForFile(filename, s.cfg.Parser)
	if err != nil {
		return nil, err
	}
	parsed, err := p.Parse(r, filename)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	if title != "" {
		parsed.Title = title
	}
	return s.Add(filename, parsed)
}

// Add registers an already parsed document.
func (s *Store) Add(filename string, parsed *parser.Document) (*Document, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate document id: %w", err)
	}
	d := &Document{
		ID:        id.String(),
		Filename:  filename,
		Title:     parsed.Title,
		CreatedAt: time.Now().UTC(),
	}

	log := s.log.With("doc_id", d.ID)
	ix := textindex.New(parsed.Body, textindex.Options{
		Logger:        log,
		Selection:     d,
		ContextWindow: s.cfg.ContextWindow,
	})
	m := matcher.New(ix, log, s.cfg.Matcher)
	d.core = Core{
		Doc:        parsed.Root,
		Root:       parsed.Body,
		Index:      ix,
		Matcher:    m,
		Resolver:   anchor.NewResolver(ix, m, log, s.cfg.Anchor),
		Highlights: highlight.New(ix, log),
		Class:      s.cfg.HighlightClass,
	}

	s.mu.Lock()
	s.docs[d.ID] = d
	s.mu.Unlock()

	log.Info("document loaded", "filename", filename, "title", d.Title)
	return d, nil
}

// Get returns a document by ID.
func (s *Store) Get(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

// List returns every document, oldest first.
func (s *Store) List() []*Document {
	s.mu.RLock()
	out := make([]*Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove forgets a document.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	s.log.Info("document removed", "doc_id", id)
	return nil
}

// Len returns the number of loaded documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
