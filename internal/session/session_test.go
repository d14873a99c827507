package session

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/docanchor/internal/matcher"
)

func newStore() *Store {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(Config{Matcher: matcher.Config{MaxPatternLength: 32, MatchThreshold: 0.5}}, log)
}

func TestOpenAndResolve(t *testing.T) {
	s := newStore()
	d, err := s.Open("notes.md", strings.NewReader("# Notes\n\nThe quick brown fox jumps over the lazy dog.\n"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "Notes" {
		t.Errorf("expected title Notes, got %q", d.Title)
	}

	got, err := s.Get(d.ID)
	if err != nil || got != d {
		t.Fatalf("expected to get the opened document, got %v err %v", got, err)
	}

	err = d.Do(func(c *Core) error {
		res, err := c.Matcher.SearchExact("brown fox", matcher.SearchOptions{})
		if err != nil {
			return err
		}
		if len(res.Matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(res.Matches))
		}
		set, err := c.Resolver.BuildSelectors(res.Matches[0].Mapping.Range)
		if err != nil {
			return err
		}
		a, err := c.Resolver.Resolve(set, "")
		if err != nil {
			return err
		}
		if a.Quote != "brown fox" {
			t.Errorf("expected quote %q, got %q", "brown fox", a.Quote)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenUnsupported(t *testing.T) {
	s := newStore()
	if _, err := s.Open("image.png", strings.NewReader("x"), ""); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if s.Len() != 0 {
		t.Errorf("expected no documents, got %d", s.Len())
	}
}

func TestRemove(t *testing.T) {
	s := newStore()
	d, err := s.Open("a.txt", strings.NewReader("hello"), "Custom")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "Custom" {
		t.Errorf("expected title override, got %q", d.Title)
	}
	if err := s.Remove(d.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Get(d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Remove(d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestSelectionSurvivesHighlight(t *testing.T) {
	s := newStore()
	d, err := s.Open("a.html", strings.NewReader(`<p>one two three</p>`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = d.Do(func(c *Core) error {
		sel, err := c.Index.MapRange(8, 13)
		if err != nil {
			return err
		}
		d.Select(sel.Range)
		hl, err := c.Index.MapRange(0, 3)
		if err != nil {
			return err
		}
		if _, err := c.Highlights.Highlight(hl.Range, c.Class); err != nil {
			return err
		}
		r, ok := d.CurrentSelection()
		if !ok {
			t.Fatal("expected selection to be kept")
		}
		start, end, err := c.Index.RangeOffsets(r)
		if err != nil {
			return err
		}
		if start != 8 || end != 13 {
			t.Errorf("expected selection [8,13), got [%d,%d)", start, end)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConcurrentAccessIsSerialized(t *testing.T) {
	s := newStore()
	d, err := s.Open("a.txt", strings.NewReader("alpha beta gamma"), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Do(func(c *Core) error {
				_, err := c.Matcher.SearchFuzzy("beta", nil, matcher.SearchOptions{})
				return err
			})
		}()
	}
	wg.Wait()
	if len(s.List()) != 1 {
		t.Errorf("expected 1 document, got %d", len(s.List()))
	}
}
