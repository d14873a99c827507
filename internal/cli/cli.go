// Package cli implements the docanchor command line: capture, resolve and
// search spans in a local document without running the HTTP service.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/dgallion1/docanchor/internal/config"
	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/parser"
	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/dgallion1/docanchor/internal/session"
	"github.com/jessevdk/go-flags"
)

// Options is the root command. The struct tags are interpreted by
// github.com/jessevdk/go-flags.
type Options struct {
	Selectors SelectorsCmd `command:"selectors" description:"Capture a span of a document as a selector set"`
	Resolve   ResolveCmd   `command:"resolve" description:"Re-locate a selector set in a document"`
	Search    SearchCmd    `command:"search" description:"Search a document's text"`
}

type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// DocumentFlags are shared by every command.
type DocumentFlags struct {
	Document string `short:"d" long:"document" required:"true" description:"document to load (html, md, txt, csv, pdf, docx)"`
	Verbose  bool   `short:"v" long:"verbose" description:"log anchoring decisions to stderr"`
}

// Run parses args and executes the selected command.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	s := &streams{stdin: stdin, stdout: stdout, stderr: stderr}
	opts := &Options{}
	opts.Selectors.io = s
	opts.Resolve.io = s
	opts.Search.io = s

	p := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err := p.ParseArgs(args)
	return err
}

// open loads the document named by f using the environment's tuning.
func (f DocumentFlags) open(s *streams) (*session.Document, error) {
	level := slog.LevelWarn
	if f.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(s.stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Load()
	store := session.NewStore(session.Config{
		ContextWindow:  cfg.ContextWindow,
		HighlightClass: cfg.HighlightClass,
		Parser:         parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		Matcher: matcher.Config{
			MaxPatternLength:      cfg.MaxPatternLength,
			MatchThreshold:        cfg.MatchThreshold,
			PatternMatchThreshold: cfg.PatternMatchThreshold,
		},
		Anchor: anchor.Config{PatternMatchThreshold: cfg.PatternMatchThreshold},
	}, log)

	file, err := os.Open(f.Document)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return store.Open(f.Document, file, "")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SelectorsCmd prints the selector set for [start, end).
type SelectorsCmd struct {
	DocumentFlags
	Start int `long:"start" required:"true" description:"span start (character offset)"`
	End   int `long:"end" required:"true" description:"span end (character offset, exclusive)"`

	io *streams
}

func (c *SelectorsCmd) Execute(_ []string) error {
	doc, err := c.open(c.io)
	if err != nil {
		return err
	}
	var set selector.Set
	err = doc.Do(func(core *session.Core) error {
		if c.Start < 0 || c.End <= c.Start || c.End > core.Index.GetDocLength() {
			return fmt.Errorf("span [%d,%d) is outside the document (length %d)", c.Start, c.End, core.Index.GetDocLength())
		}
		m, err := core.Index.MapRange(c.Start, c.End)
		if err != nil {
			return err
		}
		set, err = core.Resolver.BuildSelectors(m.Range)
		return err
	})
	if err != nil {
		return err
	}
	return writeJSON(c.io.stdout, set)
}

// ResolveCmd reads a selector set and prints where it anchors.
type ResolveCmd struct {
	DocumentFlags
	Selectors string `short:"s" long:"selectors" default:"-" description:"selector set JSON file, - for stdin"`
	Quote     string `short:"q" long:"quote" description:"text the span is expected to read as"`
	Highlight bool   `long:"highlight" description:"print the document body with the anchor highlighted"`

	io *streams
}

func (c *ResolveCmd) Execute(_ []string) error {
	var r io.Reader = c.io.stdin
	if c.Selectors != "-" {
		f, err := os.Open(c.Selectors)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	var set selector.Set
	if err := json.NewDecoder(r).Decode(&set); err != nil {
		return fmt.Errorf("read selectors: %w", err)
	}

	doc, err := c.open(c.io)
	if err != nil {
		return err
	}
	return doc.Do(func(core *session.Core) error {
		a, err := core.Resolver.Resolve(set, c.Quote)
		if err != nil {
			return err
		}
		if !c.Highlight {
			return writeJSON(c.io.stdout, a)
		}
		if _, err := core.Highlights.Highlight(a.Range, core.Class); err != nil {
			return err
		}
		if err := doctree.Render(c.io.stdout, core.Root); err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.io.stdout)
		return err
	})
}

// SearchCmd prints every match of a pattern.
type SearchCmd struct {
	DocumentFlags
	Engine        string `short:"e" long:"engine" default:"exact" choice:"exact" choice:"regex" choice:"fuzzy" description:"search engine"`
	Pattern       string `short:"p" long:"pattern" required:"true" description:"text or expression to find"`
	Expected      int    `long:"expected" default:"-1" description:"expected start offset for fuzzy search"`
	CaseSensitive bool   `long:"case-sensitive" description:"match case exactly"`
	Distinct      bool   `long:"distinct" description:"do not report overlapping exact matches"`

	io *streams
}

func (c *SearchCmd) Execute(_ []string) error {
	kind, err := matcher.ParseKind(c.Engine)
	if err != nil {
		return err
	}
	var expected *int
	if c.Expected >= 0 {
		expected = &c.Expected
	}

	doc, err := c.open(c.io)
	if err != nil {
		return err
	}
	var res *matcher.Result
	err = doc.Do(func(core *session.Core) error {
		res, err = core.Matcher.Search(kind, c.Pattern, expected, matcher.SearchOptions{
			CaseSensitive:       c.CaseSensitive,
			Distinct:            c.Distinct,
			WithFuzzyComparison: kind == matcher.KindFuzzy,
		})
		return err
	})
	if err != nil {
		return err
	}
	if res.Matches == nil {
		res.Matches = []matcher.Match{}
	}
	return writeJSON(c.io.stdout, res)
}
