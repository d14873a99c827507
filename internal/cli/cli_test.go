package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgallion1/docanchor/internal/anchor"
	"github.com/jessevdk/go-flags"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Run(args, strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

const cats = `<p>The cat sat on the mat.</p><p>Then the cat sat on the hat.</p>`

func TestSelectorsThenResolve(t *testing.T) {
	doc := writeFile(t, "cats.html", cats)

	set, err := run(t, "", "selectors", "-d", doc, "--start", "32", "--end", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(set, `"type": "TextQuoteSelector"`) {
		t.Errorf("expected quote selector in output, got %s", set)
	}

	edited := writeFile(t, "edited.html", `<h1>Pets</h1>`+cats)
	out, err := run(t, set, "resolve", "-d", edited)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var a anchor.Anchor
	if err := json.Unmarshal([]byte(out), &a); err != nil {
		t.Fatalf("decode anchor: %v", err)
	}
	if a.Quote != "cat sat on" || a.Start != 36 || a.End != 46 {
		t.Errorf("expected second occurrence at [36,46), got %+v", a)
	}
}

func TestResolveHighlight(t *testing.T) {
	doc := writeFile(t, "doc.txt", "alpha beta gamma")
	sel := writeFile(t, "set.json", `[{"type":"TextQuoteSelector","exact":"beta","prefix":"","suffix":""}]`)

	out, err := run(t, "", "resolve", "-d", doc, "-s", sel, "--highlight")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `<mark class="docanchor-highlight">beta</mark>`) {
		t.Errorf("expected highlighted body, got %s", out)
	}
}

func TestResolveFailure(t *testing.T) {
	doc := writeFile(t, "doc.txt", "alpha beta gamma")
	_, err := run(t, `[{"type":"TextQuoteSelector","exact":"0000-1111-2222-3333"}]`, "resolve", "-d", doc)
	var aerr *anchor.AnchoringError
	if !errors.As(err, &aerr) {
		t.Errorf("expected AnchoringError, got %v", err)
	}
}

func TestSearch(t *testing.T) {
	doc := writeFile(t, "cats.html", cats)

	out, err := run(t, "", "search", "-d", doc, "-p", "cat sat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res struct {
		Matches []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"matches"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(res.Matches) != 2 || res.Matches[1].Start != 32 {
		t.Errorf("expected 2 matches with the second at 32, got %+v", res.Matches)
	}

	if _, err := run(t, "", "search", "-d", doc, "-p", "cat", "-e", "soundex"); err == nil {
		t.Error("expected error for invalid engine choice")
	}
}

func TestMissingRequiredFlag(t *testing.T) {
	_, err := run(t, "", "selectors", "--start", "0", "--end", "1")
	var ferr *flags.Error
	if !errors.As(err, &ferr) || ferr.Type != flags.ErrRequired {
		t.Errorf("expected required flag error, got %v", err)
	}
}
