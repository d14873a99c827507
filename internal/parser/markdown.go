package parser

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
)

// MarkdownParser renders Markdown (with GitHub extensions) to HTML and parses
// the result.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var rendered bytes.Buffer
	if err := md.Convert(src, &rendered); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	root, err := html.Parse(&rendered)
	if err != nil {
		return nil, fmt.Errorf("parse rendered markdown: %w", err)
	}
	doc := fromHTML(root, filename)
	if h1 := firstHeading(doc.Body); h1 != "" {
		doc.Title = h1
	}
	return doc, nil
}

func firstHeading(body *html.Node) string {
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "h1" {
			return doctree.Content(c)
		}
	}
	return ""
}
