package parser

import (
	"fmt"
	"io"

	"github.com/dgallion1/docanchor/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. The markup is kept as-is.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return fromHTML(root, filename), nil
}

func fromHTML(root *html.Node, filename string) *Document {
	title := doctree.Title(root)
	if title == "" {
		title = stem(filename)
	}
	return &Document{Title: title, Root: root, Body: doctree.Body(root)}
}
