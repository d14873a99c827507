// Package doctree holds the document model the anchoring core works on: an
// *html.Node tree plus the addressing and content rules layered over it.
package doctree

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Range is a live span in the current tree. Both endpoints name leaf nodes
// (text or media); offsets are rune offsets within the leaf's content.
type Range struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// Collapsed reports whether the range selects nothing.
func (r Range) Collapsed() bool {
	return r.StartNode == r.EndNode && r.StartOffset == r.EndOffset
}

// IsText reports whether n is a text node.
func IsText(n *html.Node) bool {
	return n != nil && n.Type == html.TextNode
}

// IsMedia reports whether n is an embedded media element that contributes
// its alt text as a single, non-splittable leaf.
func IsMedia(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Img, atom.Area:
		return true
	case atom.Input:
		return attr(n, "type") == "image"
	}
	return false
}

// Indexable reports whether n takes part in the flattened text and can be
// addressed by a path.
func Indexable(n *html.Node) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case html.TextNode, html.DocumentNode:
		return true
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Head:
			return false
		}
		return true
	}
	return false
}

// Atomic reports whether n has no indexable children, so its offsets
// describe it directly.
func Atomic(n *html.Node) bool {
	if IsText(n) || IsMedia(n) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Indexable(c) {
			return false
		}
	}
	return true
}

// Content returns the flattened text contributed by n and its descendants.
func Content(n *html.Node) string {
	var sb strings.Builder
	writeContent(&sb, n)
	return sb.String()
}

func writeContent(sb *strings.Builder, n *html.Node) {
	if !Indexable(n) {
		return
	}
	switch {
	case IsText(n):
		sb.WriteString(n.Data)
		return
	case IsMedia(n):
		sb.WriteString(attr(n, "alt"))
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeContent(sb, c)
	}
}

// Length returns the rune length of n's content.
func Length(n *html.Node) int {
	return utf8.RuneCountInString(Content(n))
}

// Children returns the indexable children of n in document order.
func Children(n *html.Node) []*html.Node {
	if IsMedia(n) {
		return nil
	}
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if Indexable(c) {
			out = append(out, c)
		}
	}
	return out
}

// Leaves returns the atomic descendants of n (n itself if atomic) in
// document order.
func Leaves(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if !Indexable(n) {
			return
		}
		if Atomic(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Body returns the <body> element of doc, or doc itself when there is none.
func Body(doc *html.Node) *html.Node {
	if b := find(doc, atom.Body); b != nil {
		return b
	}
	return doc
}

// Title returns the text of the first <title> element, if any.
func Title(doc *html.Node) string {
	if t := find(doc, atom.Title); t != nil {
		var sb strings.Builder
		for c := t.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	return ""
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := find(c, a); f != nil {
			return f
		}
	}
	return nil
}

// Render writes the HTML serialization of n.
func Render(w io.Writer, n *html.Node) error {
	return html.Render(w, n)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// Attr returns the value of attribute key on n.
func Attr(n *html.Node, key string) string {
	return attr(n, key)
}

// SetAttr sets attribute key on n, replacing any previous value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Precedes reports whether a comes before b in document order. A node
// precedes its descendants.
func Precedes(a, b *html.Node) bool {
	if a == b {
		return false
	}
	chainA := ancestors(a)
	chainB := ancestors(b)
	i, j := len(chainA)-1, len(chainB)-1
	if chainA[i] != chainB[j] {
		return false
	}
	for i > 0 && j > 0 && chainA[i-1] == chainB[j-1] {
		i--
		j--
	}
	if i == 0 {
		return true
	}
	if j == 0 {
		return false
	}
	ca, cb := chainA[i-1], chainB[j-1]
	for s := ca.NextSibling; s != nil; s = s.NextSibling {
		if s == cb {
			return true
		}
	}
	return false
}

// ancestors returns n followed by its ancestors up to the topmost one.
func ancestors(n *html.Node) []*html.Node {
	var out []*html.Node
	for p := n; p != nil; p = p.Parent {
		out = append(out, p)
	}
	return out
}
