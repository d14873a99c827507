package doctree

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NewDocument returns an empty html/head/body document and its body.
func NewDocument(title string) (doc, body *html.Node) {
	doc = &html.Node{Type: html.DocumentNode}
	root := Element("html")
	head := Element("head")
	if title != "" {
		t := Element("title")
		t.AppendChild(Text(title))
		head.AppendChild(t)
	}
	body = Element("body")
	root.AppendChild(head)
	root.AppendChild(body)
	doc.AppendChild(root)
	return doc, body
}

// Element creates a detached element. attrs are key/value pairs.
func Element(tag string, attrs ...string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// Text creates a detached text node.
func Text(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// AppendText appends an element with a single text child to parent.
func AppendText(parent *html.Node, tag, text string) *html.Node {
	el := Element(tag)
	el.AppendChild(Text(text))
	parent.AppendChild(el)
	return el
}
