package doctree

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const textStep = "text()"

// StepName returns the path step name for n: the lower-case tag for
// elements, "text()" for text nodes.
func StepName(n *html.Node) string {
	if IsText(n) {
		return textStep
	}
	return strings.ToLower(n.Data)
}

// ordinal returns the 1-based position of n among its indexable siblings
// that share its step name.
func ordinal(n *html.Node) int {
	name := StepName(n)
	i := 1
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if Indexable(s) && s.Type == n.Type && StepName(s) == name {
			i++
		}
	}
	return i
}

// Step returns the path step for n, e.g. "p[2]" or "text()[1]".
func Step(n *html.Node) string {
	return StepName(n) + "[" + strconv.Itoa(ordinal(n)) + "]"
}

// PathTo returns the path of node relative to root. The root's own path is
// the empty string.
func PathTo(root, node *html.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("path: nil node")
	}
	var steps []string
	n := node
	for n != root {
		if n == nil {
			return "", fmt.Errorf("path: node is not inside the root")
		}
		if !Indexable(n) {
			return "", fmt.Errorf("path: node %q is not addressable", n.Data)
		}
		steps = append(steps, Step(n))
		n = n.Parent
	}
	if len(steps) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		sb.WriteByte('/')
		sb.WriteString(steps[i])
	}
	return sb.String(), nil
}

// ChildPath joins a parent path and the step of child.
func ChildPath(parent string, child *html.Node) string {
	return parent + "/" + Step(child)
}

// ParentPath drops the last step of path. The parent of a top-level path is
// the root path "".
func ParentPath(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// IsDescendantPath reports whether path lies strictly below ancestor.
func IsDescendantPath(path, ancestor string) bool {
	if ancestor == "" {
		return path != ""
	}
	return strings.HasPrefix(path, ancestor+"/")
}

// Lookup resolves path against root.
func Lookup(root *html.Node, path string) (*html.Node, error) {
	if root == nil {
		return nil, fmt.Errorf("lookup: nil root")
	}
	if path == "" {
		return root, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("lookup %q: path must start with '/'", path)
	}
	n := root
	for _, step := range strings.Split(path[1:], "/") {
		name, idx, err := parseStep(step)
		if err != nil {
			return nil, fmt.Errorf("lookup %q: %w", path, err)
		}
		var next *html.Node
		seen := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !Indexable(c) || StepName(c) != name {
				continue
			}
			if name != textStep && c.Type != html.ElementNode {
				continue
			}
			seen++
			if seen == idx {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("lookup %q: step %q not found", path, step)
		}
		n = next
	}
	return n, nil
}

func parseStep(step string) (string, int, error) {
	open := strings.LastIndexByte(step, '[')
	if open <= 0 || !strings.HasSuffix(step, "]") {
		return "", 0, fmt.Errorf("malformed step %q", step)
	}
	idx, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || idx < 1 {
		return "", 0, fmt.Errorf("malformed step index %q", step)
	}
	return step[:open], idx, nil
}
