// Package markup models block content as an HTML tree and implements the
// editing operations on it: selection ranges, formatting commands, inline
// image wrappers, sanitization, auto-linking and search highlighting.
// Strings cross the package boundary; trees live inside it.
package markup

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Tree is a parsed block content fragment. The root is a synthetic
// container element that is never rendered.
type Tree struct {
	root *html.Node
}

// Parse builds a tree from a stored HTML fragment.
func Parse(fragment string) (*Tree, error) {
	ctx := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	for _, n := range nodes {
		n.Parent, n.PrevSibling, n.NextSibling = nil, nil, nil
		root.AppendChild(n)
	}
	return &Tree{root: root}, nil
}

// Root exposes the container node for traversal.
func (t *Tree) Root() *html.Node {
	return t.root
}

// Render serializes the tree back to a fragment string.
func (t *Tree) Render() (string, error) {
	var sb strings.Builder
	for c := t.root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return "", fmt.Errorf("render fragment: %w", err)
		}
	}
	return sb.String(), nil
}

// OuterHTML serializes a single node, wrapper included.
func OuterHTML(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", fmt.Errorf("render node: %w", err)
	}
	return sb.String(), nil
}

// NodePath addresses a node as child indexes from the root, in document
// order. Paths go stale as soon as the tree mutates around them; callers
// re-resolve after every transformation.
type NodePath []int

// Resolve walks the path from root. The boolean reports whether every
// index was in range.
func (p NodePath) Resolve(root *html.Node) (*html.Node, bool) {
	n := root
	for _, idx := range p {
		if idx < 0 {
			return nil, false
		}
		c := n.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil, false
		}
		n = c
	}
	return n, true
}

// PathOf computes the path of n relative to root.
func PathOf(root, n *html.Node) (NodePath, bool) {
	if n == nil {
		return nil, false
	}
	var rev []int
	for n != root {
		parent := n.Parent
		if parent == nil {
			return nil, false
		}
		idx := 0
		for c := parent.FirstChild; c != nil && c != n; c = c.NextSibling {
			idx++
		}
		rev = append(rev, idx)
		n = parent
	}
	path := make(NodePath, len(rev))
	for i, idx := range rev {
		path[len(rev)-1-i] = idx
	}
	return path, true
}

// GetAttr returns the value of an attribute, or "".
func GetAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present at all.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr drops an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// HasClass reports whether the class attribute contains name.
func HasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(GetAttr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class attribute if absent.
func AddClass(n *html.Node, name string) {
	if HasClass(n, name) {
		return
	}
	classes := GetAttr(n, "class")
	if classes == "" {
		SetAttr(n, "class", name)
		return
	}
	SetAttr(n, "class", classes+" "+name)
}

// RemoveClass drops name from the class attribute, removing the attribute
// when it becomes empty.
func RemoveClass(n *html.Node, name string) {
	fields := strings.Fields(GetAttr(n, "class"))
	kept := fields[:0]
	for _, c := range fields {
		if c != name {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(kept, " "))
}

// Detach removes n from its parent, keeping the node intact.
func Detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Unwrap replaces n with its children. The children keep their order.
func Unwrap(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for n.FirstChild != nil {
		c := n.FirstChild
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
}

// NewElement builds an element node for the given atom.
func NewElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

// NewText builds a text node.
func NewText(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

// Walk visits nodes depth-first, pre-order. Returning false from fn stops
// descending into the node's children.
func Walk(root *html.Node, fn func(*html.Node) bool) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		// Children are captured first so fn may detach or rewrap n freely.
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		if !fn(n) {
			return
		}
		for _, c := range children {
			visit(c)
		}
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		visit(c)
	}
}

// FindElement returns the first element under root satisfying pred, in
// document order.
func FindElement(root *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	Walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type == html.ElementNode && pred(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindElements returns every element under root satisfying pred.
func FindElements(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && pred(n) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// Ancestor walks up from n looking for a node satisfying pred, stopping
// below root. Returns nil when nothing matches.
func Ancestor(root, n *html.Node, pred func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if cur.Type == html.ElementNode && pred(cur) {
			return cur
		}
	}
	return nil
}

// TopLevelOf returns the direct child of root containing n (or n itself
// when it is already top-level).
func TopLevelOf(root, n *html.Node) *html.Node {
	cur := n
	for cur != nil && cur.Parent != root {
		cur = cur.Parent
	}
	return cur
}
