package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"arbor/internal/domain"
)

// MarkerAttr tags the transient wrapper element around a captured
// selection. Sanitization unwraps every element carrying it.
const MarkerAttr = "data-editor-marker"

// Anchor is one end of a selection: a path to a node plus an offset.
// For text nodes the offset counts runes into the text; for element
// nodes it counts children.
type Anchor struct {
	Path   NodePath `json:"path"`
	Offset int      `json:"offset"`
}

// Range is a pair of anchors in document order. Collapsed ranges
// (start == end) carry a caret position.
type Range struct {
	Start Anchor `json:"start"`
	End   Anchor `json:"end"`
}

// Collapsed reports whether the range selects no content.
func (r Range) Collapsed() bool {
	if r.Start.Offset != r.End.Offset || len(r.Start.Path) != len(r.End.Path) {
		return false
	}
	for i := range r.Start.Path {
		if r.Start.Path[i] != r.End.Path[i] {
			return false
		}
	}
	return true
}

// SplitText splits a text node at a rune offset and returns the left and
// right halves. Offsets at either edge return the node itself with a nil
// counterpart, leaving the tree untouched.
func SplitText(n *html.Node, offset int) (left, right *html.Node) {
	runes := []rune(n.Data)
	if offset <= 0 {
		return nil, n
	}
	if offset >= len(runes) {
		return n, nil
	}
	right = NewText(string(runes[offset:]))
	n.Data = string(runes[:offset])
	n.Parent.InsertBefore(right, n.NextSibling)
	return n, right
}

// spanOf normalizes a range into a run of whole sibling nodes under one
// parent, splitting boundary text nodes as needed. Anchors that resolve
// to different parents cannot be expressed as a sibling run and yield
// ok=false; callers treat that as an unwrappable range.
func spanOf(root *html.Node, r Range) (first, last *html.Node, ok bool) {
	startNode, found := r.Start.Path.Resolve(root)
	if !found {
		return nil, nil, false
	}
	endNode, found := r.End.Path.Resolve(root)
	if !found {
		return nil, nil, false
	}

	if startNode == endNode && startNode.Type == html.TextNode {
		runes := r.End.Offset - r.Start.Offset
		if runes <= 0 {
			return nil, nil, false
		}
		_, mid := SplitText(startNode, r.Start.Offset)
		if mid == nil {
			return nil, nil, false
		}
		seg, _ := SplitText(mid, runes)
		return seg, seg, true
	}

	switch startNode.Type {
	case html.TextNode:
		// An anchor at the very end of a text node starts at the next
		// sibling instead.
		if _, right := SplitText(startNode, r.Start.Offset); right != nil {
			startNode = right
		} else if startNode.NextSibling != nil {
			startNode = startNode.NextSibling
		} else {
			return nil, nil, false
		}
	default:
		c := childAt(startNode, r.Start.Offset)
		if c == nil {
			return nil, nil, false
		}
		startNode = c
	}

	switch endNode.Type {
	case html.TextNode:
		// An anchor at offset zero ends at the previous sibling.
		if left, _ := SplitText(endNode, r.End.Offset); left != nil {
			endNode = left
		} else if endNode.PrevSibling != nil {
			endNode = endNode.PrevSibling
		} else {
			return nil, nil, false
		}
	default:
		c := childAt(endNode, r.End.Offset-1)
		if c == nil {
			return nil, nil, false
		}
		endNode = c
	}

	if startNode.Parent == nil || startNode.Parent != endNode.Parent {
		return nil, nil, false
	}
	for c := startNode; c != nil; c = c.NextSibling {
		if c == endNode {
			return startNode, endNode, true
		}
	}
	return nil, nil, false
}

func childAt(n *html.Node, idx int) *html.Node {
	if idx < 0 {
		return nil
	}
	c := n.FirstChild
	for i := 0; i < idx && c != nil; i++ {
		c = c.NextSibling
	}
	return c
}

// WrapRange wraps the selected content in a marker span so the selection
// survives focus loss. Returns ErrRangeUnwrappable when the range is
// collapsed or cannot be expressed as a sibling run; callers fall back
// to the cloned range.
func WrapRange(root *html.Node, r Range, markerID string) error {
	if r.Collapsed() {
		return domain.ErrRangeUnwrappable
	}
	first, last, ok := spanOf(root, r)
	if !ok {
		return domain.ErrRangeUnwrappable
	}
	marker := NewElement(atom.Span)
	SetAttr(marker, MarkerAttr, markerID)

	parent := first.Parent
	parent.InsertBefore(marker, first)
	for {
		next := first.NextSibling
		parent.RemoveChild(first)
		marker.AppendChild(first)
		if first == last {
			break
		}
		first = next
	}
	return nil
}

// FindMarker locates the marker span by id.
func FindMarker(root *html.Node, markerID string) *html.Node {
	return FindElement(root, func(n *html.Node) bool {
		return GetAttr(n, MarkerAttr) == markerID
	})
}

// UnwrapMarker removes the marker wrapper, leaving its content in place.
// Unwrapping an already-removed marker is a no-op.
func UnwrapMarker(root *html.Node, markerID string) {
	if m := FindMarker(root, markerID); m != nil {
		Unwrap(m)
	}
}

// RangeText returns the plain text covered by the range without mutating
// the tree.
func RangeText(root *html.Node, r Range) string {
	startNode, ok := r.Start.Path.Resolve(root)
	if !ok {
		return ""
	}
	endNode, ok := r.End.Path.Resolve(root)
	if !ok {
		return ""
	}

	if startNode == endNode && startNode.Type == html.TextNode {
		runes := []rune(startNode.Data)
		from, to := clampOffset(r.Start.Offset, len(runes)), clampOffset(r.End.Offset, len(runes))
		if from >= to {
			return ""
		}
		return string(runes[from:to])
	}

	var sb strings.Builder
	inRange := false
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n == startNode {
			inRange = true
			if n.Type == html.TextNode {
				runes := []rune(n.Data)
				sb.WriteString(string(runes[clampOffset(r.Start.Offset, len(runes)):]))
				return n == endNode
			}
		}
		if n == endNode {
			if n.Type == html.TextNode {
				runes := []rune(n.Data)
				sb.WriteString(string(runes[:clampOffset(r.End.Offset, len(runes))]))
			}
			return true
		}
		if inRange && n.Type == html.TextNode && n != startNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if walk(c) {
			break
		}
	}
	return sb.String()
}

func clampOffset(off, max int) int {
	if off < 0 {
		return 0
	}
	if off > max {
		return max
	}
	return off
}

// InsertAt places node at the anchor position. Text-node anchors split
// the text; element anchors insert at the child index. A nil anchor
// appends to the end of the root.
func InsertAt(root *html.Node, at *Anchor, node *html.Node) bool {
	if at == nil {
		root.AppendChild(node)
		return true
	}
	target, ok := at.Path.Resolve(root)
	if !ok {
		return false
	}
	switch target.Type {
	case html.TextNode:
		left, right := SplitText(target, at.Offset)
		parent := target.Parent
		switch {
		case left == nil:
			parent.InsertBefore(node, target)
		case right == nil:
			parent.InsertBefore(node, target.NextSibling)
		default:
			parent.InsertBefore(node, right)
		}
	default:
		target.InsertBefore(node, childAt(target, at.Offset))
	}
	return true
}
