package markup

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HighlightClass marks search-term highlights in rendered output.
// Highlights are render-time only and never persisted.
const HighlightClass = "search-highlight"

var urlPattern = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)

// Characters a URL match sheds from its tail before linking, so that
// sentence punctuation does not ride along.
const urlTrailingPunct = ".,;:!?)]}\"'"

// AutoLink converts bare URLs in text to anchors that open in a new tab.
// Text already inside an anchor or an image wrapper is left alone.
func AutoLink(root *html.Node) {
	for _, tn := range linkableTextNodes(root) {
		segments := splitURLs(tn.Data)
		if segments == nil {
			continue
		}
		parent := tn.Parent
		for _, seg := range segments {
			var n *html.Node
			if seg.url {
				a := NewElement(atom.A)
				SetAttr(a, "href", seg.text)
				SetAttr(a, "target", "_blank")
				SetAttr(a, "rel", "noopener noreferrer")
				a.AppendChild(NewText(seg.text))
				n = a
			} else {
				n = NewText(seg.text)
			}
			parent.InsertBefore(n, tn)
		}
		parent.RemoveChild(tn)
	}
}

func linkableTextNodes(root *html.Node) []*html.Node {
	var nodes []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && (n.DataAtom == atom.A || IsImageWrapper(n)) {
			return false
		}
		if n.Type == html.TextNode {
			nodes = append(nodes, n)
		}
		return true
	})
	return nodes
}

type textSegment struct {
	text string
	url  bool
}

// splitURLs cuts a string into plain and URL segments. Returns nil when
// no URL is present.
func splitURLs(s string) []textSegment {
	matches := urlPattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return nil
	}
	var segs []textSegment
	prev := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		url := strings.TrimRight(s[start:end], urlTrailingPunct)
		end = start + len(url)
		if url == "" {
			continue
		}
		if start > prev {
			segs = append(segs, textSegment{text: s[prev:start]})
		}
		segs = append(segs, textSegment{text: url, url: true})
		prev = end
	}
	if prev < len(s) {
		segs = append(segs, textSegment{text: s[prev:]})
	}
	return segs
}

// Highlight wraps case-insensitive matches of term in highlight marks.
// Matches never span element boundaries. Returns the number of matches.
func Highlight(root *html.Node, term string) int {
	term = strings.TrimSpace(term)
	if term == "" {
		return 0
	}
	pattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(term))
	if err != nil {
		return 0
	}

	var textNodes []*html.Node
	Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && IsImageWrapper(n) {
			return false
		}
		if n.Type == html.TextNode {
			textNodes = append(textNodes, n)
		}
		return true
	})

	count := 0
	for _, tn := range textNodes {
		matches := pattern.FindAllStringIndex(tn.Data, -1)
		if len(matches) == 0 {
			continue
		}
		parent := tn.Parent
		prev := 0
		for _, m := range matches {
			if m[0] > prev {
				parent.InsertBefore(NewText(tn.Data[prev:m[0]]), tn)
			}
			mark := &html.Node{Type: html.ElementNode, DataAtom: atom.Lookup([]byte("mark")), Data: "mark"}
			SetAttr(mark, "class", HighlightClass)
			mark.AppendChild(NewText(tn.Data[m[0]:m[1]]))
			parent.InsertBefore(mark, tn)
			count++
			prev = m[1]
		}
		if prev < len(tn.Data) {
			parent.InsertBefore(NewText(tn.Data[prev:]), tn)
		}
		parent.RemoveChild(tn)
	}
	return count
}

// RemoveHighlights unwraps every highlight mark, restoring plain text.
func RemoveHighlights(root *html.Node) {
	for _, mark := range FindElements(root, func(n *html.Node) bool {
		return n.Data == "mark" && HasClass(n, HighlightClass)
	}) {
		Unwrap(mark)
	}
}
