package markup

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"golang.org/x/net/html"
)

// Sanitizer cleans block markup before it is persisted. It strips the
// transient editing artifacts (selection markers, resize handles, the
// selected and dragging classes) and then applies an allowlist policy
// that removes scripts, event handlers and unknown attributes while
// preserving formatting, links and inline image wrappers.
//
// Sanitization is pure and idempotent; re-sanitizing stored content is a
// no-op. Thread-safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer builds the persistence policy for block content.
func NewSanitizer() *Sanitizer {
	policy := bluemonday.NewPolicy()

	policy.AllowElements(
		"p", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "pre", "code",
		"ul", "ol", "li",
		"b", "i", "u", "strong", "em", "s",
		"span", "font", "a", "img", "div",
	)

	policy.RequireParseableURLs(true)
	policy.AllowRelativeURLs(true)
	policy.AllowURLSchemes("http", "https", "mailto")
	policy.AllowAttrs("href", "target", "rel").OnElements("a")
	policy.AllowAttrs("src").OnElements("img")

	// Inline image wrappers keep their identity and wrap mode. The class
	// allowlist doubles as a filter for stray editor classes.
	policy.AllowAttrs("class").Matching(regexp.MustCompile(`^` + ImageWrapperClass + `$`)).OnElements("span")
	policy.AllowAttrs("contenteditable").Matching(regexp.MustCompile(`(?i)^false$`)).OnElements("span")
	policy.AllowAttrs(FileIDAttr).OnElements("span")
	policy.AllowAttrs(WrapAttr).Matching(wrapModePattern()).OnElements("span")

	policy.AllowAttrs("alt").OnElements("img")
	policy.AllowStyles("width", "height").OnElements("img")

	policy.AllowStyles("color", "background-color", "font-size").OnElements("span")
	policy.AllowAttrs("size").Matching(regexp.MustCompile(`^[1-7]$`)).OnElements("font")
	policy.AllowAttrs("color").OnElements("font")

	return &Sanitizer{policy: policy}
}

func wrapModePattern() *regexp.Regexp {
	return regexp.MustCompile(`^(` + strings.Join(wrapModes, "|") + `)$`)
}

// Sanitize returns the cleaned markup for raw block content.
func (s *Sanitizer) Sanitize(raw string) (string, error) {
	tree, err := Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sanitize: %w", err)
	}
	StripEditorArtifacts(tree.Root())
	stripped, err := tree.Render()
	if err != nil {
		return "", fmt.Errorf("sanitize: %w", err)
	}
	return s.policy.Sanitize(stripped), nil
}

// StripEditorArtifacts removes transient editing state from a tree:
// resize handle spans, the selected and dragging classes, and selection
// marker wrappers. Marker content stays in place.
func StripEditorArtifacts(root *html.Node) {
	for _, handle := range FindElements(root, func(n *html.Node) bool { return HasClass(n, HandleClass) }) {
		Detach(handle)
	}

	Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		RemoveClass(n, SelectedClass)
		RemoveClass(n, DraggingClass)
		return true
	})

	for _, marker := range FindElements(root, func(n *html.Node) bool { return HasAttr(n, MarkerAttr) }) {
		Unwrap(marker)
	}
}
