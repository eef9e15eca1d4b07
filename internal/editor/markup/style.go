package markup

import (
	"strings"

	"golang.org/x/net/html"
)

// styleProp is one declaration from an inline style attribute.
// Declarations keep their original order through edits.
type styleProp struct {
	Name  string
	Value string
}

func parseStyle(s string) []styleProp {
	var props []styleProp
	for _, decl := range strings.Split(s, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		props = append(props, styleProp{Name: name, Value: value})
	}
	return props
}

func renderStyle(props []styleProp) string {
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p.Name+": "+p.Value)
	}
	return strings.Join(parts, "; ")
}

// GetStyleProp reads one declaration from the node's style attribute.
func GetStyleProp(n *html.Node, name string) string {
	for _, p := range parseStyle(GetAttr(n, "style")) {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// SetStyleProp sets or replaces one declaration, keeping the rest.
func SetStyleProp(n *html.Node, name, value string) {
	props := parseStyle(GetAttr(n, "style"))
	for i := range props {
		if props[i].Name == name {
			props[i].Value = value
			SetAttr(n, "style", renderStyle(props))
			return
		}
	}
	props = append(props, styleProp{Name: name, Value: value})
	SetAttr(n, "style", renderStyle(props))
}

// RemoveStyleProp drops one declaration, removing the attribute when
// nothing remains.
func RemoveStyleProp(n *html.Node, name string) {
	props := parseStyle(GetAttr(n, "style"))
	kept := props[:0]
	for _, p := range props {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		RemoveAttr(n, "style")
		return
	}
	SetAttr(n, "style", renderStyle(kept))
}
