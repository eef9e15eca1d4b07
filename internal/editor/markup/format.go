package markup

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"arbor/internal/domain"
)

// Command names a formatting operation. The set mirrors the command
// registry served to clients.
type Command string

const (
	CommandBold          Command = "bold"
	CommandItalic        Command = "italic"
	CommandUnderline     Command = "underline"
	CommandFontSize      Command = "fontSize"
	CommandForeColor     Command = "foreColor"
	CommandHiliteColor   Command = "hiliteColor"
	CommandCreateLink    Command = "createLink"
	CommandRemoveFormat  Command = "removeFormat"
	CommandFormatBlock   Command = "formatBlock"
	CommandUnorderedList Command = "insertUnorderedList"
	CommandOrderedList   Command = "insertOrderedList"
)

var commands = map[Command]bool{
	CommandBold:          true,
	CommandItalic:        true,
	CommandUnderline:     true,
	CommandFontSize:      true,
	CommandForeColor:     true,
	CommandHiliteColor:   true,
	CommandCreateLink:    true,
	CommandRemoveFormat:  true,
	CommandFormatBlock:   true,
	CommandUnorderedList: true,
	CommandOrderedList:   true,
}

// ParseCommand validates a command name from the wire.
func ParseCommand(name string) (Command, bool) {
	c := Command(name)
	return c, commands[c]
}

// Font size ordinals map UI steps 1..7 onto pixel sizes. Reading converts
// a measured pixel size back to the nearest step.
const DefaultFontSizeOrdinal = 3

var ordinalPx = [...]int{0, 10, 13, 16, 18, 24, 32, 48}

// OrdinalToPx returns the pixel size for a font-size step.
func OrdinalToPx(ord int) (int, bool) {
	if ord < 1 || ord > 7 {
		return 0, false
	}
	return ordinalPx[ord], true
}

// PxToOrdinal buckets a pixel size into the UI step scale.
func PxToOrdinal(px float64) int {
	switch {
	case px <= 10:
		return 1
	case px <= 13:
		return 2
	case px <= 16:
		return 3
	case px <= 18:
		return 4
	case px <= 24:
		return 5
	case px <= 32:
		return 6
	default:
		return 7
	}
}

var formatBlockTags = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "blockquote": true, "pre": true,
}

// FormatBlockTags lists the container tags formatBlock accepts.
func FormatBlockTags() []string {
	return []string{"p", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre"}
}

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true,
	atom.H4: true, atom.H5: true, atom.H6: true, atom.Blockquote: true,
	atom.Pre: true, atom.Div: true, atom.Ul: true, atom.Ol: true,
	atom.Li: true,
}

// ApplyToMarker runs a formatting command over the content held by the
// selection marker.
func ApplyToMarker(root *html.Node, markerID string, cmd Command, value string) error {
	m := FindMarker(root, markerID)
	if m == nil {
		return domain.ErrNoActiveSelection
	}
	switch cmd {
	case CommandFormatBlock:
		return applyFormatBlock(root, m, value)
	case CommandUnorderedList:
		return applyList(root, m, atom.Ul)
	case CommandOrderedList:
		return applyList(root, m, atom.Ol)
	case CommandRemoveFormat:
		stripRun(m.FirstChild, m.LastChild)
		return nil
	default:
		if m.FirstChild == nil {
			return nil
		}
		return applyInline(root, m.FirstChild, m.LastChild, cmd, value)
	}
}

// ApplyToRange runs a formatting command over a cloned range. Used when
// marker wrapping was not possible at capture time.
func ApplyToRange(root *html.Node, r Range, cmd Command, value string) error {
	switch cmd {
	case CommandFormatBlock, CommandUnorderedList, CommandOrderedList:
		start, ok := r.Start.Path.Resolve(root)
		if !ok {
			return domain.ErrNoActiveSelection
		}
		if cmd == CommandFormatBlock {
			return applyFormatBlock(root, start, value)
		}
		listAtom := atom.Ul
		if cmd == CommandOrderedList {
			listAtom = atom.Ol
		}
		return applyList(root, start, listAtom)
	default:
		first, last, ok := spanOf(root, r)
		if !ok {
			return domain.ErrRangeUnwrappable
		}
		if cmd == CommandRemoveFormat {
			stripRun(first, last)
			return nil
		}
		return applyInline(root, first, last, cmd, value)
	}
}

func applyInline(root, first, last *html.Node, cmd Command, value string) error {
	switch cmd {
	case CommandBold:
		wrapRunInTag(root, first, last, atom.B)
	case CommandItalic:
		wrapRunInTag(root, first, last, atom.I)
	case CommandUnderline:
		wrapRunInTag(root, first, last, atom.U)
	case CommandCreateLink:
		if value == "" {
			return fmt.Errorf("createLink needs a url: %w", domain.ErrValidation)
		}
		applyLink(root, first, last, value)
	case CommandFontSize:
		ord, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("font size %q: %w", value, domain.ErrValidation)
		}
		px, ok := OrdinalToPx(ord)
		if !ok {
			return fmt.Errorf("font size %d out of range: %w", ord, domain.ErrValidation)
		}
		applyStyle(first, last, "font-size", fmt.Sprintf("%dpx", px))
	case CommandForeColor:
		if value == "" {
			return fmt.Errorf("foreColor needs a color: %w", domain.ErrValidation)
		}
		applyStyle(first, last, "color", value)
	case CommandHiliteColor:
		if value == "" {
			return fmt.Errorf("hiliteColor needs a color: %w", domain.ErrValidation)
		}
		applyStyle(first, last, "background-color", value)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, domain.ErrValidation)
	}
	return nil
}

// wrapRunInTag wraps a sibling run in a formatting element. Applying over
// content already inside that element is a no-op, so repeated commands do
// not nest; removeFormat is the way back out.
func wrapRunInTag(root, first, last *html.Node, a atom.Atom) {
	if runCovered(root, first, last, func(n *html.Node) bool { return n.DataAtom == a }) {
		return
	}
	wrapRun(first, last, NewElement(a))
}

func applyLink(root, first, last *html.Node, href string) {
	if existing := Ancestor(root, first, func(n *html.Node) bool { return n.DataAtom == atom.A }); existing != nil {
		SetAttr(existing, "href", href)
		return
	}
	link := NewElement(atom.A)
	SetAttr(link, "href", href)
	wrapRun(first, last, link)
}

// applyStyle wraps the run in a styled span, or updates the style in
// place when the run already is a single styled span. The in-place path
// is what keeps sticky commands from stacking wrappers on reapply.
func applyStyle(first, last *html.Node, prop, value string) {
	if first == last && first.Type == html.ElementNode && first.DataAtom == atom.Span &&
		!HasAttr(first, MarkerAttr) && !HasClass(first, ImageWrapperClass) && HasAttr(first, "style") {
		SetStyleProp(first, prop, value)
		return
	}
	span := NewElement(atom.Span)
	SetStyleProp(span, prop, value)
	wrapRun(first, last, span)
}

// wrapRun moves the siblings [first..last] into wrapper and plants the
// wrapper where the run was.
func wrapRun(first, last *html.Node, wrapper *html.Node) {
	parent := first.Parent
	parent.InsertBefore(wrapper, first)
	for {
		next := first.NextSibling
		parent.RemoveChild(first)
		wrapper.AppendChild(first)
		if first == last {
			break
		}
		first = next
	}
}

// runCovered reports whether every text node in the run already sits
// inside an element matching pred, counting ancestors above the run.
func runCovered(root, first, last *html.Node, pred func(*html.Node) bool) bool {
	covered := true
	forRun(first, last, func(n *html.Node) {
		if !covered || n.Type != html.TextNode {
			return
		}
		if Ancestor(root, n, pred) == nil {
			covered = false
		}
	})
	return covered
}

// forRun visits every node in the sibling run [first..last], depth-first.
func forRun(first, last *html.Node, fn func(*html.Node)) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		fn(n)
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		for _, c := range children {
			visit(c)
		}
	}
	for n := first; n != nil; {
		next := n.NextSibling
		visit(n)
		if n == last {
			break
		}
		n = next
	}
}

var formattingAtoms = map[atom.Atom]bool{
	atom.B: true, atom.I: true, atom.U: true, atom.Strong: true,
	atom.Em: true, atom.S: true, atom.Strike: true, atom.Font: true,
}

var formattingStyleProps = []string{"font-size", "color", "background-color"}

// stripRun clears inline formatting from a sibling run. Links survive,
// image wrappers are skipped whole.
func stripRun(first, last *html.Node) {
	if first == nil {
		return
	}
	var strip func(n *html.Node)
	strip = func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if HasClass(n, ImageWrapperClass) {
			return
		}
		var children []*html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		for _, c := range children {
			strip(c)
		}

		if HasAttr(n, MarkerAttr) {
			return
		}
		if formattingAtoms[n.DataAtom] {
			Unwrap(n)
			return
		}
		for _, prop := range formattingStyleProps {
			RemoveStyleProp(n, prop)
		}
		if n.DataAtom == atom.Span && len(n.Attr) == 0 {
			Unwrap(n)
		}
	}
	for n := first; n != nil; {
		next := n.NextSibling
		stop := n == last
		strip(n)
		if stop {
			break
		}
		n = next
	}
}

// applyFormatBlock swaps the block container around ref for the given
// tag, creating one when the content sits bare at the top level.
func applyFormatBlock(root, ref *html.Node, value string) error {
	tag := strings.ToLower(strings.Trim(value, "<>"))
	if !formatBlockTags[tag] {
		return fmt.Errorf("formatBlock tag %q: %w", tag, domain.ErrValidation)
	}
	a := atom.Lookup([]byte(tag))
	replacement := NewElement(a)

	if li := Ancestor(root, ref, func(n *html.Node) bool { return n.DataAtom == atom.Li }); li != nil {
		for li.FirstChild != nil {
			c := li.FirstChild
			li.RemoveChild(c)
			replacement.AppendChild(c)
		}
		li.AppendChild(replacement)
		return nil
	}

	top := TopLevelOf(root, ref)
	if top == nil {
		return domain.ErrNoActiveSelection
	}
	if top.Type == html.ElementNode && blockTags[top.DataAtom] {
		for top.FirstChild != nil {
			c := top.FirstChild
			top.RemoveChild(c)
			replacement.AppendChild(c)
		}
		root.InsertBefore(replacement, top)
		root.RemoveChild(top)
		return nil
	}

	first, last := inlineRunAround(top)
	wrapRun(first, last, replacement)
	return nil
}

// inlineRunAround expands a top-level node to the contiguous run of
// inline siblings it belongs to, the way a browser treats an unwrapped
// line.
func inlineRunAround(n *html.Node) (first, last *html.Node) {
	isInline := func(c *html.Node) bool {
		return c.Type != html.ElementNode || !blockTags[c.DataAtom]
	}
	first, last = n, n
	for first.PrevSibling != nil && isInline(first.PrevSibling) {
		first = first.PrevSibling
	}
	for last.NextSibling != nil && isInline(last.NextSibling) {
		last = last.NextSibling
	}
	return first, last
}

// applyList toggles list wrapping for the block containing ref. Matching
// list type unwraps back to paragraphs; the opposite type converts in
// place.
func applyList(root, ref *html.Node, listAtom atom.Atom) error {
	top := TopLevelOf(root, ref)
	if top == nil {
		return domain.ErrNoActiveSelection
	}

	if top.Type == html.ElementNode && (top.DataAtom == atom.Ul || top.DataAtom == atom.Ol) {
		if top.DataAtom == listAtom {
			unwrapList(root, top)
			return nil
		}
		top.DataAtom = listAtom
		top.Data = listAtom.String()
		return nil
	}

	list := NewElement(listAtom)
	item := NewElement(atom.Li)
	list.AppendChild(item)
	root.InsertBefore(list, top)
	root.RemoveChild(top)
	if top.Type == html.ElementNode && blockTags[top.DataAtom] {
		for top.FirstChild != nil {
			c := top.FirstChild
			top.RemoveChild(c)
			item.AppendChild(c)
		}
	} else {
		item.AppendChild(top)
	}
	return nil
}

// unwrapList dissolves a list into one paragraph per item.
func unwrapList(root, list *html.Node) {
	var items []*html.Node
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == atom.Li {
			items = append(items, c)
		}
	}
	for _, li := range items {
		p := NewElement(atom.P)
		for li.FirstChild != nil {
			c := li.FirstChild
			li.RemoveChild(c)
			p.AppendChild(c)
		}
		root.InsertBefore(p, list)
	}
	root.RemoveChild(list)
}

// QueryFontSize reports the font-size step in effect at the start of the
// range, defaulting to the middle step when nothing styles it.
func QueryFontSize(root *html.Node, r Range) int {
	n, ok := r.Start.Path.Resolve(root)
	if !ok {
		return DefaultFontSizeOrdinal
	}
	return QueryFontSizeAt(root, n)
}

// QueryFontSizeAt walks up from n looking for the nearest font-size
// declaration, from either a styled span or a legacy font tag.
func QueryFontSizeAt(root, n *html.Node) int {
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if v := GetStyleProp(cur, "font-size"); v != "" {
			if px, err := parsePx(v); err == nil {
				return PxToOrdinal(px)
			}
		}
		if cur.DataAtom == atom.Font {
			if size := GetAttr(cur, "size"); size != "" {
				if ord, err := strconv.Atoi(size); err == nil && ord >= 1 && ord <= 7 {
					return ord
				}
			}
		}
	}
	return DefaultFontSizeOrdinal
}

func parsePx(v string) (float64, error) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	return strconv.ParseFloat(v, 64)
}
