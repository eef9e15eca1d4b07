package markup

import (
	"errors"
	"testing"

	"arbor/internal/domain"
)

func mustParse(t *testing.T, fragment string) *Tree {
	t.Helper()
	tree, err := Parse(fragment)
	if err != nil {
		t.Fatalf("Parse(%q): %v", fragment, err)
	}
	return tree
}

func mustRender(t *testing.T, tree *Tree) string {
	t.Helper()
	out, err := tree.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return out
}

func textRange(path NodePath, from, to int) Range {
	return Range{
		Start: Anchor{Path: path, Offset: from},
		End:   Anchor{Path: path, Offset: to},
	}
}

func TestPxToOrdinal(t *testing.T) {
	tests := []struct {
		px   float64
		want int
	}{
		{9, 1},
		{12, 2},
		{15, 3},
		{17, 4},
		{20, 5},
		{30, 6},
		{40, 7},
		{10, 1},
		{13, 2},
		{16, 3},
		{18, 4},
		{24, 5},
		{32, 6},
		{33, 7},
	}
	for _, tt := range tests {
		if got := PxToOrdinal(tt.px); got != tt.want {
			t.Errorf("PxToOrdinal(%v) = %d, want %d", tt.px, got, tt.want)
		}
	}
}

func TestOrdinalToPx(t *testing.T) {
	wantPx := map[int]int{1: 10, 2: 13, 3: 16, 4: 18, 5: 24, 6: 32, 7: 48}
	for ord, want := range wantPx {
		got, ok := OrdinalToPx(ord)
		if !ok || got != want {
			t.Errorf("OrdinalToPx(%d) = %d, %v, want %d, true", ord, got, ok, want)
		}
	}
	for _, ord := range []int{0, 8, -1} {
		if _, ok := OrdinalToPx(ord); ok {
			t.Errorf("OrdinalToPx(%d) accepted out-of-range ordinal", ord)
		}
	}
}

func TestApplyToMarker(t *testing.T) {
	tests := []struct {
		name    string
		content string
		rng     Range
		cmd     Command
		value   string
		want    string
	}{
		{
			name:    "bold wraps selection",
			content: "<p>hello world</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandBold,
			want:    `<p><span data-editor-marker="m1"><b>hello</b></span> world</p>`,
		},
		{
			name:    "bold is a no-op inside bold",
			content: "<p><b>hello world</b></p>",
			rng:     textRange(NodePath{0, 0, 0}, 0, 5),
			cmd:     CommandBold,
			want:    `<p><b><span data-editor-marker="m1">hello</span> world</b></p>`,
		},
		{
			name:    "italic spans formatted siblings",
			content: "<p>ab<b>cd</b>ef</p>",
			rng: Range{
				Start: Anchor{Path: NodePath{0, 0}, Offset: 1},
				End:   Anchor{Path: NodePath{0, 2}, Offset: 1},
			},
			cmd:  CommandItalic,
			want: `<p>a<span data-editor-marker="m1"><i>b<b>cd</b>e</i></span>f</p>`,
		},
		{
			name:    "font size five renders 24px",
			content: "<p>hello world</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandFontSize,
			value:   "5",
			want:    `<p><span data-editor-marker="m1"><span style="font-size: 24px">hello</span></span> world</p>`,
		},
		{
			name:    "fore color wraps in styled span",
			content: "<p>hello world</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandForeColor,
			value:   "#ff0000",
			want:    `<p><span data-editor-marker="m1"><span style="color: #ff0000">hello</span></span> world</p>`,
		},
		{
			name:    "create link wraps selection",
			content: "<p>hello world</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandCreateLink,
			value:   "https://go.dev",
			want:    `<p><span data-editor-marker="m1"><a href="https://go.dev">hello</a></span> world</p>`,
		},
		{
			name:    "create link updates enclosing anchor",
			content: `<p><a href="https://old.example">hello world</a></p>`,
			rng:     textRange(NodePath{0, 0, 0}, 0, 5),
			cmd:     CommandCreateLink,
			value:   "https://new.example",
			want:    `<p><a href="https://new.example"><span data-editor-marker="m1">hello</span> world</a></p>`,
		},
		{
			name:    "remove format keeps links",
			content: `<p><a href="https://go.dev"><b>hello</b> world</a></p>`,
			rng: Range{
				Start: Anchor{Path: NodePath{0, 0}, Offset: 0},
				End:   Anchor{Path: NodePath{0, 0}, Offset: 2},
			},
			cmd:  CommandRemoveFormat,
			want: `<p><a href="https://go.dev"><span data-editor-marker="m1">hello world</span></a></p>`,
		},
		{
			name:    "remove format unwraps bare style spans",
			content: `<p><span style="color: red">hello</span></p>`,
			rng: Range{
				Start: Anchor{Path: NodePath{0}, Offset: 0},
				End:   Anchor{Path: NodePath{0}, Offset: 1},
			},
			cmd:  CommandRemoveFormat,
			want: `<p><span data-editor-marker="m1">hello</span></p>`,
		},
		{
			name:    "format block swaps container tag",
			content: "<p>hello world</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandFormatBlock,
			value:   "h2",
			want:    `<h2><span data-editor-marker="m1">hello</span> world</h2>`,
		},
		{
			name:    "format block wraps bare top-level text",
			content: "hello world",
			rng:     textRange(NodePath{0}, 0, 5),
			cmd:     CommandFormatBlock,
			value:   "p",
			want:    `<p><span data-editor-marker="m1">hello</span> world</p>`,
		},
		{
			name:    "unordered list wraps paragraph",
			content: "<p>alpha</p>",
			rng:     textRange(NodePath{0, 0}, 0, 5),
			cmd:     CommandUnorderedList,
			want:    `<ul><li><span data-editor-marker="m1">alpha</span></li></ul>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, tt.content)
			if err := WrapRange(tree.Root(), tt.rng, "m1"); err != nil {
				t.Fatalf("WrapRange: %v", err)
			}
			if err := ApplyToMarker(tree.Root(), "m1", tt.cmd, tt.value); err != nil {
				t.Fatalf("ApplyToMarker(%s): %v", tt.cmd, err)
			}
			if got := mustRender(t, tree); got != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}
		})
	}
}

func TestApplyToMarker_FontSizeReapplyDoesNotNest(t *testing.T) {
	tree := mustParse(t, "<p>hello world</p>")
	rng := textRange(NodePath{0, 0}, 0, 5)
	if err := WrapRange(tree.Root(), rng, "m1"); err != nil {
		t.Fatalf("WrapRange: %v", err)
	}

	if err := ApplyToMarker(tree.Root(), "m1", CommandFontSize, "3"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := ApplyToMarker(tree.Root(), "m1", CommandFontSize, "5"); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	want := `<p><span data-editor-marker="m1"><span style="font-size: 24px">hello</span></span> world</p>`
	if got := mustRender(t, tree); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestApplyToMarker_ListToggleRestoresParagraph(t *testing.T) {
	tree := mustParse(t, "<p>alpha</p>")
	if err := WrapRange(tree.Root(), textRange(NodePath{0, 0}, 0, 5), "m1"); err != nil {
		t.Fatalf("WrapRange: %v", err)
	}

	if err := ApplyToMarker(tree.Root(), "m1", CommandUnorderedList, ""); err != nil {
		t.Fatalf("wrap in list: %v", err)
	}
	if err := ApplyToMarker(tree.Root(), "m1", CommandUnorderedList, ""); err != nil {
		t.Fatalf("toggle off: %v", err)
	}

	want := `<p><span data-editor-marker="m1">alpha</span></p>`
	if got := mustRender(t, tree); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestApplyToMarker_ListConversion(t *testing.T) {
	tree := mustParse(t, "<p>alpha</p>")
	if err := WrapRange(tree.Root(), textRange(NodePath{0, 0}, 0, 5), "m1"); err != nil {
		t.Fatalf("WrapRange: %v", err)
	}

	if err := ApplyToMarker(tree.Root(), "m1", CommandUnorderedList, ""); err != nil {
		t.Fatalf("wrap in ul: %v", err)
	}
	if err := ApplyToMarker(tree.Root(), "m1", CommandOrderedList, ""); err != nil {
		t.Fatalf("convert to ol: %v", err)
	}

	want := `<ol><li><span data-editor-marker="m1">alpha</span></li></ol>`
	if got := mustRender(t, tree); got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestApplyToRange_UnwrappableAcrossBlocks(t *testing.T) {
	tree := mustParse(t, "<p>one</p><p>two</p>")
	rng := Range{
		Start: Anchor{Path: NodePath{0, 0}, Offset: 1},
		End:   Anchor{Path: NodePath{1, 0}, Offset: 2},
	}
	err := ApplyToRange(tree.Root(), rng, CommandBold, "")
	if !errors.Is(err, domain.ErrRangeUnwrappable) {
		t.Fatalf("ApplyToRange across blocks = %v, want ErrRangeUnwrappable", err)
	}
}

func TestApplyToMarker_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		cmd   Command
		value string
	}{
		{"font size zero", CommandFontSize, "0"},
		{"font size eight", CommandFontSize, "8"},
		{"font size junk", CommandFontSize, "big"},
		{"empty link", CommandCreateLink, ""},
		{"unknown block tag", CommandFormatBlock, "marquee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, "<p>hello world</p>")
			if err := WrapRange(tree.Root(), textRange(NodePath{0, 0}, 0, 5), "m1"); err != nil {
				t.Fatalf("WrapRange: %v", err)
			}
			err := ApplyToMarker(tree.Root(), "m1", tt.cmd, tt.value)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("ApplyToMarker(%s, %q) = %v, want ErrValidation", tt.cmd, tt.value, err)
			}
		})
	}
}

func TestQueryFontSize(t *testing.T) {
	tests := []struct {
		name    string
		content string
		path    NodePath
		want    int
	}{
		{"styled span", `<p><span style="font-size: 32px">big</span></p>`, NodePath{0, 0, 0}, 6},
		{"legacy font tag", `<p><font size="2">small</font></p>`, NodePath{0, 0, 0}, 2},
		{"seventeen px buckets to four", `<p><span style="font-size: 17px">x</span></p>`, NodePath{0, 0, 0}, 4},
		{"unstyled text defaults", "<p>plain</p>", NodePath{0, 0}, DefaultFontSizeOrdinal},
		{"stale path defaults", "<p>plain</p>", NodePath{4, 2}, DefaultFontSizeOrdinal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := mustParse(t, tt.content)
			r := Range{Start: Anchor{Path: tt.path}, End: Anchor{Path: tt.path}}
			if got := QueryFontSize(tree.Root(), r); got != tt.want {
				t.Errorf("QueryFontSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, name := range []string{"bold", "italic", "underline", "fontSize", "foreColor", "hiliteColor", "createLink", "removeFormat", "formatBlock", "insertUnorderedList", "insertOrderedList"} {
		if _, ok := ParseCommand(name); !ok {
			t.Errorf("ParseCommand(%q) not recognized", name)
		}
	}
	if _, ok := ParseCommand("insertHTML"); ok {
		t.Error("ParseCommand accepted an unsupported command")
	}
}
