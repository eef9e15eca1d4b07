package markup

import (
	"fmt"
	"math"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Inline image wrappers are persisted markup: a non-editable span holding
// the img plus eight resize handles. Handle spans and the selected and
// dragging classes are transient editor chrome that sanitization strips;
// the wrapper itself, its data attributes and the img survive.
const (
	ImageWrapperClass = "inline-image-wrapper"
	HandleClass       = "resize-handle"
	SelectedClass     = "selected"
	DraggingClass     = "dragging"

	FileIDAttr = "data-file-id"
	WrapAttr   = "data-wrap"
	HandleAttr = "data-handle"
)

// MinImageSize is the smallest width or height a resize can produce.
const MinImageSize = 50

// Text wrap modes for inline images.
const (
	WrapLeft       = "left"
	WrapRight      = "right"
	WrapCenter     = "center"
	WrapInline     = "inline"
	WrapTightLeft  = "tight-left"
	WrapTightRight = "tight-right"

	DefaultWrapMode = WrapLeft
)

var wrapModes = []string{WrapLeft, WrapRight, WrapCenter, WrapInline, WrapTightLeft, WrapTightRight}

// WrapModes lists the valid wrap modes in presentation order.
func WrapModes() []string {
	out := make([]string, len(wrapModes))
	copy(out, wrapModes)
	return out
}

// ValidWrapMode reports whether mode is one of the supported modes.
func ValidWrapMode(mode string) bool {
	for _, m := range wrapModes {
		if m == mode {
			return true
		}
	}
	return false
}

// ResizeHandles lists the handle positions in clockwise order from the
// top-left corner.
var ResizeHandles = []string{"nw", "n", "ne", "e", "se", "s", "sw", "w"}

// BuildImageWrapper assembles the persisted wrapper markup for an inline
// image.
func BuildImageWrapper(fileID, src, alt string) *html.Node {
	wrapper := NewElement(atom.Span)
	SetAttr(wrapper, "class", ImageWrapperClass)
	SetAttr(wrapper, "contenteditable", "false")
	SetAttr(wrapper, FileIDAttr, fileID)
	SetAttr(wrapper, WrapAttr, DefaultWrapMode)

	img := NewElement(atom.Img)
	SetAttr(img, "src", src)
	SetAttr(img, "alt", alt)
	wrapper.AppendChild(img)

	for _, h := range ResizeHandles {
		handle := NewElement(atom.Span)
		SetAttr(handle, "class", HandleClass)
		SetAttr(handle, HandleAttr, h)
		wrapper.AppendChild(handle)
	}
	return wrapper
}

// IsImageWrapper reports whether n is an inline image wrapper.
func IsImageWrapper(n *html.Node) bool {
	return n.Type == html.ElementNode && HasClass(n, ImageWrapperClass)
}

// FindImageWrapper locates a wrapper by its file id.
func FindImageWrapper(root *html.Node, fileID string) *html.Node {
	return FindElement(root, func(n *html.Node) bool {
		return IsImageWrapper(n) && GetAttr(n, FileIDAttr) == fileID
	})
}

// ImageWrappers returns every wrapper under root, in document order.
func ImageWrappers(root *html.Node) []*html.Node {
	return FindElements(root, IsImageWrapper)
}

// FileIDOf reads the attachment id a wrapper points at.
func FileIDOf(wrapper *html.Node) string {
	return GetAttr(wrapper, FileIDAttr)
}

// SelectImage marks one wrapper selected and deselects the rest. The
// boolean reports whether the wrapper exists.
func SelectImage(root *html.Node, fileID string) bool {
	target := FindImageWrapper(root, fileID)
	if target == nil {
		return false
	}
	DeselectImages(root)
	AddClass(target, SelectedClass)
	return true
}

// DeselectImages clears selection and dragging state from every wrapper.
func DeselectImages(root *html.Node) {
	for _, w := range ImageWrappers(root) {
		RemoveClass(w, SelectedClass)
		RemoveClass(w, DraggingClass)
	}
}

// SelectedImage returns the currently selected wrapper, if any.
func SelectedImage(root *html.Node) *html.Node {
	return FindElement(root, func(n *html.Node) bool {
		return IsImageWrapper(n) && HasClass(n, SelectedClass)
	})
}

// SetDragging toggles the dragging class on a wrapper.
func SetDragging(wrapper *html.Node, on bool) {
	if on {
		AddClass(wrapper, DraggingClass)
		return
	}
	RemoveClass(wrapper, DraggingClass)
}

// WrapModeOf reads a wrapper's wrap mode, defaulting when the attribute
// is missing or unknown.
func WrapModeOf(wrapper *html.Node) string {
	if mode := GetAttr(wrapper, WrapAttr); ValidWrapMode(mode) {
		return mode
	}
	return DefaultWrapMode
}

// SetWrapMode stores a wrap mode on the wrapper.
func SetWrapMode(wrapper *html.Node, mode string) error {
	if !ValidWrapMode(mode) {
		return fmt.Errorf("unknown wrap mode %q", mode)
	}
	SetAttr(wrapper, WrapAttr, mode)
	return nil
}

func imgOf(wrapper *html.Node) *html.Node {
	for c := wrapper.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Img {
			return c
		}
	}
	return nil
}

// SetImageSize writes pixel dimensions onto the img's inline style.
func SetImageSize(wrapper *html.Node, width, height int) {
	img := imgOf(wrapper)
	if img == nil {
		return
	}
	SetStyleProp(img, "width", fmt.Sprintf("%dpx", width))
	SetStyleProp(img, "height", fmt.Sprintf("%dpx", height))
}

// ImageSize reads pixel dimensions back from the img's inline style.
// Unstyled images report zeros; the client measures those natively.
func ImageSize(wrapper *html.Node) (width, height int) {
	img := imgOf(wrapper)
	if img == nil {
		return 0, 0
	}
	if px, err := parsePx(GetStyleProp(img, "width")); err == nil {
		width = int(math.Round(px))
	}
	if px, err := parsePx(GetStyleProp(img, "height")); err == nil {
		height = int(math.Round(px))
	}
	return width, height
}

// RemoveImageWrapper detaches the wrapper for fileID. The boolean reports
// whether it was present.
func RemoveImageWrapper(root *html.Node, fileID string) bool {
	w := FindImageWrapper(root, fileID)
	if w == nil {
		return false
	}
	Detach(w)
	return true
}

type handleSpec struct {
	east, west   bool
	south, north bool
}

var resizeHandleSpecs = map[string]handleSpec{
	"e":  {east: true},
	"w":  {west: true},
	"s":  {south: true},
	"n":  {north: true},
	"ne": {east: true, north: true},
	"se": {east: true, south: true},
	"sw": {west: true, south: true},
	"nw": {west: true, north: true},
}

// ResizeImage computes the dimensions after dragging a handle by
// (dx, dy) pixels. Edge handles stretch one axis; corner handles keep
// the starting aspect ratio, letting the dominant axis drive. Both
// dimensions clamp to MinImageSize independently.
func ResizeImage(handle string, startW, startH, dx, dy int) (int, int, error) {
	spec, ok := resizeHandleSpecs[handle]
	if !ok {
		return 0, 0, fmt.Errorf("unknown resize handle %q", handle)
	}

	w, h := startW, startH
	switch {
	case spec.east:
		w = startW + dx
	case spec.west:
		w = startW - dx
	}
	switch {
	case spec.south:
		h = startH + dy
	case spec.north:
		h = startH - dy
	}

	corner := (spec.east || spec.west) && (spec.south || spec.north)
	if corner && startW > 0 && startH > 0 {
		ratio := float64(startW) / float64(startH)
		if abs(dx) >= abs(dy) {
			h = int(math.Round(float64(w) / ratio))
		} else {
			w = int(math.Round(float64(h) * ratio))
		}
	}

	if w < MinImageSize {
		w = MinImageSize
	}
	if h < MinImageSize {
		h = MinImageSize
	}
	return w, h, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
