package editor

import (
	"arbor/internal/editor/markup"
)

// Rect is the viewport-relative bounding box of a captured selection, as
// measured by the client.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ToolbarPosition is where the floating toolbar should appear for a
// selection.
type ToolbarPosition struct {
	Top  float64 `json:"top"`
	Left float64 `json:"left"`
}

// toolbarPositionFor centers the toolbar above the selection rect and
// keeps it off the viewport's left edge.
func toolbarPositionFor(cfg ToolbarConfig, rect Rect) ToolbarPosition {
	top := rect.Top - cfg.OffsetAbovePx
	left := rect.Left + rect.Width/2 - cfg.HalfWidthPx
	if left < cfg.MinLeftPx {
		left = cfg.MinLeftPx
	}
	return ToolbarPosition{Top: top, Left: left}
}

// Selection is the snapshot a session keeps of the user's last captured
// text selection. MarkerID is empty when the range could not be wrapped
// and the session degraded to the cloned range.
type Selection struct {
	BlockID  string          `json:"block_id"`
	Range    markup.Range    `json:"range"`
	MarkerID string          `json:"marker_id,omitempty"`
	Text     string          `json:"text"`
	FontSize int             `json:"font_size"`
	Rect     Rect            `json:"rect"`
	Toolbar  ToolbarPosition `json:"toolbar"`
}
