// Package editor implements the server-side editing engine: per-page edit
// sessions, the block editing state machine, selection tracking, formatting
// dispatch, inline image gestures and cross-reference navigation.
package editor

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"arbor/internal/editor/markup"
)

//go:embed config/*.yaml
var configFiles embed.FS

// CommandKind groups commands by how they transform content.
type CommandKind string

const (
	CommandKindInline  CommandKind = "inline"
	CommandKindBlock   CommandKind = "block"
	CommandKindList    CommandKind = "list"
	CommandKindCleanup CommandKind = "cleanup"
)

// CommandSpec is the client-facing description of one formatting command.
// Sticky commands keep the selection alive after application so the user
// can re-apply with a different value.
type CommandSpec struct {
	Name   string      `yaml:"name" json:"name"`
	Kind   CommandKind `yaml:"kind" json:"kind"`
	Tag    string      `yaml:"tag,omitempty" json:"tag,omitempty"`
	Style  string      `yaml:"style,omitempty" json:"style,omitempty"`
	Sticky bool        `yaml:"sticky,omitempty" json:"sticky,omitempty"`
	Values []string    `yaml:"values,omitempty" json:"values,omitempty"`
}

// SelectionConfig tunes client-side selection capture.
type SelectionConfig struct {
	SettleMs int `yaml:"settle_ms" json:"settle_ms"`
}

// ToolbarConfig is the floating toolbar placement geometry.
type ToolbarConfig struct {
	OffsetAbovePx float64 `yaml:"offset_above_px" json:"offset_above_px"`
	HalfWidthPx   float64 `yaml:"half_width_px" json:"half_width_px"`
	MinLeftPx     float64 `yaml:"min_left_px" json:"min_left_px"`
}

// NavigationConfig tunes cross-reference navigation effects.
type NavigationConfig struct {
	HighlightMs int `yaml:"highlight_ms" json:"highlight_ms"`
}

// RegistryDoc is the full configuration document, served verbatim to
// clients.
type RegistryDoc struct {
	Selection  SelectionConfig  `yaml:"selection" json:"selection"`
	Toolbar    ToolbarConfig    `yaml:"toolbar" json:"toolbar"`
	Navigation NavigationConfig `yaml:"navigation" json:"navigation"`
	Commands   []CommandSpec    `yaml:"commands" json:"commands"`
	WrapModes  []string         `yaml:"wrap_modes" json:"wrap_modes"`
}

// Registry holds the editing surface configuration loaded from the
// embedded YAML. Immutable after construction.
type Registry struct {
	doc    RegistryDoc
	byName map[string]CommandSpec
}

// NewRegistry loads and validates the embedded configuration. The command
// list and wrap modes must agree with what the engine implements, so a
// drifting config fails at startup instead of at first use.
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/commands.yaml")
	if err != nil {
		return nil, fmt.Errorf("read command config: %w", err)
	}

	var doc RegistryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal command config: %w", err)
	}

	r := &Registry{doc: doc, byName: make(map[string]CommandSpec, len(doc.Commands))}
	for _, spec := range doc.Commands {
		if _, ok := markup.ParseCommand(spec.Name); !ok {
			return nil, fmt.Errorf("command config lists %q, which the engine does not implement", spec.Name)
		}
		if _, dup := r.byName[spec.Name]; dup {
			return nil, fmt.Errorf("command config lists %q twice", spec.Name)
		}
		r.byName[spec.Name] = spec
	}

	engineModes := markup.WrapModes()
	if len(doc.WrapModes) != len(engineModes) {
		return nil, fmt.Errorf("command config lists %d wrap modes, engine has %d", len(doc.WrapModes), len(engineModes))
	}
	for i, mode := range doc.WrapModes {
		if mode != engineModes[i] {
			return nil, fmt.Errorf("wrap mode mismatch at %d: config %q, engine %q", i, mode, engineModes[i])
		}
	}

	if doc.Selection.SettleMs <= 0 {
		return nil, fmt.Errorf("selection.settle_ms must be positive, got %d", doc.Selection.SettleMs)
	}
	if doc.Navigation.HighlightMs <= 0 {
		return nil, fmt.Errorf("navigation.highlight_ms must be positive, got %d", doc.Navigation.HighlightMs)
	}
	if doc.Toolbar.OffsetAbovePx <= 0 || doc.Toolbar.HalfWidthPx <= 0 || doc.Toolbar.MinLeftPx < 0 {
		return nil, fmt.Errorf("toolbar geometry not positive: %+v", doc.Toolbar)
	}

	return r, nil
}

// Doc returns the full document for the commands endpoint.
func (r *Registry) Doc() RegistryDoc {
	return r.doc
}

// Get looks up one command's spec by name.
func (r *Registry) Get(name string) (CommandSpec, bool) {
	spec, ok := r.byName[name]
	return spec, ok
}

// Sticky reports whether a command keeps the selection alive after
// applying.
func (r *Registry) Sticky(name string) bool {
	return r.byName[name].Sticky
}

// Toolbar returns the toolbar placement geometry.
func (r *Registry) Toolbar() ToolbarConfig {
	return r.doc.Toolbar
}

// Navigation returns the navigation effect configuration.
func (r *Registry) Navigation() NavigationConfig {
	return r.doc.Navigation
}
