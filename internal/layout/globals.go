package layout

import (
	"strings"

	"github.com/calpha-lang/calpha/internal/types"
)

// Global is a statically allocated variable.
type Global struct {
	Label string
	Type  types.Type
	Size  int64
	Align int64
}

// Globals lays out the static storage area. Globals are addressed by label;
// their placement is left to the consumer of the generated program.
type Globals struct {
	m    *Manager
	List []*Global
}

// NewGlobals creates an empty static area.
func (m *Manager) NewGlobals() *Globals {
	return &Globals{m: m}
}

// GlobalLabel returns the static label for a qualified name.
func GlobalLabel(path string) string {
	return "g." + strings.ReplaceAll(path, "::", ".")
}

// Add registers a global of type t under the qualified path and returns its
// label.
func (g *Globals) Add(path string, t types.Type) string {
	label := GlobalLabel(path)
	g.List = append(g.List, &Global{
		Label: label,
		Type:  t,
		Size:  g.m.Sizeof(t),
		Align: g.m.Alignof(t),
	})
	return label
}
