package codegen

import (
	"fmt"
	"strings"
)

// Branch label kinds.
const (
	KindIfElse     = "if.else"
	KindIfEnd      = "if.end"
	KindWhileBegin = "while.begin"
	KindWhileEnd   = "while.end"
	KindAndEnd     = "and.end"
	KindOrEnd      = "or.end"
)

// LabelGenerator hands out the labels of one compile unit. Branch labels
// are numbered in request order, so emission order alone determines them.
type LabelGenerator struct {
	branches int
	strings  map[string]string
	order    []string // string contents by label number
}

// NewLabelGenerator creates an empty generator.
func NewLabelGenerator() *LabelGenerator {
	return &LabelGenerator{strings: make(map[string]string)}
}

// Func returns the entry label of the function with the given qualified
// path.
func (g *LabelGenerator) Func(path string) string {
	return "fn." + mangle(path)
}

// FuncEnd returns the epilogue label of a function.
func (g *LabelGenerator) FuncEnd(path string) string {
	return g.Func(path) + ".ret"
}

// Init returns the entry label of the unit initializer. Function labels
// all start with "fn.", so it cannot collide with one.
func (g *LabelGenerator) Init() string {
	return "init"
}

// InitEnd returns the epilogue label of the unit initializer.
func (g *LabelGenerator) InitEnd() string {
	return g.Init() + ".ret"
}

// Branch returns a fresh control-flow label of the given kind.
func (g *LabelGenerator) Branch(kind string) string {
	g.branches++
	return fmt.Sprintf(".L%d.%s", g.branches, kind)
}

// String returns the label of a string constant. Identical contents share
// a label.
func (g *LabelGenerator) String(s string) string {
	if l, ok := g.strings[s]; ok {
		return l
	}
	l := fmt.Sprintf("str.%d", len(g.order))
	g.strings[s] = l
	g.order = append(g.order, s)
	return l
}

// Strings returns the interned string contents in label order.
func (g *LabelGenerator) Strings() []string {
	return g.order
}

func mangle(path string) string {
	return strings.ReplaceAll(path, "::", ".")
}
