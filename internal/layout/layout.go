// Package layout computes sizes, alignments and storage locations: layout
// member offsets, stack frame slots and static global storage.
package layout

import (
	"fmt"
	"strings"

	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/types"
)

// Manager holds the target parameters used for every computation.
type Manager struct {
	WordSize   int64 // size and alignment of pointers
	StackAlign int64 // alignment of frame sizes
}

// NewManager creates a manager for the default 64-bit target
func NewManager() *Manager {
	return &Manager{
		WordSize:   8,
		StackAlign: 16,
	}
}

// Sizeof returns the storage size of t in bytes. Layouts must be complete.
func (m *Manager) Sizeof(t types.Type) int64 {
	switch t := t.(type) {
	case *types.Basic:
		return t.Size
	case *types.Pointer:
		return m.WordSize
	case *types.Array:
		return m.Sizeof(t.Elem) * t.Len
	case *types.Layout:
		if !t.Complete() {
			panic(cerrors.Internal(cerrors.ComponentLayout, "size of incomplete layout %s", t.Name))
		}
		return t.Size
	case *types.Func:
		return m.WordSize
	}
	panic(cerrors.Internal(cerrors.ComponentLayout, "size of unresolved type %v", t))
}

// Alignof returns the alignment requirement of t in bytes.
func (m *Manager) Alignof(t types.Type) int64 {
	switch t := t.(type) {
	case *types.Basic:
		return max(t.Size, 1)
	case *types.Array:
		return m.Alignof(t.Elem)
	case *types.Layout:
		if !t.Complete() {
			panic(cerrors.Internal(cerrors.ComponentLayout, "alignment of incomplete layout %s", t.Name))
		}
		return t.Align
	}
	return m.WordSize
}

// CycleError reports a layout that contains itself by value.
type CycleError struct {
	Chain []*types.Layout
}

func (e *CycleError) Error() string {
	names := make([]string, len(e.Chain))
	for i, l := range e.Chain {
		names[i] = l.Name
	}
	return fmt.Sprintf("invalid recursive layout: %s", strings.Join(names, " -> "))
}

// Complete assigns member offsets, size and alignment to l. Layouts that l
// embeds by value (directly or through arrays) are completed first, so
// layouts may be completed in any order. Embedding through a pointer does
// not require the pointee to be complete.
func (m *Manager) Complete(l *types.Layout) error {
	return m.complete(l, nil)
}

func (m *Manager) complete(l *types.Layout, stack []*types.Layout) error {
	if l.Complete() {
		return nil
	}
	for i, s := range stack {
		if s == l {
			chain := append(append([]*types.Layout{}, stack[i:]...), l)
			return &CycleError{Chain: chain}
		}
	}
	stack = append(stack, l)

	for _, mem := range l.Members {
		if inner := embeddedLayout(mem.Type); inner != nil {
			if err := m.complete(inner, stack); err != nil {
				return err
			}
		}
	}

	offset := int64(0)
	maxAlign := int64(1)
	for _, mem := range l.Members {
		if types.IsInvalid(mem.Type) {
			continue
		}
		align := m.Alignof(mem.Type)
		maxAlign = max(maxAlign, align)
		mem.Offset = alignUp(offset, align)
		offset = mem.Offset + m.Sizeof(mem.Type)
	}

	l.Align = maxAlign
	l.Size = alignUp(offset, maxAlign)
	l.MarkComplete()
	return nil
}

// embeddedLayout returns the layout stored by value inside t, if any.
func embeddedLayout(t types.Type) *types.Layout {
	for {
		switch tt := t.(type) {
		case *types.Layout:
			return tt
		case *types.Array:
			t = tt.Elem
		default:
			return nil
		}
	}
}

// Padding returns the number of padding bytes inside a complete layout.
func (m *Manager) Padding(l *types.Layout) int64 {
	used := int64(0)
	for _, mem := range l.Members {
		if !types.IsInvalid(mem.Type) {
			used += m.Sizeof(mem.Type)
		}
	}
	return l.Size - used
}

// isPowerOfTwo checks if a number is a power of 2
func isPowerOfTwo(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}

// alignUp rounds up to the next multiple of alignment
func alignUp(value, alignment int64) int64 {
	if alignment <= 1 {
		return value
	}
	return (value + alignment - 1) & ^(alignment - 1)
}
