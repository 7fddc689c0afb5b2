package layout

import (
	cerrors "github.com/calpha-lang/calpha/internal/errors"
)

// Slot is a frame-relative storage location. The value lives at fp - Offset.
type Slot struct {
	Name   string
	Offset int64
	Size   int64
	Align  int64
}

// Frame assigns stack slots for one function. Slots grow downward from the
// frame pointer in allocation order; each slot's offset is a multiple of
// its alignment, so with a StackAlign-aligned frame pointer every slot is
// naturally aligned.
type Frame struct {
	Name  string
	Slots []Slot

	stackAlign int64
	used       int64
}

// NewFrame creates an empty frame.
func (m *Manager) NewFrame(name string) *Frame {
	return &Frame{Name: name, stackAlign: m.StackAlign}
}

// Alloc reserves a slot of the given size and alignment and returns its
// offset below the frame pointer.
func (f *Frame) Alloc(name string, size, align int64) int64 {
	if align <= 0 {
		align = 1
	}
	if !isPowerOfTwo(align) || size < 0 {
		panic(cerrors.Internal(cerrors.ComponentLayout, "frame %s: bad slot %s size=%d align=%d", f.Name, name, size, align))
	}
	off := alignUp(f.used+max(size, 1), align)
	if off <= 0 || off%align != 0 {
		panic(cerrors.Internal(cerrors.ComponentLayout, "frame %s: computed offset %d for %s is invalid", f.Name, off, name))
	}
	f.used = off
	f.Slots = append(f.Slots, Slot{Name: name, Offset: off, Size: size, Align: align})
	return off
}

// Size returns the frame size rounded up to the stack alignment.
func (f *Frame) Size() int64 {
	return alignUp(f.used, f.stackAlign)
}

// Clone returns an independent copy. The code generator appends spill and
// temporary slots to a clone so that analysis results stay reusable.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Slots = append([]Slot(nil), f.Slots...)
	return &c
}
