// Package regalloc assigns general registers to the temporaries of the code
// generator as it emits code.
//
// Values are opaque handles. A value is either resident in a register or
// spilled to a frame slot. When the pool runs dry the least recently
// acquired value that is not pinned is stored to a fresh slot and its
// register reused; it is reloaded transparently the next time it is used.
package regalloc

import (
	"sort"

	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/lir"
)

// DefaultPoolSize is the number of general registers used when none is
// configured.
const DefaultPoolSize = 8

// MinPoolSize is the smallest usable pool: binary operations need two
// operands resident at once.
const MinPoolSize = 2

// spillSize is the width of a spill slot; registers are 64 bits.
const spillSize = 8

// Frame provides stack slots for spilled values. *layout.Frame satisfies it.
type Frame interface {
	Alloc(name string, size, align int64) int64
}

// Value is a handle to a live temporary.
type Value int

// AllocationType indicates where a value currently lives.
type AllocationType int

const (
	AllocRegister AllocationType = iota
	AllocSpill
)

// Allocation is the current location of a value.
type Allocation struct {
	Type      AllocationType
	Register  lir.Reg // if resident
	SpillSlot int64   // if spilled, as an offset below fp
	order     int     // acquisition sequence number
}

// Allocator tracks the register pool of one function.
type Allocator struct {
	pool   []lir.Reg
	owner  []Value // per pool index; 0 when free
	pinned []bool
	values map[Value]*Allocation

	frame     Frame
	emit      func(lir.Insn)
	freeSlots []int64
	next      Value
	seq       int
	spills    int
}

// New creates an allocator over r0..r{n-1}. Spill and reload code is passed
// to emit; spill slots come from frame. n is clamped to
// [MinPoolSize, lir.NumGeneral]; zero selects DefaultPoolSize.
func New(n int, frame Frame, emit func(lir.Insn)) *Allocator {
	switch {
	case n == 0:
		n = DefaultPoolSize
	case n < MinPoolSize:
		n = MinPoolSize
	case n > lir.NumGeneral:
		n = lir.NumGeneral
	}
	a := &Allocator{
		owner:  make([]Value, n),
		pinned: make([]bool, n),
		values: make(map[Value]*Allocation),
		frame:  frame,
		emit:   emit,
	}
	for i := range n {
		a.pool = append(a.pool, lir.R(i))
	}
	return a
}

// poolSize returns the number of registers managed.
func (a *Allocator) poolSize() int { return len(a.pool) }

// Spills returns the number of spill stores emitted so far.
func (a *Allocator) Spills() int { return a.spills }

// Live returns the number of values not yet released, resident or spilled.
func (a *Allocator) Live() int { return len(a.values) }

// Acquire returns a new value bound to a register, spilling another value
// if necessary. Pins from a previous Use are dropped.
func (a *Allocator) Acquire() Value {
	a.unpinAll()
	a.next++
	v := a.next
	idx := a.take()
	a.owner[idx] = v
	a.seq++
	a.values[v] = &Allocation{Type: AllocRegister, Register: a.pool[idx], order: a.seq}
	return v
}

// Use returns the registers holding vals, reloading spilled ones. All of
// them stay pinned until the next call to Use or Acquire, so the returned
// registers are valid for the instruction emitted next.
func (a *Allocator) Use(vals ...Value) []lir.Reg {
	a.unpinAll()
	regs := make([]lir.Reg, len(vals))

	// Pin the resident ones first so that reloads cannot evict them.
	for _, v := range vals {
		al := a.lookup(v)
		if al.Type == AllocRegister {
			a.pinned[a.index(al.Register)] = true
		}
	}
	for i, v := range vals {
		al := a.values[v]
		if al.Type == AllocSpill {
			idx := a.take()
			a.owner[idx] = v
			a.emit(lir.Load{Dst: a.pool[idx], Base: lir.FP, Off: -al.SpillSlot, Size: spillSize, Signed: true})
			a.freeSlots = append(a.freeSlots, al.SpillSlot)
			al.Type, al.Register, al.SpillSlot = AllocRegister, a.pool[idx], 0
		}
		idx := a.index(al.Register)
		a.pinned[idx] = true
		regs[i] = al.Register
	}
	return regs
}

// Release frees the register or spill slot held by v.
func (a *Allocator) Release(v Value) {
	al := a.lookup(v)
	if al.Type == AllocRegister {
		idx := a.index(al.Register)
		a.owner[idx] = 0
		a.pinned[idx] = false
	} else {
		a.freeSlots = append(a.freeSlots, al.SpillSlot)
	}
	delete(a.values, v)
}

// SpillAll stores every resident value to the frame, oldest first. Calls
// and branches that join control flow require it, since no register
// survives them.
func (a *Allocator) SpillAll() {
	a.unpinAll()
	var resident []int
	for idx, v := range a.owner {
		if v != 0 {
			resident = append(resident, idx)
		}
	}
	sort.Slice(resident, func(i, j int) bool {
		return a.values[a.owner[resident[i]]].order < a.values[a.owner[resident[j]]].order
	})
	for _, idx := range resident {
		a.spill(idx)
	}
}

// take returns the index of a free register, evicting the least recently
// acquired unpinned value when none is free.
func (a *Allocator) take() int {
	for idx, v := range a.owner {
		if v == 0 {
			return idx
		}
	}

	victim := -1
	for idx, v := range a.owner {
		if a.pinned[idx] {
			continue
		}
		if victim < 0 || a.values[v].order < a.values[a.owner[victim]].order {
			victim = idx
		}
	}
	if victim < 0 {
		panic(cerrors.Internal(cerrors.ComponentRegalloc, "all %d registers are pinned", len(a.pool)))
	}
	a.spill(victim)
	return victim
}

// spill stores the value in pool register idx to a frame slot.
func (a *Allocator) spill(idx int) {
	v := a.owner[idx]
	al := a.values[v]
	slot := a.slot()
	a.emit(lir.Store{Base: lir.FP, Off: -slot, Src: a.pool[idx], Size: spillSize})
	al.Type, al.Register, al.SpillSlot = AllocSpill, 0, slot
	a.owner[idx] = 0
	a.pinned[idx] = false
	a.spills++
}

func (a *Allocator) slot() int64 {
	if n := len(a.freeSlots); n > 0 {
		s := a.freeSlots[n-1]
		a.freeSlots = a.freeSlots[:n-1]
		return s
	}
	return a.frame.Alloc("spill", spillSize, spillSize)
}

func (a *Allocator) lookup(v Value) *Allocation {
	al, ok := a.values[v]
	if !ok {
		panic(cerrors.Internal(cerrors.ComponentRegalloc, "unknown value %d", v))
	}
	return al
}

func (a *Allocator) index(r lir.Reg) int {
	for idx, pr := range a.pool {
		if pr == r {
			return idx
		}
	}
	panic(cerrors.Internal(cerrors.ComponentRegalloc, "register %s is not in the pool", r))
}

func (a *Allocator) unpinAll() {
	for i := range a.pinned {
		a.pinned[i] = false
	}
}
