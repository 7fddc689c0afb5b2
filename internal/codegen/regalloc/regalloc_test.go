package regalloc

import (
	"strings"
	"testing"

	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/lir"
)

type recorder struct{ insns []lir.Insn }

func (r *recorder) emit(i lir.Insn) { r.insns = append(r.insns, i) }

func (r *recorder) text() string {
	var parts []string
	for _, i := range r.insns {
		parts = append(parts, i.String())
	}
	return strings.Join(parts, "; ")
}

func newTestAllocator(n int) (*Allocator, *recorder, *layout.Frame) {
	rec := &recorder{}
	frame := layout.NewManager().NewFrame("test")
	return New(n, frame, rec.emit), rec, frame
}

func TestPoolSizeClamp(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultPoolSize},
		{1, MinPoolSize},
		{4, 4},
		{64, lir.NumGeneral},
	}
	for _, tt := range tests {
		a, _, _ := newTestAllocator(tt.in)
		if got := a.poolSize(); got != tt.want {
			t.Errorf("New(%d).poolSize() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAcquireWithoutPressure(t *testing.T) {
	a, rec, _ := newTestAllocator(4)
	v1, v2 := a.Acquire(), a.Acquire()
	regs := a.Use(v1, v2)

	if regs[0] != lir.R0 || regs[1] != lir.R1 {
		t.Errorf("registers = %v", regs)
	}
	if len(rec.insns) != 0 {
		t.Errorf("unexpected spill code: %s", rec.text())
	}
	if a.Live() != 2 {
		t.Errorf("Live() = %d, want 2", a.Live())
	}
	a.Release(v1)
	a.Release(v2)
	if a.Live() != 0 {
		t.Errorf("Live() after release = %d", a.Live())
	}
}

func TestSpillsLeastRecentlyAcquired(t *testing.T) {
	a, rec, frame := newTestAllocator(2)
	v1 := a.Acquire()
	v2 := a.Acquire()
	v3 := a.Acquire() // evicts v1

	if got := rec.text(); got != "st8 [fp-8], r0" {
		t.Fatalf("spill code = %q", got)
	}
	if a.Spills() != 1 || len(frame.Slots) != 1 {
		t.Fatalf("spills = %d, slots = %d", a.Spills(), len(frame.Slots))
	}

	// Reloading v1 must evict v2, the oldest unpinned value.
	rec.insns = nil
	regs := a.Use(v1, v3)
	if got := rec.text(); got != "st8 [fp-16], r1; ld8 r1, [fp-8]" {
		t.Errorf("reload code = %q", got)
	}
	if regs[0] != lir.R1 || regs[1] != lir.R0 {
		t.Errorf("registers = %v", regs)
	}

	// v2 comes back into the register v3 gave up.
	rec.insns = nil
	a.Release(v3)
	a.Use(v2)
	if got := rec.text(); got != "ld8 r0, [fp-16]" {
		t.Errorf("second reload = %q", got)
	}
	a.Release(v1)
	a.Release(v2)
	if a.Live() != 0 {
		t.Errorf("Live() = %d", a.Live())
	}
}

func TestSpillAll(t *testing.T) {
	a, rec, _ := newTestAllocator(4)
	v1, v2 := a.Acquire(), a.Acquire()
	a.SpillAll()

	if got := rec.text(); got != "st8 [fp-8], r0; st8 [fp-16], r1" {
		t.Errorf("SpillAll code = %q", got)
	}
	if a.Live() != 2 {
		t.Errorf("Live() = %d", a.Live())
	}

	rec.insns = nil
	regs := a.Use(v2, v1)
	if got := rec.text(); got != "ld8 r0, [fp-16]; ld8 r1, [fp-8]" {
		t.Errorf("reload code = %q", got)
	}
	if regs[0] != lir.R0 || regs[1] != lir.R1 {
		t.Errorf("registers = %v", regs)
	}
}

func expectInternal(t *testing.T, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !cerrors.IsInternal(err) {
			t.Errorf("recovered %v, want internal error", r)
		}
	}()
	f()
}

func TestInternalErrors(t *testing.T) {
	t.Run("unknown value", func(t *testing.T) {
		a, _, _ := newTestAllocator(2)
		expectInternal(t, func() { a.Release(Value(42)) })
	})

	t.Run("double release", func(t *testing.T) {
		a, _, _ := newTestAllocator(2)
		v := a.Acquire()
		a.Release(v)
		expectInternal(t, func() { a.Release(v) })
	})

	t.Run("all pinned", func(t *testing.T) {
		a, _, _ := newTestAllocator(2)
		v1, v2, v3 := a.Acquire(), a.Acquire(), a.Acquire()
		expectInternal(t, func() { a.Use(v1, v2, v3) })
	})
}
