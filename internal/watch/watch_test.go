package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{0, "NONE"},
		{OpWrite, "WRITE"},
		{OpCreate | OpRename, "CREATE|RENAME"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestAddRemove(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Skipf("no OS watcher: %v", err)
	}
	defer w.Close()

	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.ca"), filepath.Join(dir, "b.ca")
	for _, f := range []string{a, b} {
		if err := w.Add(f); err != nil {
			t.Fatalf("Add(%s): %v", f, err)
		}
	}
	if got := w.Files(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("Files() = %v", got)
	}
	if err := w.Remove(a); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := w.Files(); len(got) != 1 || got[0] != b {
		t.Errorf("Files() after Remove = %v", got)
	}
}

func TestRunReportsWrites(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Skipf("no OS watcher: %v", err)
	}
	defer w.Close()

	dir := t.TempDir()
	src := filepath.Join(dir, "main.ca")
	other := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(src, []byte("fn main() {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Add(src); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan []string, 1)
	go w.Run(ctx, 50*time.Millisecond, func(changed []string) {
		select {
		case got <- changed:
		default:
		}
	})

	if err := os.WriteFile(other, []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("fn main() { }"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case changed := <-got:
		if len(changed) != 1 || changed[0] != src {
			t.Errorf("changed = %v, want [%s]", changed, src)
		}
	case <-ctx.Done():
		t.Fatal("no change reported")
	}
}
