package term

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegularFileIsNotATerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if IsTerminal(f) {
		t.Error("regular file reported as terminal")
	}
	if IsTerminal(nil) {
		t.Error("nil file reported as terminal")
	}
}

func TestColorEnabled(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tests := []struct {
		mode string
		want bool
	}{
		{"always", true},
		{"never", false},
		{"auto", false},
	}
	for _, tt := range tests {
		if got := ColorEnabled(tt.mode, f); got != tt.want {
			t.Errorf("ColorEnabled(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}

	t.Setenv("NO_COLOR", "1")
	if ColorEnabled("auto", os.Stderr) {
		t.Error("NO_COLOR ignored")
	}
}
