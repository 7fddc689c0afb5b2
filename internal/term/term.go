// Package term answers whether output goes to a terminal, which decides
// whether diagnostics are colored.
package term

import (
	"os"
)

// IsTerminal reports whether f refers to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isTerminal(f)
}

// ColorEnabled resolves a color mode of "always", "never" or "auto" for
// output written to f. In auto mode color requires a terminal and an unset
// NO_COLOR variable.
func ColorEnabled(mode string, f *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return IsTerminal(f)
}
