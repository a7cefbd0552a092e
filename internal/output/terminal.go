package output

import (
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// NoColor reports whether colors should be disabled for f.
func NoColor(f *os.File, forced bool) bool {
	return forced || os.Getenv("NO_COLOR") != "" || !IsTerminal(f)
}
