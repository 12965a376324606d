package config

import (
	"fmt"
	"io"
	"os"
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	os.Exit(Reportf(os.Stderr, format, args...))
}

// Reportf writes a formatted fatal message to w and returns the exit code
// the process should use.
func Reportf(w io.Writer, format string, args ...any) int {
	fmt.Fprintf(w, format+"\n", args...)
	return 1
}
