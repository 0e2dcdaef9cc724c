package main

import (
	"fmt"
	"os"
	"time"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// ANSI colors for the status table. Only used when stdout is a terminal.
const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// colorFor returns the ANSI color escape for an outcome status string.
func colorFor(status string) string {
	switch status {
	case "migrated":
		return colorGreen
	case "skipped", "planned":
		return colorYellow
	case "failed":
		return colorRed
	default:
		return ""
	}
}

// formatTime returns a compact timestamp for display; "-" for the zero time
// (unfinished runs).
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04:05")
}
