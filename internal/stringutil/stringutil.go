// Package stringutil holds the line helpers used to turn captured console output into a status string.
package stringutil

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// IsNoneOrEmpty reports whether s is nil or has a length of 0.
func IsNoneOrEmpty(s *string) bool {
	return s == nil || len(*s) == 0
}

// RemoveANSICodes strips terminal escape sequences (colors, cursor movement) from text.
func RemoveANSICodes(text string) string {
	if text == "" {
		return ""
	}

	return ansi.Strip(text)
}

// NonEmptyLines splits text into lines, removes ANSI codes and surrounding
// whitespace from each one and drops the lines left blank.
func NonEmptyLines(text string) []string {
	if text == "" {
		return nil
	}

	var lines []string

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(RemoveANSICodes(line))
		if line == "" {
			continue
		}

		lines = append(lines, line)
	}

	return lines
}

// FirstLine returns the first non-blank line of text, or "" if there is none.
func FirstLine(text string) string {
	lines := NonEmptyLines(text)
	if len(lines) == 0 {
		return ""
	}

	return lines[0]
}

// LastLine returns the last non-blank line of text, or "" if there is none.
func LastLine(text string) string {
	lines := NonEmptyLines(text)
	if len(lines) == 0 {
		return ""
	}

	return lines[len(lines)-1]
}
