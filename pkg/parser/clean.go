package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Ellipsis is what tools print in place of truncated column content.
const Ellipsis = "…"

// Clean normalizes one console line: ANSI sequences and control characters
// are removed, invalid UTF-8 is replaced and trailing space is trimmed.
// Lines that only draw a spinner or a progress bar come back empty.
// Tabs are turned into spaces.
func Clean(line string) string {
	return clean(line, false)
}

func clean(line string, keepTabs bool) string {
	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, "�")
	}
	if i := strings.LastIndexByte(line, '\r'); i >= 0 {
		line = line[i+1:]
	}
	line = ansi.Strip(line)
	line = strings.Map(func(r rune) rune {
		switch {
		case r == '\t' && keepTabs:
			return r
		case r == '\t':
			return ' '
		case r == '\uFEFF':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, line)
	line = strings.TrimRight(line, " ")
	if isSpinner(line) || isProgressBar(line) {
		return ""
	}
	return line
}

// isSpinner reports lines made only of spinner glyphs.
func isSpinner(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > 2 {
		return false
	}
	return strings.Trim(trimmed, `-\|/`) == ""
}

// isProgressBar reports lines drawn with block glyphs, like
// "  ██████████▒▒▒▒▒▒  12.0 MB / 20.0 MB".
func isProgressBar(line string) bool {
	return strings.ContainsAny(line, "█▒░▓")
}

// Collapse trims s and replaces every run of whitespace with one space.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IsSeparator reports lines made of dashes (and spaces), like the rule
// under a table header.
func IsSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 3 {
		return false
	}
	return strings.Trim(trimmed, "- ") == ""
}
