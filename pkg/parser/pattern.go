package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern parses lines matching a regular expression with named groups
// "id", and optionally "name", "version", "newversion" and "source".
// Lines that do not match are skipped silently.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles expr into a grammar. It panics if expr is invalid or
// lacks an "id" group, like regexp.MustCompile.
func NewPattern(expr string) Pattern {
	re := regexp.MustCompile(expr)
	if re.SubexpIndex("id") < 0 {
		panic(fmt.Sprintf("parser: pattern %q has no id group", expr))
	}
	return Pattern{re: re}
}

// Start implements Grammar.
func (p Pattern) Start() Stream {
	return &patternStream{re: p.re, tally: tally{report: Report{Recognized: true}}}
}

type patternStream struct {
	tally
	re *regexp.Regexp
}

func (s *patternStream) Report() Report {
	return s.snapshot()
}

func (s *patternStream) Feed(raw string) (Row, bool) {
	line := strings.TrimSpace(Clean(raw))
	if line == "" {
		return Row{}, false
	}
	m := s.re.FindStringSubmatch(line)
	if m == nil {
		return Row{}, false
	}
	group := func(name string) string {
		if i := s.re.SubexpIndex(name); i >= 0 {
			return Collapse(m[i])
		}
		return ""
	}
	row := Row{
		ID:         group("id"),
		Name:       group("name"),
		Version:    group("version"),
		NewVersion: group("newversion"),
		Source:     group("source"),
	}
	if row.ID == "" {
		s.drop(fmt.Sprintf("empty id: %q", line))
		return Row{}, false
	}
	if row.Name == "" {
		row.Name = row.ID
	}
	s.accept()
	return row, true
}
