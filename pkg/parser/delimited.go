package parser

import (
	"fmt"
	"strings"
)

// Delimited parses one record per line with a fixed separator, such as
// chocolatey's "--limit-output" ("7zip|23.1.0") or flatpak's tab-separated
// columns. Lines without the separator (banners, summaries) are skipped.
//
// Field positions are zero-based; -1 marks a field the format does not carry.
type Delimited struct {
	Sep        string
	ID         int
	Name       int
	Version    int
	NewVersion int
	Source     int
	// MinFields is the fewest fields a record may have; defaults to ID+1.
	MinFields int
}

// NewDelimited returns a grammar for "id<sep>version" records.
func NewDelimited(sep string) Delimited {
	return Delimited{Sep: sep, ID: 0, Name: -1, Version: 1, NewVersion: -1, Source: -1}
}

// Start implements Grammar.
func (d Delimited) Start() Stream {
	return &delimitedStream{grammar: d, tally: tally{report: Report{Recognized: true}}}
}

type delimitedStream struct {
	tally
	grammar Delimited
}

func (s *delimitedStream) Report() Report {
	return s.snapshot()
}

func (s *delimitedStream) Feed(raw string) (Row, bool) {
	d := s.grammar
	line := clean(raw, true)
	if strings.TrimSpace(line) == "" || !strings.Contains(line, d.Sep) {
		return Row{}, false
	}

	parts := strings.Split(line, d.Sep)
	want := d.MinFields
	if want == 0 {
		want = d.ID + 1
	}
	if len(parts) < want {
		s.drop(fmt.Sprintf("expected %d fields, got %d: %q", want, len(parts), line))
		return Row{}, false
	}

	at := func(i int) string {
		if i < 0 || i >= len(parts) {
			return ""
		}
		return Collapse(parts[i])
	}
	row := Row{
		ID:         at(d.ID),
		Name:       at(d.Name),
		Version:    at(d.Version),
		NewVersion: at(d.NewVersion),
		Source:     at(d.Source),
	}
	if row.ID == "" || strings.Contains(row.ID, " ") {
		s.drop(fmt.Sprintf("invalid id %q: %q", row.ID, line))
		return Row{}, false
	}
	if row.Name == "" {
		row.Name = row.ID
	}
	s.accept()
	return row, true
}
