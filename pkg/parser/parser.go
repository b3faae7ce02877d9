// Package parser turns the console output of package-manager tools into rows.
//
// Every tool prints its own flavor of table or list, so the grammar is a
// pluggable strategy: Column handles space-aligned tables whose header names
// the columns, Delimited handles machine-oriented "a|b|c" style output and
// Pattern handles one-record-per-line formats matched by a regular expression.
// All grammars are incremental: Start returns a Stream that is fed one line at
// a time so rows can be emitted while the tool is still running.
package parser

import (
	"errors"
	"iter"
)

// ErrFormatNotRecognized is reported when a table header could not be found.
var ErrFormatNotRecognized = errors.New("output format not recognized")

// maxDiagnostics bounds the number of diagnostics a single stream retains.
const maxDiagnostics = 64

// Row is one parsed package line. Fields the grammar does not know are empty.
type Row struct {
	Name       string
	ID         string
	Version    string
	NewVersion string
	Source     string
}

// Report summarizes a finished stream.
type Report struct {
	// Recognized is false when the grammar never found the structure it
	// expects (e.g. a table without header). Rows is zero in that case.
	Recognized  bool
	Rows        int
	Dropped     int
	Diagnostics []string
}

// Err returns ErrFormatNotRecognized for unrecognized output, nil otherwise.
func (r Report) Err() error {
	if !r.Recognized {
		return ErrFormatNotRecognized
	}
	return nil
}

// Grammar is an output format. Implementations must be stateless; all state
// lives in the Stream returned by Start.
type Grammar interface {
	Start() Stream
}

// Stream consumes lines and yields rows.
type Stream interface {
	// Feed consumes one raw line. ok is true when the line produced a row.
	Feed(line string) (row Row, ok bool)
	// Report returns the summary of everything fed so far.
	Report() Report
}

// Parse runs a grammar over a complete listing.
func Parse(g Grammar, lines []string) ([]Row, Report) {
	s := g.Start()
	var rows []Row
	for _, line := range lines {
		if row, ok := s.Feed(line); ok {
			rows = append(rows, row)
		}
	}
	return rows, s.Report()
}

// Seq lazily parses lines. The report is available from the returned
// function once the sequence has been fully consumed.
func Seq(g Grammar, lines iter.Seq[string]) (iter.Seq[Row], func() Report) {
	s := g.Start()
	seq := func(yield func(Row) bool) {
		for line := range lines {
			row, ok := s.Feed(line)
			if !ok {
				continue
			}
			if !yield(row) {
				return
			}
		}
	}
	return seq, s.Report
}

// tally is the bookkeeping shared by all streams.
type tally struct {
	report Report
}

func (t *tally) accept() {
	t.report.Rows++
}

func (t *tally) drop(reason string) {
	t.report.Dropped++
	t.note(reason)
}

func (t *tally) note(msg string) {
	if len(t.report.Diagnostics) < maxDiagnostics {
		t.report.Diagnostics = append(t.report.Diagnostics, msg)
	}
}

func (t *tally) snapshot() Report {
	r := t.report
	r.Diagnostics = append([]string(nil), t.report.Diagnostics...)
	return r
}
