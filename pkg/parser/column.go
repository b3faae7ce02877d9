package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

// Hints name the header labels of a column table. Only IDLabel is required;
// a table without NameLabel uses the id as display name.
type Hints struct {
	IDLabel         string
	NameLabel       string
	VersionLabel    string
	NewVersionLabel string
	SourceLabel     string
	// Summary matches trailing lines such as "3 upgrades available." which
	// end the table.
	Summary *regexp.Regexp
}

// Column parses space-aligned tables:
//
//	Name            Id                 Version   Available  Source
//	-------------------------------------------------------------
//	Mozilla Firefox Mozilla.Firefox    126.0     127.0      winget
//
// Column offsets are taken from the header of every run and measured in
// display cells, never hard-coded: widths change with content and locale.
type Column struct {
	hints Hints
}

// NewColumn returns a column grammar. IDLabel defaults to "Id".
func NewColumn(h Hints) Column {
	if h.IDLabel == "" {
		h.IDLabel = "Id"
	}
	return Column{hints: h}
}

// Hints returns the grammar's header labels.
func (c Column) Hints() Hints {
	return c.hints
}

// Start implements Grammar.
func (c Column) Start() Stream {
	return &columnStream{hints: c.hints}
}

type role int

const (
	roleOther role = iota
	roleName
	roleID
	roleVersion
	roleNewVersion
	roleSource
)

type column struct {
	start int
	role  role
}

type layout struct {
	cols    []column
	idIndex int
}

func (l layout) has(r role) bool {
	for _, c := range l.cols {
		if c.role == r {
			return true
		}
	}
	return false
}

// indexAt returns the column a cell offset falls into.
func (l layout) indexAt(cell int) int {
	i := sort.Search(len(l.cols), func(i int) bool { return l.cols[i].start > cell })
	if i == 0 {
		return 0
	}
	return i - 1
}

type columnState int

const (
	seekHeader columnState = iota
	afterHeader
	inRows
	ended
)

type columnStream struct {
	tally
	hints  Hints
	state  columnState
	layout layout
}

func (s *columnStream) Report() Report {
	return s.snapshot()
}

func (s *columnStream) Feed(raw string) (Row, bool) {
	line := Clean(raw)

	if s.state == seekHeader || s.state == ended {
		if l, ok := s.parseHeader(line); ok {
			s.layout = l
			s.state = afterHeader
			s.report.Recognized = true
		}
		return Row{}, false
	}

	if strings.TrimSpace(line) == "" {
		if strings.TrimSpace(ansi.Strip(raw)) != "" {
			// spinner or progress frame
			return Row{}, false
		}
		if s.state == inRows {
			s.state = ended
		}
		return Row{}, false
	}
	if IsSeparator(line) {
		if s.state == inRows {
			s.state = ended
		}
		return Row{}, false
	}
	if s.hints.Summary != nil && s.hints.Summary.MatchString(strings.TrimSpace(line)) {
		s.state = ended
		return Row{}, false
	}
	s.state = inRows

	row, err := s.extract(line)
	if err != nil {
		s.drop(fmt.Sprintf("%v: %q", err, line))
		return Row{}, false
	}
	s.accept()
	return row, true
}

// parseHeader locates the labelled columns plus any unlabelled column that
// starts after a gap of two or more spaces.
func (s *columnStream) parseHeader(line string) (layout, bool) {
	idCell, ok := labelCell(line, s.hints.IDLabel)
	if !ok {
		return layout{}, false
	}
	if s.hints.VersionLabel != "" {
		if _, ok := labelCell(line, s.hints.VersionLabel); !ok {
			return layout{}, false
		}
	}

	starts := map[int]role{idCell: roleID}
	labelled := []struct {
		label string
		role  role
	}{
		{s.hints.NameLabel, roleName},
		{s.hints.VersionLabel, roleVersion},
		{s.hints.NewVersionLabel, roleNewVersion},
		{s.hints.SourceLabel, roleSource},
	}
	for _, l := range labelled {
		if l.label == "" {
			continue
		}
		if cell, ok := labelCell(line, l.label); ok {
			starts[cell] = l.role
		}
	}

	header := newCellLine(line)
	for _, f := range header.split(0, 2) {
		if _, known := starts[f.col]; !known {
			starts[f.col] = roleOther
		}
	}

	var l layout
	for start, r := range starts {
		l.cols = append(l.cols, column{start: start, role: r})
	}
	sort.Slice(l.cols, func(i, j int) bool { return l.cols[i].start < l.cols[j].start })
	for i, c := range l.cols {
		if c.role == roleID {
			l.idIndex = i
		}
	}
	return l, true
}

// extract applies the space-collapsed heuristic first and falls back to
// raw offsets when the name column is ambiguous or the result is invalid.
func (s *columnStream) extract(line string) (Row, error) {
	cl := newCellLine(line)

	if !s.nameHasGaps(cl) {
		if row, ok := s.collapsed(cl); ok {
			return row, nil
		}
	}

	row, err := s.offsets(cl)
	if err != nil {
		return Row{}, err
	}
	return row, nil
}

// nameHasGaps reports whether the text left of the id column still has
// doubled spaces, which the collapsed heuristic would read as a boundary.
func (s *columnStream) nameHasGaps(cl cellLine) bool {
	if s.layout.idIndex == 0 {
		return false
	}
	idStart := s.layout.cols[s.layout.idIndex].start
	left := strings.TrimSpace(string(cl.runes[:cl.at(idStart)]))
	return strings.Contains(left, "  ")
}

// collapsed splits the line on runs of two or more spaces and assigns each
// field to the column its first cell falls into. A field starting one cell
// short of the next column belongs to that column once its own column is
// filled.
func (s *columnStream) collapsed(cl cellLine) (Row, bool) {
	values := make(map[role][]string)
	for _, f := range cl.split(0, 2) {
		i := s.layout.indexAt(f.col)
		if next := i + 1; next < len(s.layout.cols) && s.layout.cols[next].start-f.col == 1 {
			if len(values[s.layout.cols[i].role]) > 0 {
				i = next
			}
		}
		r := s.layout.cols[i].role
		values[r] = append(values[r], f.text)
	}
	row := s.build(values)
	if !s.valid(row) {
		return Row{}, false
	}
	if s.layout.idIndex > 0 && utf8.RuneCountInString(row.ID) == 1 {
		return Row{}, false
	}
	return row, true
}

// offsets re-segments the line from the id column's raw offset. The offset
// is moved back to the start of the token it falls into, so content that
// renders wider than its rune count does not split an id.
func (s *columnStream) offsets(cl cellLine) (Row, error) {
	idStart := s.layout.cols[s.layout.idIndex].start
	pos := cl.at(idStart)
	n := len(cl.runes)
	if pos >= n {
		return Row{}, fmt.Errorf("line ends before id column")
	}
	if cl.runes[pos] == ' ' {
		for pos < n && cl.runes[pos] == ' ' {
			pos++
		}
	} else {
		for pos > 0 && cl.runes[pos-1] != ' ' {
			pos--
		}
	}

	name := Collapse(string(cl.runes[:pos]))
	rest := cl.split(pos, 1)
	rest = joinComparators(rest)
	if len(rest) == 0 {
		return Row{}, fmt.Errorf("no id token")
	}

	// A one-character id is a truncation artifact of the previous column;
	// shift by one token.
	if s.layout.idIndex > 0 && utf8.RuneCountInString(rest[0].text) == 1 && len(rest) > 1 {
		name = Collapse(name + " " + rest[0].text)
		rest = rest[1:]
	}

	values := map[role][]string{
		roleID: {rest[0].text},
	}
	if name != "" {
		values[roleName] = []string{name}
	}
	next := s.layout.idIndex + 1
	for _, f := range rest[1:] {
		i := s.layout.indexAt(f.col)
		if i < next {
			i = next
		}
		if i >= len(s.layout.cols) {
			break
		}
		r := s.layout.cols[i].role
		values[r] = append(values[r], f.text)
		next = i + 1
	}

	row := s.build(values)
	if row.ID == "" || strings.ContainsAny(row.ID, " \t") {
		return Row{}, fmt.Errorf("invalid id %q", row.ID)
	}
	if strings.HasSuffix(row.ID, Ellipsis) {
		return Row{}, fmt.Errorf("truncated id %q", row.ID)
	}
	return row, nil
}

func (s *columnStream) build(values map[role][]string) Row {
	join := func(r role) string { return Collapse(strings.Join(values[r], " ")) }
	row := Row{
		Name:       join(roleName),
		ID:         join(roleID),
		Version:    join(roleVersion),
		NewVersion: join(roleNewVersion),
		Source:     join(roleSource),
	}
	if !s.layout.has(roleName) || row.Name == "" {
		row.Name = row.ID
	}
	return row
}

func (s *columnStream) valid(row Row) bool {
	if row.ID == "" || strings.Contains(row.ID, " ") || strings.HasSuffix(row.ID, Ellipsis) {
		return false
	}
	if s.layout.has(roleVersion) && row.Version == "" {
		return false
	}
	return true
}

// joinComparators glues "<" and ">" to the version that follows, as in
// "< 14.0".
func joinComparators(fields []field) []field {
	out := fields[:0:0]
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		if (f.text == "<" || f.text == ">") && i+1 < len(fields) {
			f.text += " " + fields[i+1].text
			i++
		}
		out = append(out, f)
	}
	return out
}

// labelCell returns the display cell where label starts as a whole word.
func labelCell(line, label string) (int, bool) {
	from := 0
	for {
		i := strings.Index(line[from:], label)
		if i < 0 {
			return 0, false
		}
		i += from
		end := i + len(label)
		before := i == 0 || line[i-1] == ' '
		after := end == len(line) || line[end] == ' '
		if before && after {
			return runewidth.StringWidth(line[:i]), true
		}
		from = end
	}
}

type field struct {
	text string
	col  int
}

// cellLine maps runes to the display cells they start at.
type cellLine struct {
	runes []rune
	cols  []int
}

func newCellLine(s string) cellLine {
	runes := []rune(s)
	cols := make([]int, len(runes)+1)
	w := 0
	for i, r := range runes {
		cols[i] = w
		w += runewidth.RuneWidth(r)
	}
	cols[len(runes)] = w
	return cellLine{runes: runes, cols: cols}
}

// at returns the index of the first rune starting at or after cell.
func (c cellLine) at(cell int) int {
	return sort.SearchInts(c.cols[:len(c.runes)], cell)
}

// split returns the fields starting at rune index from, separated by runs
// of at least minGap spaces.
func (c cellLine) split(from, minGap int) []field {
	var out []field
	n := len(c.runes)
	i := from
	for i < n {
		for i < n && c.runes[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		start := i
		for i < n {
			if c.runes[i] != ' ' {
				i++
				continue
			}
			j := i
			for j < n && c.runes[j] == ' ' {
				j++
			}
			if j-i >= minGap || j == n {
				break
			}
			i = j
		}
		out = append(out, field{text: string(c.runes[start:i]), col: c.cols[start]})
	}
	return out
}
