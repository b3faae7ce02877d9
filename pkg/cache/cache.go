// Package cache persists the last successful listing of each manager and
// merges it with fresh listings.
//
// Every manager owns one flat text file, one record per line. Records are
// written in a canonical "id|version|name" form so a cached listing can be
// re-read without the column header the tool printed with it. The file's
// modification time is the listing's refresh time.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"omnipkg/pkg/parser"
)

const fileExt = ".txt"

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Entry is one manager's cached listing.
type Entry struct {
	Manager     string
	Lines       []string
	RefreshedAt time.Time
}

// Empty reports whether nothing is cached.
func (e Entry) Empty() bool {
	return len(e.Lines) == 0
}

// Rows decodes the entry. Lines that do not decode are skipped.
func (e Entry) Rows() []parser.Row {
	rows := make([]parser.Row, 0, len(e.Lines))
	for _, line := range e.Lines {
		if row, ok := DecodeRow(line); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// Store reads and writes cache files in one directory. Writes for the same
// manager are serialized; different managers never wait on each other.
type Store struct {
	dir    string
	logger *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a store rooted at dir. The directory is created on first save.
func New(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Dir returns the cache directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the cache file of a manager.
func (s *Store) Path(manager string) string {
	return filepath.Join(s.dir, manager+fileExt)
}

func (s *Store) lock(manager string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[manager]
	if !ok {
		l = &sync.Mutex{}
		s.locks[manager] = l
	}
	return l
}

// Load returns the cached listing of a manager. A missing or unreadable
// file yields an empty entry; read errors are logged, not returned.
func (s *Store) Load(manager string) Entry {
	entry := Entry{Manager: manager}
	if !validName.MatchString(manager) {
		s.logger.Warn("invalid cache name", "manager", manager)
		return entry
	}

	f, err := os.Open(s.Path(manager))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache unreadable", "manager", manager, "err", err)
		}
		return entry
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.logger.Warn("cache unreadable", "manager", manager, "err", err)
		return entry
	}

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("cache unreadable", "manager", manager, "err", err)
		return entry
	}

	entry.Lines = lines
	entry.RefreshedAt = info.ModTime()
	return entry
}

// Save atomically replaces a manager's cache file.
func (s *Store) Save(manager string, lines []string) error {
	l := s.lock(manager)
	l.Lock()
	defer l.Unlock()
	return s.write(manager, lines)
}

// Update merges fresh lines into the cached listing and saves the result,
// as one step under the manager's lock. It returns the merged lines.
func (s *Store) Update(manager string, fresh []string) ([]string, error) {
	l := s.lock(manager)
	l.Lock()
	defer l.Unlock()

	merged := Merge(s.Load(manager).Lines, fresh)
	if err := s.write(manager, merged); err != nil {
		return merged, err
	}
	return merged, nil
}

// Forget drops the records of ids from a manager's cached listing, e.g.
// after they were uninstalled. A missing cache is left alone.
func (s *Store) Forget(manager string, ids ...string) error {
	l := s.lock(manager)
	l.Lock()
	defer l.Unlock()

	entry := s.Load(manager)
	if entry.Empty() {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id+"|"] = true
	}
	kept := entry.Lines[:0]
	for _, line := range entry.Lines {
		if !drop[key(line)] {
			kept = append(kept, line)
		}
	}
	if len(kept) == len(entry.Lines) {
		return nil
	}
	return s.write(manager, kept)
}

func (s *Store) write(manager string, lines []string) error {
	if !validName.MatchString(manager) {
		return fmt.Errorf("invalid cache name %q", manager)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, manager+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp cache: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.WriteString(line) //nolint:errcheck
		w.WriteByte('\n')   //nolint:errcheck
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp cache: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(manager)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing cache: %w", err)
	}
	s.logger.Debug("cache saved", "manager", manager, "lines", len(lines))
	return nil
}

// Clear deletes a manager's cache file.
func (s *Store) Clear(manager string) error {
	l := s.lock(manager)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.Path(manager)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ClearAll deletes every cache file in the directory.
func (s *Store) ClearAll() error {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+fileExt))
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		name := strings.TrimSuffix(filepath.Base(m), fileExt)
		if err := s.Clear(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Merge keeps every fresh line and appends each old line whose identifier
// no fresh line starts with. Old lines keep their order after the fresh
// ones, so packages a partial run missed are not lost.
func Merge(old, fresh []string) []string {
	seen := make(map[string]bool, len(fresh))
	merged := make([]string, 0, len(fresh)+len(old))
	for _, line := range fresh {
		seen[key(line)] = true
		merged = append(merged, line)
	}
	for _, line := range old {
		if !seen[key(line)] {
			merged = append(merged, line)
		}
	}
	return merged
}

// key is the identifying prefix of a record: the id and its separator.
func key(line string) string {
	id, _, _ := strings.Cut(line, "|")
	return id + "|"
}

// EncodeRow renders a row as "id|version|name".
func EncodeRow(r parser.Row) string {
	return r.ID + "|" + r.Version + "|" + r.Name
}

// DecodeRow parses a line written by EncodeRow.
func DecodeRow(line string) (parser.Row, bool) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) < 2 || parts[0] == "" {
		return parser.Row{}, false
	}
	row := parser.Row{ID: parts[0], Version: parts[1], Name: parts[0]}
	if len(parts) == 3 && parts[2] != "" {
		row.Name = parts[2]
	}
	return row, true
}

// EncodeRows renders rows in order.
func EncodeRows(rows []parser.Row) []string {
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = EncodeRow(r)
	}
	return lines
}
