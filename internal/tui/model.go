package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"omnipkg/internal/history"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/operation"
)

// Engine is what the TUI needs from the package engine.
type Engine interface {
	ListInstalled(ctx context.Context, sources ...string) (<-chan aggregate.Event, error)
	ListUpgradable(ctx context.Context, sources ...string) (<-chan aggregate.Event, error)
	Search(ctx context.Context, query string, sources ...string) (<-chan aggregate.Event, error)
	GetInfo(ctx context.Context, id, managerName string) (*manager.PackageDetails, error)
	Execute(ctx context.Context, kind manager.OperationKind, id, managerName string, opts manager.Options) (*operation.Handle, error)
	Cancel(id string) error
	Rank(managerName string) int
}

// History lists recorded operations.
type History interface {
	List(limit int) ([]history.Entry, error)
}

// View represents different views in the TUI
type View int

const (
	ViewInstalled View = iota
	ViewUpdates
	ViewSearch
	ViewOperations
	ViewHistory
	ViewDetails
	ViewHelp
)

// Tab represents a navigable tab
type Tab struct {
	Name string
	View View
}

// DefaultTabs returns the default tab configuration
func DefaultTabs() []Tab {
	return []Tab{
		{Name: "Installed", View: ViewInstalled},
		{Name: "Updates", View: ViewUpdates},
		{Name: "Search", View: ViewSearch},
		{Name: "Operations", View: ViewOperations},
		{Name: "History", View: ViewHistory},
	}
}

// item is one row of a package listing.
type item struct {
	pkg        manager.Package
	newVersion string
	cached     bool
}

// listing is the state of one streamed query. gen tells the events of the
// current stream from those of a replaced one.
type listing struct {
	set     *aggregate.ResultSet
	gen     int
	loading bool
	cancel  context.CancelFunc
}

// opRow tracks one submitted operation.
type opRow struct {
	id       string
	kind     manager.OperationKind
	pkg      string
	manager  string
	state    operation.State
	progress int
	last     string
	result   operation.Result
}

// Model holds the application state
type Model struct {
	ready    bool
	quitting bool

	width  int
	height int

	tabs       []Tab
	activeTab  int
	activeView View
	prevView   View

	engine   Engine
	history  History
	sources  []string
	listings map[View]*listing
	ops      []*opRow
	entries  []history.Entry

	selected *item
	details  string

	errorMsg     string
	successMsg   string
	filterText   string
	searchQuery  string
	inputMode    bool
	inputPrompt  string
	inputValue   string
	inputHandler func(string) tea.Cmd

	cursors map[View]int
	scrolls map[View]int

	styles *Styles
	keys   KeyMap

	showConfirm   bool
	confirmTitle  string
	confirmAction func() tea.Cmd
}

// NewModel creates a new TUI model. sources restricts the listings to some
// managers; none means every enabled one.
func NewModel(engine Engine, hist History, sources []string) *Model {
	m := &Model{
		tabs:       DefaultTabs(),
		activeView: ViewInstalled,
		engine:     engine,
		history:    hist,
		sources:    sources,
		listings:   make(map[View]*listing),
		cursors:    make(map[View]int),
		scrolls:    make(map[View]int),
		styles:     DefaultStyles(),
		keys:       DefaultKeyMap(),
	}
	for _, v := range []View{ViewInstalled, ViewUpdates, ViewSearch} {
		m.listings[v] = &listing{set: aggregate.NewResultSet(engine.Rank)}
	}
	return m
}

// SetSize sets the terminal size
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Cursor returns the cursor position for the current view
func (m *Model) Cursor() int {
	return m.cursors[m.activeView]
}

// SetCursor sets the cursor position for the current view
func (m *Model) SetCursor(pos int) {
	m.cursors[m.activeView] = pos
}

// Scroll returns the scroll offset for the current view
func (m *Model) Scroll() int {
	return m.scrolls[m.activeView]
}

// SetScroll sets the scroll offset for the current view
func (m *Model) SetScroll(offset int) {
	m.scrolls[m.activeView] = offset
}

// VisibleHeight returns the height available for list content
func (m *Model) VisibleHeight() int {
	// header, tabs, title, status line, footer
	return max(m.height-8, 1)
}

// Items returns the package rows of a listing view, filtered.
func (m *Model) Items(v View) []item {
	l, ok := m.listings[v]
	if !ok {
		return nil
	}
	var items []item
	if v == ViewSearch {
		for _, p := range l.set.Ranked(m.searchQuery) {
			items = append(items, item{pkg: p})
		}
	} else {
		for _, ev := range l.set.Events() {
			items = append(items, item{pkg: ev.Package, newVersion: ev.NewVersion, cached: ev.Cached})
		}
	}
	if m.filterText == "" || v == ViewSearch {
		return items
	}
	filter := strings.ToLower(m.filterText)
	var out []item
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.pkg.Name), filter) || strings.Contains(strings.ToLower(it.pkg.ID), filter) {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the number of rows in the current view.
func (m *Model) Len() int {
	switch m.activeView {
	case ViewOperations:
		return len(m.ops)
	case ViewHistory:
		return len(m.entries)
	}
	return len(m.Items(m.activeView))
}

// Selected returns the package under the cursor.
func (m *Model) Selected() *item {
	items := m.Items(m.activeView)
	if c := m.Cursor(); c >= 0 && c < len(items) {
		return &items[c]
	}
	return nil
}

// SelectedOp returns the operation under the cursor.
func (m *Model) SelectedOp() *opRow {
	if m.activeView != ViewOperations {
		return nil
	}
	if c := m.Cursor(); c >= 0 && c < len(m.ops) {
		return m.ops[c]
	}
	return nil
}

// MoveCursor moves the cursor by delta, clamping to valid range
func (m *Model) MoveCursor(delta int) {
	n := m.Len()
	if n == 0 {
		return
	}
	pos := min(max(m.Cursor()+delta, 0), n-1)
	m.SetCursor(pos)

	visible := m.VisibleHeight()
	scroll := m.Scroll()
	if pos < scroll {
		m.SetScroll(pos)
	} else if pos >= scroll+visible {
		m.SetScroll(pos - visible + 1)
	}
}

// GoToTop moves cursor to the top
func (m *Model) GoToTop() {
	m.SetCursor(0)
	m.SetScroll(0)
}

// GoToBottom moves cursor to the bottom
func (m *Model) GoToBottom() {
	n := m.Len()
	if n == 0 {
		return
	}
	m.SetCursor(n - 1)
	if visible := m.VisibleHeight(); n > visible {
		m.SetScroll(n - visible)
	}
}

// clampCursor keeps the cursor inside a list that shrank.
func (m *Model) clampCursor() {
	if n := m.Len(); m.Cursor() >= n {
		m.SetCursor(max(n-1, 0))
		m.SetScroll(0)
	}
}

// NextTab switches to the next tab
func (m *Model) NextTab() {
	m.SetTab((m.activeTab + 1) % len(m.tabs))
}

// PrevTab switches to the previous tab
func (m *Model) PrevTab() {
	m.SetTab((m.activeTab + len(m.tabs) - 1) % len(m.tabs))
}

// SetTab switches to a specific tab by index
func (m *Model) SetTab(index int) {
	if index >= 0 && index < len(m.tabs) {
		m.activeTab = index
		m.activeView = m.tabs[index].View
	}
}

// GoBack returns to the previous view
func (m *Model) GoBack() {
	if m.activeView == ViewDetails || m.activeView == ViewHelp {
		m.activeView = m.prevView
	}
}

// SetError sets an error message
func (m *Model) SetError(msg string) {
	m.errorMsg = msg
	m.successMsg = ""
}

// SetSuccess sets a success message
func (m *Model) SetSuccess(msg string) {
	m.successMsg = msg
	m.errorMsg = ""
}

// ClearMessages clears all messages
func (m *Model) ClearMessages() {
	m.errorMsg = ""
	m.successMsg = ""
}

// StartInput starts input mode
func (m *Model) StartInput(prompt string, handler func(string) tea.Cmd) {
	m.inputMode = true
	m.inputPrompt = prompt
	m.inputValue = ""
	m.inputHandler = handler
}

// FinishInput leaves input mode and runs the handler with the value.
func (m *Model) FinishInput() tea.Cmd {
	handler, value := m.inputHandler, m.inputValue
	m.CancelInput()
	if handler == nil {
		return nil
	}
	return handler(value)
}

// CancelInput cancels input mode
func (m *Model) CancelInput() {
	m.inputMode = false
	m.inputPrompt = ""
	m.inputValue = ""
	m.inputHandler = nil
}

// ShowConfirm shows a confirmation dialog
func (m *Model) ShowConfirm(title string, action func() tea.Cmd) {
	m.showConfirm = true
	m.confirmTitle = title
	m.confirmAction = action
}

// ConfirmYes runs the confirmed action.
func (m *Model) ConfirmYes() tea.Cmd {
	action := m.confirmAction
	m.ConfirmNo()
	if action != nil {
		return action()
	}
	return nil
}

// ConfirmNo cancels the confirmation
func (m *Model) ConfirmNo() {
	m.showConfirm = false
	m.confirmTitle = ""
	m.confirmAction = nil
}

// trackOp adds a submitted operation to the Operations tab.
func (m *Model) trackOp(h *operation.Handle) *opRow {
	op := h.Snapshot()
	row := &opRow{id: op.ID, kind: op.Kind, pkg: op.PackageID, manager: op.Manager, state: op.State}
	m.ops = append(m.ops, row)
	return row
}

func (m *Model) op(id string) *opRow {
	for _, r := range m.ops {
		if r.id == id {
			return r
		}
	}
	return nil
}

// applyOpEvent folds an operation event into its row.
func (m *Model) applyOpEvent(ev operation.Event) *opRow {
	row := m.op(ev.ID)
	if row == nil {
		return nil
	}
	switch ev.Type {
	case operation.EventRunning:
		row.state = operation.Running
	case operation.EventLine:
		if line := strings.TrimSpace(ev.Line); line != "" {
			row.last = line
		}
	case operation.EventProgress:
		row.progress = ev.Progress
	case operation.EventDone:
		row.state = operation.Finished
		row.progress = ev.Progress
		row.result = ev.Result
	}
	return row
}
