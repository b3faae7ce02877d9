package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"omnipkg/internal/history"
	"omnipkg/internal/ui"
	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/manager"
	"omnipkg/pkg/operation"
)

const historyLimit = 100

// Messages for async work
type (
	// listEventMsg is one event of a listing stream. ok is false once the
	// stream is closed.
	listEventMsg struct {
		view View
		gen  int
		ev   aggregate.Event
		ok   bool
		ch   <-chan aggregate.Event
	}

	listErrMsg struct {
		view View
		err  error
	}

	opEventMsg struct {
		ev operation.Event
		ok bool
		ch <-chan operation.Event
	}

	detailsMsg struct {
		details *manager.PackageDetails
		err     error
	}

	historyLoadedMsg struct {
		entries []history.Entry
		err     error
	}
)

// App wraps the Model with bubbletea components
type App struct {
	*Model
	ctx       context.Context
	spinner   spinner.Model
	textInput textinput.Model
	help      help.Model
}

// NewApp creates a new TUI application. ctx bounds every query and
// operation the app starts.
func NewApp(ctx context.Context, engine Engine, hist History, sources []string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	ti := textinput.New()
	ti.Placeholder = "Type to search..."
	ti.CharLimit = 100
	ti.Width = 40

	return &App{
		Model:     NewModel(engine, hist, sources),
		ctx:       ctx,
		spinner:   sp,
		textInput: ti,
		help:      help.New(),
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.load(ViewInstalled),
		a.load(ViewUpdates),
		a.loadHistory(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetSize(msg.Width, msg.Height)
		a.help.Width = msg.Width
		a.ready = true

	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case listEventMsg:
		l := a.listings[msg.view]
		if msg.gen != l.gen {
			return a, nil
		}
		if !msg.ok {
			l.loading = false
			a.reportListing(msg.view)
			return a, nil
		}
		l.set.Add(msg.ev)
		return a, nextListEvent(msg.view, msg.gen, msg.ch)

	case listErrMsg:
		a.listings[msg.view].loading = false
		a.SetError(msg.err.Error())

	case opEventMsg:
		if !msg.ok {
			return a, nil
		}
		row := a.applyOpEvent(msg.ev)
		var cmds []tea.Cmd
		if msg.ev.Type == operation.EventDone && row != nil {
			cmds = append(cmds, a.opFinished(row)...)
		}
		cmds = append(cmds, nextOpEvent(msg.ch))
		return a, tea.Batch(cmds...)

	case detailsMsg:
		if msg.err != nil {
			a.SetError(msg.err.Error())
			return a, nil
		}
		a.details = a.renderMarkdown(ui.DetailsMarkdown(msg.details))

	case historyLoadedMsg:
		if msg.err != nil {
			a.SetError(msg.err.Error())
		} else {
			a.entries = msg.entries
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if a.showConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			return a.ConfirmYes()
		case "n", "N", "esc", "q":
			a.ConfirmNo()
		}
		return nil
	}

	if a.inputMode {
		switch msg.String() {
		case "enter":
			a.inputValue = a.textInput.Value()
			a.textInput.Blur()
			return a.FinishInput()
		case "esc":
			a.textInput.Blur()
			a.CancelInput()
			return nil
		}
		var cmd tea.Cmd
		a.textInput, cmd = a.textInput.Update(msg)
		a.inputValue = a.textInput.Value()
		return cmd
	}

	for i, b := range a.keys.Tabs {
		if key.Matches(msg, b) {
			a.SetTab(i)
			if a.activeView == ViewSearch && a.searchQuery == "" {
				return a.startSearch()
			}
			return nil
		}
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		a.quitting = true
		for _, l := range a.listings {
			if l.cancel != nil {
				l.cancel()
			}
		}
		return tea.Quit

	case key.Matches(msg, a.keys.Help):
		if a.activeView == ViewHelp {
			a.GoBack()
		} else {
			a.prevView = a.activeView
			a.activeView = ViewHelp
		}

	case key.Matches(msg, a.keys.Left):
		a.PrevTab()
	case key.Matches(msg, a.keys.Right):
		a.NextTab()
	case key.Matches(msg, a.keys.Back):
		a.GoBack()
		a.ClearMessages()

	case key.Matches(msg, a.keys.Up):
		a.MoveCursor(-1)
	case key.Matches(msg, a.keys.Down):
		a.MoveCursor(1)
	case key.Matches(msg, a.keys.PageUp):
		a.MoveCursor(-a.VisibleHeight())
	case key.Matches(msg, a.keys.PageDown):
		a.MoveCursor(a.VisibleHeight())
	case key.Matches(msg, a.keys.Home):
		a.GoToTop()
	case key.Matches(msg, a.keys.End):
		a.GoToBottom()

	case key.Matches(msg, a.keys.Enter):
		return a.showDetails()
	case key.Matches(msg, a.keys.Search):
		a.SetTab(slices.IndexFunc(a.tabs, func(t Tab) bool { return t.View == ViewSearch }))
		return a.startSearch()
	case key.Matches(msg, a.keys.Filter):
		return a.startFilter()
	case key.Matches(msg, a.keys.Refresh):
		switch a.activeView {
		case ViewInstalled, ViewUpdates, ViewSearch:
			return a.load(a.activeView)
		case ViewHistory:
			return a.loadHistory()
		}

	case key.Matches(msg, a.keys.Install):
		return a.confirmOperation(manager.Install)
	case key.Matches(msg, a.keys.Uninstall):
		return a.confirmOperation(manager.Uninstall)
	case key.Matches(msg, a.keys.Update):
		return a.confirmOperation(manager.Update)
	case key.Matches(msg, a.keys.CancelOp):
		if row := a.SelectedOp(); row != nil && row.state != operation.Finished {
			if err := a.engine.Cancel(row.id); err != nil {
				a.SetError(err.Error())
			}
		}
	}
	return nil
}

// subject returns the package an action applies to: the open details or
// the row under the cursor.
func (a *App) subject() *item {
	if a.activeView == ViewDetails {
		return a.selected
	}
	return a.Selected()
}

func (a *App) confirmOperation(kind manager.OperationKind) tea.Cmd {
	it := a.subject()
	if it == nil {
		return nil
	}
	p := it.pkg
	a.ShowConfirm(fmt.Sprintf("%s %s with %s?", titleCase(kind.String()), p.ID, p.Manager()), func() tea.Cmd {
		return a.execute(kind, p)
	})
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (a *App) execute(kind manager.OperationKind, p manager.Package) tea.Cmd {
	h, err := a.engine.Execute(a.ctx, kind, p.ID, p.Manager(), manager.Options{})
	if err != nil {
		a.SetError(err.Error())
		return nil
	}
	a.trackOp(h)
	a.SetSuccess(fmt.Sprintf("Queued %s of %s", kind, p.ID))
	return nextOpEvent(h.Events())
}

// opFinished reports a finished operation and reloads what it changed.
func (a *App) opFinished(row *opRow) []tea.Cmd {
	if !row.result.Success() {
		a.SetError(fmt.Sprintf("%s %s: %s", row.kind, row.pkg, row.result))
		return []tea.Cmd{a.loadHistory()}
	}
	a.SetSuccess(fmt.Sprintf("%s %s: %s", row.kind, row.pkg, row.result))
	return []tea.Cmd{a.load(ViewInstalled), a.load(ViewUpdates), a.loadHistory()}
}

// reportListing surfaces managers that failed to answer a listing.
func (a *App) reportListing(v View) {
	var failed []string
	for name, ev := range a.listings[v].set.Finished() {
		if ev.Status != aggregate.StatusOK && ev.Status != aggregate.StatusUnsupported && ev.Status != aggregate.StatusUnavailable {
			failed = append(failed, fmt.Sprintf("%s %s", name, ev.Status))
		}
	}
	a.clampCursor()
	if len(failed) > 0 {
		slices.Sort(failed)
		a.SetError(strings.Join(failed, ", "))
	}
}

func (a *App) showDetails() tea.Cmd {
	switch a.activeView {
	case ViewInstalled, ViewUpdates, ViewSearch:
	default:
		return nil
	}
	it := a.Selected()
	if it == nil {
		return nil
	}
	a.selected = it
	a.details = ""
	a.prevView = a.activeView
	a.activeView = ViewDetails

	ctx, id, mgr := a.ctx, it.pkg.ID, it.pkg.Manager()
	return func() tea.Msg {
		d, err := a.engine.GetInfo(ctx, id, mgr)
		return detailsMsg{details: d, err: err}
	}
}

func (a *App) renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(a.width-4, 20)))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (a *App) startSearch() tea.Cmd {
	a.textInput.SetValue(a.searchQuery)
	a.StartInput("Search: ", func(query string) tea.Cmd {
		query = strings.TrimSpace(query)
		if query == "" {
			return nil
		}
		a.searchQuery = query
		return a.load(ViewSearch)
	})
	return a.textInput.Focus()
}

func (a *App) startFilter() tea.Cmd {
	a.textInput.SetValue(a.filterText)
	a.StartInput("Filter: ", func(filter string) tea.Cmd {
		a.filterText = filter
		a.SetCursor(0)
		a.SetScroll(0)
		return nil
	})
	return a.textInput.Focus()
}

// Async commands

// load starts a fresh listing for v, abandoning any stream still running
// for it.
func (a *App) load(v View) tea.Cmd {
	l := a.listings[v]
	if l.cancel != nil {
		l.cancel()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	l.cancel = cancel
	l.gen++
	l.set = aggregate.NewResultSet(a.engine.Rank)
	l.loading = true

	var (
		ch  <-chan aggregate.Event
		err error
	)
	switch v {
	case ViewInstalled:
		ch, err = a.engine.ListInstalled(ctx, a.sources...)
	case ViewUpdates:
		ch, err = a.engine.ListUpgradable(ctx, a.sources...)
	case ViewSearch:
		ch, err = a.engine.Search(ctx, a.searchQuery, a.sources...)
	}
	if err != nil {
		return func() tea.Msg { return listErrMsg{view: v, err: err} }
	}
	return nextListEvent(v, l.gen, ch)
}

func nextListEvent(v View, gen int, ch <-chan aggregate.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return listEventMsg{view: v, gen: gen, ev: ev, ok: ok, ch: ch}
	}
}

func nextOpEvent(ch <-chan operation.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		return opEventMsg{ev: ev, ok: ok, ch: ch}
	}
}

func (a *App) loadHistory() tea.Cmd {
	if a.history == nil {
		return nil
	}
	hist := a.history
	return func() tea.Msg {
		entries, err := hist.List(historyLimit)
		return historyLoadedMsg{entries: entries, err: err}
	}
}

// Run starts the TUI application
func Run(ctx context.Context, engine Engine, hist History, sources []string) error {
	p := tea.NewProgram(NewApp(ctx, engine, hist, sources), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
