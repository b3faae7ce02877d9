package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"omnipkg/pkg/aggregate"
	"omnipkg/pkg/operation"
)

// View implements tea.Model
func (a *App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.quitting {
		return ""
	}
	if a.showConfirm {
		return a.renderDialog()
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderTabs())
	b.WriteString("\n")
	b.WriteString(a.renderContent())
	b.WriteString(a.renderFooter())
	return b.String()
}

func (a *App) renderHeader() string {
	title := a.styles.Header.Render(" omnipkg ")

	var right string
	switch {
	case a.loading():
		right = a.spinner.View() + " Loading..."
	case a.errorMsg != "":
		right = a.styles.Error.Render(runewidth.Truncate(a.errorMsg, max(a.width/2, 10), "…"))
	case a.successMsg != "":
		right = a.styles.Success.Render(runewidth.Truncate(a.successMsg, max(a.width/2, 10), "…"))
	}

	padding := max(a.width-lipgloss.Width(title)-lipgloss.Width(right)-1, 0)
	return title + strings.Repeat(" ", padding) + right
}

// loading reports whether the visible listing is still streaming.
func (a *App) loading() bool {
	l, ok := a.listings[a.activeView]
	return ok && l.loading
}

func (a *App) renderTabs() string {
	var tabs []string
	for i, tab := range a.tabs {
		style := a.styles.TabInactive
		if i == a.activeTab {
			style = a.styles.TabActive
		}
		name := tab.Name
		switch tab.View {
		case ViewUpdates:
			if n := a.listings[ViewUpdates].set.Len(); n > 0 {
				name = fmt.Sprintf("%s (%d)", name, n)
			}
		case ViewOperations:
			if n := a.running(); n > 0 {
				name = fmt.Sprintf("%s (%d)", name, n)
			}
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("[%d] %s", i+1, name)))
	}
	return lipgloss.NewStyle().
		Width(a.width).
		Background(ColorBgAlt).
		Padding(0, 1).
		Render(strings.Join(tabs, " "))
}

func (a *App) running() int {
	n := 0
	for _, r := range a.ops {
		if r.state != operation.Finished {
			n++
		}
	}
	return n
}

func (a *App) renderContent() string {
	var content string
	switch a.activeView {
	case ViewInstalled:
		content = a.renderPackages(ViewInstalled, "Installed packages")
	case ViewUpdates:
		content = a.renderPackages(ViewUpdates, "Available updates")
	case ViewSearch:
		content = a.renderSearch()
	case ViewOperations:
		content = a.renderOperations()
	case ViewHistory:
		content = a.renderHistory()
	case ViewDetails:
		content = a.renderDetails()
	case ViewHelp:
		content = a.help.FullHelpView(a.keys.FullHelp())
	}
	return lipgloss.NewStyle().
		Width(a.width).
		Height(max(a.height-3, 1)).
		Render(content)
}

func (a *App) renderPackages(v View, title string) string {
	var b strings.Builder
	items := a.Items(v)

	heading := fmt.Sprintf("%s (%d)", title, len(items))
	if a.filterText != "" {
		heading += " - filter: " + a.filterText
	}
	b.WriteString(a.styles.Title.Render(heading))
	b.WriteString("\n")
	b.WriteString(a.renderManagers(v))
	b.WriteString("\n")

	if a.inputMode {
		b.WriteString(a.styles.InputPrompt.Render(a.inputPrompt) + a.textInput.View() + "\n")
	}
	if len(items) == 0 {
		if !a.listings[v].loading {
			b.WriteString(a.styles.Description.Render("No packages"))
		}
		return b.String()
	}

	start := a.Scroll()
	end := min(start+a.VisibleHeight(), len(items))
	nameWidth := max(a.width/3, 16)
	for i := start; i < end; i++ {
		b.WriteString(a.renderItem(items[i], i == a.Cursor(), nameWidth))
		b.WriteString("\n")
	}
	if len(items) > a.VisibleHeight() {
		b.WriteString(a.styles.Description.Render(fmt.Sprintf("  %d/%d", a.Cursor()+1, len(items))))
	}
	return b.String()
}

// renderManagers summarizes how each manager's part of a listing ended.
func (a *App) renderManagers(v View) string {
	finished := a.listings[v].set.Finished()
	if len(finished) == 0 {
		return ""
	}
	var parts []string
	for _, t := range a.managerOrder(finished) {
		ev := finished[t]
		switch ev.Status {
		case aggregate.StatusOK:
			parts = append(parts, a.styles.Success.Render(fmt.Sprintf("%s %d", t, ev.Count)))
		case aggregate.StatusUnsupported, aggregate.StatusUnavailable:
			parts = append(parts, a.styles.Description.Render(t+" "+ev.Status.String()))
		default:
			parts = append(parts, a.styles.Error.Render(t+" "+ev.Status.String()))
		}
	}
	return strings.Join(parts, "  ")
}

func (a *App) managerOrder(finished map[string]aggregate.Event) []string {
	names := make([]string, 0, len(finished))
	for name := range finished {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := a.engine.Rank(names[i]), a.engine.Rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}

func (a *App) renderItem(it item, selected bool, nameWidth int) string {
	cursor := "  "
	name := runewidth.FillRight(runewidth.Truncate(it.pkg.Name, nameWidth, "…"), nameWidth)
	if selected {
		cursor = a.styles.ListItemSelected.String()
		name = a.styles.PackageName.Render(name)
	} else if it.cached {
		name = a.styles.ListItemDim.UnsetPaddingLeft().Render(name)
	}

	version := a.styles.PackageVersion.Render(it.pkg.Version)
	if it.newVersion != "" {
		version += " → " + a.styles.NewVersion.Render(it.newVersion)
	}
	id := ""
	if it.pkg.ID != it.pkg.Name {
		id = a.styles.Description.Render(" " + it.pkg.ID)
	}
	return fmt.Sprintf("%s%s %s %s%s", cursor, name, ManagerBadge(it.pkg.Manager()), version, id)
}

func (a *App) renderSearch() string {
	var b strings.Builder
	switch {
	case a.inputMode:
		b.WriteString(a.styles.InputPrompt.Render(a.inputPrompt))
		b.WriteString(a.textInput.View())
		b.WriteString("\n\n")
	case a.searchQuery == "":
		b.WriteString(a.styles.Title.Render("Search packages"))
		b.WriteString("\n")
		b.WriteString(a.styles.Description.Render("Press / to search"))
		return b.String()
	}
	if a.searchQuery != "" {
		return b.String() + a.renderPackages(ViewSearch, fmt.Sprintf("Results for %q", a.searchQuery))
	}
	return b.String()
}

func (a *App) renderOperations() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render(fmt.Sprintf("Operations (%d running)", a.running())))
	b.WriteString("\n\n")
	if len(a.ops) == 0 {
		b.WriteString(a.styles.Description.Render("Nothing queued. Press i, u or r on a package."))
		return b.String()
	}

	for i, r := range a.ops {
		cursor := "  "
		if i == a.Cursor() {
			cursor = a.styles.ListItemSelected.String()
		}
		var status string
		switch {
		case r.state != operation.Finished:
			status = Progress(r.progress, 20) + " " + a.styles.Info.Render(r.state.String())
		case r.result.Success():
			status = a.styles.Success.Render(r.result.String())
		case r.result.Cancelled:
			status = a.styles.Warning.Render(r.result.String())
		default:
			status = a.styles.Error.Render(r.result.String())
		}
		fmt.Fprintf(&b, "%s%-9s %s %s  %s\n", cursor, r.kind, a.styles.PackageName.Render(r.pkg), ManagerBadge(r.manager), status)
		if r.last != "" && r.state != operation.Finished {
			b.WriteString(a.styles.Description.Render("    " + runewidth.Truncate(r.last, max(a.width-6, 10), "…")))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (a *App) renderHistory() string {
	var b strings.Builder
	b.WriteString(a.styles.Title.Render("Operation history"))
	b.WriteString("\n\n")
	if len(a.entries) == 0 {
		b.WriteString(a.styles.Description.Render("No history entries"))
		return b.String()
	}

	start := a.Scroll()
	end := min(start+a.VisibleHeight(), len(a.entries))
	for i := start; i < end; i++ {
		e := a.entries[i]
		cursor := "  "
		if i == a.Cursor() {
			cursor = a.styles.ListItemSelected.String()
		}
		status := a.styles.Success.Render(e.Status())
		if !e.Success {
			status = a.styles.Error.Render(e.Status())
		}
		fmt.Fprintf(&b, "%s%s  %-9s %-40s %s  %s\n", cursor, e.Timestamp.Format("2006-01-02 15:04"), e.Kind,
			runewidth.Truncate(e.Package, 40, "…"), ManagerBadge(e.Manager), status)
	}
	return b.String()
}

func (a *App) renderDetails() string {
	if a.selected == nil {
		return a.styles.Error.Render("No package selected")
	}
	if a.details == "" {
		return a.spinner.View() + " Loading details of " + a.selected.pkg.ID
	}
	heading := a.styles.Subtitle.Render(a.selected.pkg.Name) + " " + ManagerBadge(a.selected.pkg.Manager())
	lines := append([]string{heading}, strings.Split(a.details, "\n")...)
	if h := a.height - 4; h > 0 && len(lines) > h {
		lines = lines[:h]
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderFooter() string {
	var hints []string
	switch a.activeView {
	case ViewInstalled:
		hints = []string{"u:update", "r:uninstall", "f:filter", "R:reload", "enter:details"}
	case ViewUpdates:
		hints = []string{"u:update", "R:reload", "enter:details"}
	case ViewSearch:
		hints = []string{"i:install", "/:search", "enter:details"}
	case ViewOperations:
		hints = []string{"x:cancel"}
	case ViewDetails:
		hints = []string{"i:install", "u:update", "r:uninstall", "esc:back"}
	case ViewHistory:
		hints = []string{"R:reload"}
	}
	hints = append(hints, "?:help", "q:quit")

	parts := make([]string, len(hints))
	for i, h := range hints {
		k, desc, _ := strings.Cut(h, ":")
		parts[i] = a.styles.HelpKey.Render(k) + a.styles.HelpSep.String() + a.styles.HelpDesc.Render(desc)
	}
	return a.styles.Footer.Width(a.width).Render(strings.Join(parts, "  "))
}

func (a *App) renderDialog() string {
	dialog := a.styles.Dialog.Render(
		a.styles.DialogTitle.Render(a.confirmTitle) + "\n\n" +
			a.styles.DialogButton.Render("[Y]es") + " " +
			lipgloss.NewStyle().Foreground(ColorMuted).Render("[N]o"),
	)
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, dialog,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(ColorBg))
}
