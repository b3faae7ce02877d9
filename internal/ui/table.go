package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"

	"omnipkg/pkg/manager"
)

const maxName = 48

// Table wraps tabwriter for consistent styling.
type Table struct {
	writer  *tabwriter.Writer
	headers []string
}

// NewTable creates a table writing to w.
func NewTable(w io.Writer, headers ...string) *Table {
	return &Table{
		writer:  tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		headers: headers,
	}
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	if len(t.headers) > 0 {
		row := make([]string, len(t.headers))
		for i, h := range t.headers {
			row[i] = Bold(strings.ToUpper(h))
		}
		fmt.Fprintln(t.writer, strings.Join(row, "\t"))
		t.headers = nil
	}
	fmt.Fprintln(t.writer, strings.Join(cells, "\t"))
}

// Render flushes the table.
func (t *Table) Render() {
	t.writer.Flush()
}

// Truncate shortens s to n display cells.
func Truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "…")
}

// PrintPackages prints records as a table.
func PrintPackages(w io.Writer, packages []manager.Package) {
	if len(packages) == 0 {
		Muted.Fprintln(w, "No packages found")
		return
	}
	t := NewTable(w, "name", "id", "version", "source")
	for _, p := range packages {
		t.AddRow(
			PackageName.Sprint(Truncate(p.Name, maxName)),
			Truncate(p.ID, maxName),
			PackageVersion.Sprint(p.Version),
			PackageSource.Sprint(p.Manager()),
		)
	}
	t.Render()
}

// PrintUpgradable prints packages with a newer version available.
func PrintUpgradable(w io.Writer, packages []manager.UpgradablePackage) {
	if len(packages) == 0 {
		Muted.Fprintln(w, "Everything is up to date")
		return
	}
	t := NewTable(w, "name", "id", "version", "available", "source")
	for _, p := range packages {
		t.AddRow(
			PackageName.Sprint(Truncate(p.Name, maxName)),
			Truncate(p.ID, maxName),
			PackageVersion.Sprint(p.Version),
			NewVersion.Sprint(p.NewVersion),
			PackageSource.Sprint(p.Manager()),
		)
	}
	t.Render()
}

// DetailsMarkdown renders package details as markdown.
func DetailsMarkdown(d *manager.PackageDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", d.Name)
	if d.Description != manager.UnknownVersion {
		fmt.Fprintf(&b, "%s\n\n", d.Description)
	}
	b.WriteString("| | |\n|---|---|\n")
	row := func(label, value string) {
		if value == "" || value == manager.UnknownVersion {
			return
		}
		fmt.Fprintf(&b, "| **%s** | %s |\n", label, strings.ReplaceAll(value, "|", `\|`))
	}
	row("Id", "`"+d.ID+"`")
	row("Version", d.Version)
	row("Manager", d.Manager())
	row("Publisher", d.Publisher)
	row("License", d.License)
	row("Homepage", d.Homepage)
	row("Installer", d.InstallerURL)
	if len(d.Tags) > 0 {
		row("Tags", strings.Join(d.Tags, ", "))
	}
	if d.ReleaseNotes != manager.UnknownVersion {
		fmt.Fprintf(&b, "\n## Release notes\n\n%s\n", d.ReleaseNotes)
	}
	return b.String()
}

// PrintDetails renders package details through glamour; plain markdown is
// printed when rendering fails or colors are off.
func PrintDetails(w io.Writer, d *manager.PackageDetails) error {
	md := DetailsMarkdown(d)
	style := glamour.WithAutoStyle()
	if !UseColors {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(Width(80)))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			_, err = io.WriteString(w, out)
			return err
		}
	}
	_, err = io.WriteString(w, md)
	return err
}
