package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"omnipkg/pkg/manager"
)

// Confirm prompts the user for yes/no confirmation.
func Confirm(prompt string, defaultYes bool) (bool, error) {
	label := prompt
	if defaultYes {
		label += " [Y/n]"
	} else {
		label += " [y/N]"
	}

	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	if defaultYes {
		p.Default = "y"
	}

	result, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, err
		}
		// promptui reports "n" as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return defaultYes, nil
	}

	result = strings.ToLower(strings.TrimSpace(result))
	if result == "" {
		return defaultYes, nil
	}
	return result == "y" || result == "yes", nil
}

// SelectPackage prompts the user to pick one of several records, e.g. when
// a package id is offered by more than one manager.
func SelectPackage(packages []manager.Package, prompt string) (*manager.Package, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("no packages to select from")
	}
	if len(packages) == 1 {
		return &packages[0], nil
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "▸ {{ .Name | cyan }} {{ .Version | green }} [{{ .Manager | magenta }}]",
		Inactive: "  {{ .Name }} {{ .Version | faint }} [{{ .Manager | faint }}]",
		Selected: "✓ {{ .Name | cyan }} {{ .Version | green }} [{{ .Manager | magenta }}]",
		Details: `
--------- Package ----------
{{ "Id:" | faint }}	{{ .ID }}
{{ "Version:" | faint }}	{{ .Version }}
{{ "Manager:" | faint }}	{{ .Manager }}`,
	}

	searcher := func(input string, index int) bool {
		pkg := packages[index]
		input = strings.ToLower(input)
		return strings.Contains(strings.ToLower(pkg.Name), input) ||
			strings.Contains(strings.ToLower(pkg.ID), input)
	}

	p := promptui.Select{
		Label:     prompt,
		Items:     packages,
		Templates: templates,
		Size:      10,
		Searcher:  searcher,
	}

	index, _, err := p.Run()
	if err != nil {
		return nil, err
	}
	return &packages[index], nil
}
