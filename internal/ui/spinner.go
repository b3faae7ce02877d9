package ui

import (
	"time"

	"github.com/briandowns/spinner"
)

// Spinner wraps the spinner library for consistent styling. It stays
// silent when stdout is not a terminal.
type Spinner struct {
	s      *spinner.Spinner
	active bool
}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	charSet := spinner.CharSets[14] // ⣾⣽⣻⢿⡿⣟⣯⣷
	if !UseUnicode {
		charSet = spinner.CharSets[9] // |/-\
	}

	s := spinner.New(charSet, 100*time.Millisecond)
	s.Suffix = " " + message
	if UseColors {
		_ = s.Color("cyan")
	}
	return &Spinner{s: s}
}

// Start starts the spinner.
func (sp *Spinner) Start() {
	if !IsTerminal() {
		return
	}
	sp.active = true
	sp.s.Start()
}

// Stop stops the spinner.
func (sp *Spinner) Stop() {
	if sp.active {
		sp.s.Stop()
		sp.active = false
	}
}

// Success stops the spinner with a success message.
func (sp *Spinner) Success(message string) {
	sp.Stop()
	SuccessMsg("%s", message)
}

// Error stops the spinner with an error message.
func (sp *Spinner) Error(message string) {
	sp.Stop()
	ErrorMsg("%s", message)
}

// UpdateMessage updates the spinner message.
func (sp *Spinner) UpdateMessage(message string) {
	sp.s.Lock()
	sp.s.Suffix = " " + message
	sp.s.Unlock()
}
