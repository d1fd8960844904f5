// Package progress provides terminal progress indicators.
package progress

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/oxenhq/oxen-core/internal/termcolor"
)

// Spinner displays an animated spinner on stderr while a long-running
// operation (commit building, checkout, transfer) is in progress. It is
// only displayed when stderr is a TTY; in non-interactive environments
// (piped output, CI, E2E tests) it is silent.
type Spinner struct {
	msg   string
	inner *pterm.SpinnerPrinter
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{msg: msg}
}

// Start begins the spinner animation. It writes to stderr so it never
// pollutes stdout, and does nothing when stderr is not a terminal.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		return
	}
	p, err := pterm.DefaultSpinner.WithWriter(os.Stderr).Start(s.msg)
	if err != nil {
		return
	}
	s.inner = p
}

// UpdateText changes the spinner's message while it is running, used to
// report phase transitions within one operation (e.g. "hashing files" ->
// "building tree" -> "writing commit").
func (s *Spinner) UpdateText(msg string) {
	s.msg = msg
	if s.inner != nil {
		s.inner.UpdateText(msg)
	}
}

// Stop halts the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s.inner == nil {
		return
	}
	_, _ = s.inner.Stop()
	s.inner = nil
}

// Success stops the spinner, leaving a checkmarked success line with msg.
func (s *Spinner) Success(msg string) {
	if s.inner == nil {
		return
	}
	s.inner.Success(msg)
	s.inner = nil
}

// Fail stops the spinner, leaving a crossed-out failure line with msg.
func (s *Spinner) Fail(msg string) {
	if s.inner == nil {
		return
	}
	s.inner.Fail(msg)
	s.inner = nil
}
