// Package window selects a contiguous slice of lines from a large log before
// it is imported or exported.
//
// Navigation is a pure state machine (Step) fed by a Prompter through Drive,
// so the selection logic carries no UI dependency.
package window

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Default window sizes of the import and export commands.
const (
	DefaultImportSize = 5000
	DefaultExportSize = 10000
)

var ErrInvalidSize = errors.New("window: size must be at least 1")

// Window is the half-open line range [Start, Start+Size). TotalHint is the
// source length when known, or negative.
type Window struct {
	Start     int `json:"start"`
	Size      int `json:"size"`
	TotalHint int `json:"totalHint,omitempty"`
}

// New returns a window at start clamped to zero.
func New(start, size int) (Window, error) {
	if size < 1 {
		return Window{}, errors.Wrapf(ErrInvalidSize, "got %d", size)
	}
	if start < 0 {
		start = 0
	}
	return Window{Start: start, Size: size, TotalHint: -1}, nil
}

// End returns the first line index past the window.
func (w Window) End() int {
	return w.Start + w.Size
}

// Contains reports whether the zero-based line index falls in the window.
func (w Window) Contains(index int) bool {
	return index >= w.Start && index < w.End()
}

// PastEnd reports whether the window starts beyond a known source length.
func (w Window) PastEnd() bool {
	return w.TotalHint >= 0 && w.Start >= w.TotalHint
}

// String describes the window with 1-based line numbers.
func (w Window) String() string {
	return fmt.Sprintf("lines %d to %d", w.Start+1, w.End())
}

type Signal int

const (
	Back Signal = iota
	Forward
	Confirm
	Cancel
)

func (s Signal) String() string {
	switch s {
	case Back:
		return "back"
	case Forward:
		return "forward"
	case Confirm:
		return "confirm"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Outcome is the result of one transition.
type Outcome int

const (
	// Continue means the navigator is still waiting for Confirm or Cancel.
	Continue Outcome = iota
	Accepted
	Rejected
)

// Step applies one signal. Back clamps at zero; Forward is not bounded by the
// source length. Unknown signals leave the window unchanged.
func Step(w Window, s Signal) (Window, Outcome) {
	switch s {
	case Back:
		w.Start -= w.Size
		if w.Start < 0 {
			w.Start = 0
		}
		return w, Continue
	case Forward:
		w.Start += w.Size
		return w, Continue
	case Confirm:
		return w, Accepted
	case Cancel:
		return w, Rejected
	default:
		return w, Continue
	}
}
