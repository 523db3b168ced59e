// Package state owns the watcher's shared mutable state. All mutation goes
// through the Coordinator's event loop; readers get immutable snapshots.
package state

import (
	"errors"
	"time"

	"github.com/mpataki/boda/internal/models"
)

// ErrStateRace marks a broken invariant of the runner counters. It is never
// expected at runtime.
var ErrStateRace = errors.New("state invariant violated")

// Global is set once at startup, except for Running which flips to false
// on shutdown.
type Global struct {
	Command     []string
	Interval    time.Duration
	Concurrency int
	Running     bool
}

type Runner struct {
	PreviousDispatch time.Time
	InFlight         int
}

type Snapshot struct {
	Global     Global
	Runner     Runner
	Navigation Navigation
}

// Admission is the coordinator's answer to a dispatch request.
type Admission struct {
	Admitted bool
	Stopped  bool
	ID       int64 // zero when the pending record could not be persisted
}

// RunResult reports a finished execution back to the coordinator.
type RunResult struct {
	ID       int64
	Start    time.Time
	End      time.Time
	Stdout   string
	Stderr   string
	ExitCode int
}

type event interface {
	isEvent()
}

type startRun struct {
	at    time.Time
	force bool
	reply chan Admission
}

type runResult struct {
	RunResult
}

type uiAction struct {
	action models.Action
}

func (startRun) isEvent()  {}
func (runResult) isEvent() {}
func (uiAction) isEvent()  {}
