package models

import (
	"strings"
	"time"
)

// Execution is one dispatch of the watched command. It is pending until
// CompletedAt, Stdout, Stderr and ExitCode are set, which happens once.
type Execution struct {
	ID          int64
	SessionID   string
	StartedAt   time.Time
	CompletedAt *time.Time
	Stdout      *string
	Stderr      *string
	ExitCode    *int
}

func (e *Execution) Pending() bool {
	return e.CompletedAt == nil
}

// Duration is zero while the execution is pending.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Content is what the viewer displays for a record: stdout followed by
// stderr when the latter is non-empty.
func (e *Execution) Content() string {
	var b strings.Builder
	if e.Stdout != nil {
		b.WriteString(*e.Stdout)
	}
	if e.Stderr != nil && *e.Stderr != "" {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(*e.Stderr)
	}
	return b.String()
}

// Lines returns the number of displayable lines in Content.
func (e *Execution) Lines() int {
	c := strings.TrimRight(e.Content(), "\n")
	if c == "" {
		return 0
	}
	return strings.Count(c, "\n") + 1
}

func (e *Execution) Summary() Summary {
	return Summary{
		ID:          e.ID,
		StartedAt:   e.StartedAt,
		CompletedAt: e.CompletedAt,
		ExitCode:    e.ExitCode,
	}
}

// Summary is the output-less view of an Execution used for history lists.
type Summary struct {
	ID          int64
	StartedAt   time.Time
	CompletedAt *time.Time
	ExitCode    *int
}

func (s Summary) Pending() bool {
	return s.CompletedAt == nil
}
