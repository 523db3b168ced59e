package models

import "time"

// Session is one invocation of the watcher. Executions are grouped by it.
type Session struct {
	ID          string
	StartedAt   time.Time
	Command     []string
	Interval    time.Duration
	Concurrency int
	Shell       string
}
