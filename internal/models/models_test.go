package models

import (
	"testing"
	"time"
)

func strp(s string) *string { return &s }

func TestTarget(t *testing.T) {
	var zero Target
	if !zero.IsLatest() || zero.String() != "latest" {
		t.Fatalf("zero target = %s", zero)
	}
	if _, ok := Latest().ID(); ok {
		t.Fatal("Latest reported an id")
	}

	s := Specific(42)
	if s.IsLatest() {
		t.Fatal("Specific reported latest")
	}
	if id, ok := s.ID(); !ok || id != 42 || s.String() != "#42" {
		t.Fatalf("Specific(42) = %d, %v, %s", id, ok, s)
	}
	if Specific(42) != s {
		t.Fatal("targets with equal ids differ")
	}
}

func TestExecutionContent(t *testing.T) {
	end := time.Now()
	code := 1
	cases := []struct {
		name           string
		stdout, stderr string
		content        string
		lines          int
	}{
		{"stdout only", "a\nb\n", "", "a\nb\n", 2},
		{"stderr joined", "a", "boom\n", "a\nboom\n", 2},
		{"stderr only", "", "boom", "boom", 1},
		{"empty", "", "", "", 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := &Execution{ID: 1, StartedAt: end.Add(-time.Second), CompletedAt: &end,
				Stdout: strp(c.stdout), Stderr: strp(c.stderr), ExitCode: &code}
			if got := e.Content(); got != c.content {
				t.Errorf("Content = %q, want %q", got, c.content)
			}
			if got := e.Lines(); got != c.lines {
				t.Errorf("Lines = %d, want %d", got, c.lines)
			}
		})
	}
}

func TestExecutionPending(t *testing.T) {
	e := &Execution{ID: 1, StartedAt: time.Now()}
	if !e.Pending() || e.Duration() != 0 || e.Lines() != 0 {
		t.Fatal("pending execution reported output or duration")
	}
	if !e.Summary().Pending() {
		t.Fatal("summary of pending execution is not pending")
	}
}
