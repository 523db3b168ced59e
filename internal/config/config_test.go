package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntervalFromSeconds(t *testing.T) {
	cases := []struct {
		in   float64
		want time.Duration
	}{
		{2, 2 * time.Second},
		{0.5, 500 * time.Millisecond},
		{0, MinInterval},
		{-3, MinInterval},
		{0.01, MinInterval},
	}
	for _, c := range cases {
		if got := IntervalFromSeconds(c.in); got != c.want {
			t.Errorf("IntervalFromSeconds(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BODA_DATA_DIR", dir)
	t.Setenv("SHELL", "/bin/bash")

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.DBPath != filepath.Join(dir, "boda.db") {
		t.Errorf("DBPath = %q", c.DBPath)
	}
	if c.Interval != DefaultInterval || c.Concurrency != DefaultConcurrency {
		t.Errorf("defaults = %v/%d", c.Interval, c.Concurrency)
	}
	if c.Shell != "/bin/bash" {
		t.Errorf("Shell = %q, want /bin/bash", c.Shell)
	}
}

func TestNewReadsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BODA_DATA_DIR", dir)

	yml := "interval: 2.5\nconcurrency: 4\nshell: /bin/zsh\nlog_level: debug\nmax_output: 4096\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Interval != 2500*time.Millisecond {
		t.Errorf("Interval = %v", c.Interval)
	}
	if c.Concurrency != 4 || c.Shell != "/bin/zsh" || c.LogLevel != "debug" || c.MaxOutput != 4096 {
		t.Errorf("file values not applied: %+v", c)
	}
}

func TestNewRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BODA_DATA_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("interval: [1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	c := &Config{Interval: 10 * time.Millisecond, Concurrency: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero concurrency")
	}

	c = &Config{Interval: 10 * time.Millisecond, Concurrency: 2}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Interval != MinInterval {
		t.Errorf("Interval = %v, want %v", c.Interval, MinInterval)
	}
	if c.Shell == "" || c.MaxOutput != DefaultMaxOutput {
		t.Errorf("defaults not filled: %+v", c)
	}
}
