package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
)

// SpawnExitCode is recorded for executions whose process never started. It
// matches the shell's status for a command that could not be run.
const SpawnExitCode = 127

// signalExitBase is added to the signal number of a killed process, as
// shells report it.
const signalExitBase = 128

// SpawnError means the shell could not be launched at all.
type SpawnError struct {
	Shell string
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Shell, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Result is the captured outcome of one execution.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Truncated bool
	Err       error // *SpawnError when the process did not start
}

// Execute runs `<shell> -c "<joined command>"` to completion, capturing at
// most maxOutput bytes of each stream. A launch failure is folded into the
// result with SpawnExitCode and the error text on stderr.
func Execute(shell string, command []string, maxOutput int) Result {
	cmd := exec.Command(shell, "-c", strings.Join(command, " "))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: maxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: maxOutput}

	err := cmd.Run()

	res := Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Len() >= maxOutput || stderr.Len() >= maxOutput,
	}
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitCode(exitErr)
		return res
	}

	spawnErr := &SpawnError{Shell: shell, Err: err}
	res.ExitCode = SpawnExitCode
	res.Err = spawnErr
	if res.Stderr != "" && !strings.HasSuffix(res.Stderr, "\n") {
		res.Stderr += "\n"
	}
	res.Stderr += spawnErr.Error()
	return res
}

// exitCode maps a signalled process to 128+signal instead of the -1 that
// ExitCode reports for it.
func exitCode(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return signalExitBase + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		// Report all bytes consumed so the copier does not fail with a short write.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
