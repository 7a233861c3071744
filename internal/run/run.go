// Package run executes external commands for the import pipeline.
//
// Every subprocess the service spawns (git plumbing, provisioning scripts,
// the listing refresh hook) goes through this package so that failures carry
// the full argv, the exit code, and the combined output. No retry policy
// lives here; callers decide what is recoverable.
package run

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandError describes a command that exited non-zero.
type CommandError struct {
	// Argv is the full command line, program name included.
	Argv []string

	// ExitCode is the process exit code, or -1 if the process did not
	// run to completion (e.g. it was killed or never started).
	ExitCode int

	// Output is the combined stdout and stderr captured from the process.
	Output string

	// Err is the underlying error from os/exec.
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %q failed (exit %d): %s",
		strings.Join(e.Argv, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Output runs program with args in dir and returns its combined output.
// An empty dir runs the command in the current working directory.
// A non-zero exit is reported as a *CommandError.
func Output(ctx context.Context, dir, program string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return string(out), &CommandError{
			Argv:     append([]string{program}, args...),
			ExitCode: code,
			Output:   string(out),
			Err:      err,
		}
	}
	return string(out), nil
}

// ExitCode returns the exit code carried by err if it wraps a
// *CommandError, or -1 otherwise.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}
