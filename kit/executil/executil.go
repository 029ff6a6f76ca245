// Package executil runs external commands with the parent's standard streams.
package executil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner runs a command to completion. Zero value writes to os.Stdout and
// os.Stderr and runs in the current directory.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Dir    string
}

// Run starts name with args and blocks until it exits. The error is non-nil
// only if the process could not be started or waited on; a process that ran
// and exited non-zero reports its status through exitCode.
func (r Runner) Run(ctx context.Context, name string, args ...string) (exitCode int, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.Dir = r.Dir

	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// DryRunner prints each command line instead of running it.
type DryRunner struct {
	Out io.Writer
}

func (r DryRunner) Run(_ context.Context, name string, args ...string) (int, error) {
	out := r.Out
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintln(out, Quote(append([]string{name}, args...)...)); err != nil {
		return -1, err
	}
	return 0, nil
}

// Quote joins args into a command line, single-quoting any arg a POSIX shell
// would split or expand.
func Quote(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = quoteArg(a)
	}
	return strings.Join(quoted, " ")
}

func quoteArg(a string) string {
	if a == "" {
		return "''"
	}
	if !strings.ContainsAny(a, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return a
	}
	return "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
}
