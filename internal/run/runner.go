// Package run executes the pipeline's external tools (builder, signer)
// as child processes with context cancellation and diagnosable failures.
package run

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes one external command. Implementations stream output
// to the operator; the returned error carries enough stderr to diagnose
// a failure without scrolling back.
type Runner interface {
	Run(ctx context.Context, argv []string) error
}

// stderrTail limits how much captured stderr an error message carries.
const stderrTail = 4096

// ExecRunner runs commands via os/exec. Stdout and stderr stream to the
// process's own streams (or the configured writers) while stderr is
// also captured for the error message.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (r ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := r.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var captured bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, &captured)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w%s", argv[0], err, tail(captured.Bytes()))
	}
	return nil
}

// tail formats the last stderrTail bytes of captured stderr for
// inclusion in an error message.
func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return ""
	}
	if len(s) > stderrTail {
		s = s[len(s)-stderrTail:]
	}
	return ": " + s
}
