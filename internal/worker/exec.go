package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr bounds the diagnostic text kept from a failed run.
const maxStderr = 4 << 10

// ExecEngine runs an external simulator command. The request is written to
// its stdin and the result read from its stdout.
type ExecEngine struct {
	Command []string
}

// NewExecEngine creates an engine for command and its arguments.
func NewExecEngine(command []string) (*ExecEngine, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("simulator command is empty")
	}
	return &ExecEngine{Command: command}, nil
}

// Run executes the simulator once. A non-zero exit is an error carrying the
// tail of stderr; an empty stdout is passed through as the failure sentinel.
func (e *ExecEngine) Run(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := stderr.String()
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		return nil, fmt.Errorf("run %s: %w: %s", e.Command[0], err, strings.TrimSpace(msg))
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}
