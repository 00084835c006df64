package ports

import (
	"context"
	"io"
)

// Command is a process invocation.
type Command struct {
	Args []string
	Env  map[string]string
	Dir  string
	// TTY runs the command attached to a pseudo-terminal; stdout and stderr are merged.
	TTY bool
}

// CommandRunner executes commands on behalf of shell-backed tests, hooks and resources.
//
//go:generate mockgen -source=command_runner.go -destination=mocks/mock_command_runner.go -package=mocks
type CommandRunner interface {
	// Run executes cmd, streaming its output to stdout and stderr.
	// It returns an error if the command cannot start or exits non-zero.
	Run(ctx context.Context, cmd Command, stdout, stderr io.Writer) error
}
