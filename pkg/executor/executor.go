package executor

import (
	"context"
	"io"
)

// Executor runs a command on some host, local or remote.
type Executor interface {
	Execute(ctx context.Context, stdout, stderr io.Writer, command string, args ...string) (exitCode int, err error)
	Name() string
}

// Remote is an Executor holding a connection that must be released.
type Remote interface {
	Executor
	Close() error
}

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Error    error
}
