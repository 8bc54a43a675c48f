// Package executortest provides an Executor that records commands instead of
// running them.
package executortest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Response is what the recorder answers for a command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Recorder implements executor.Remote.
type Recorder struct {
	mu        sync.Mutex
	name      string
	commands  []string
	responses map[string]Response
	closed    bool
}

func NewRecorder(name string) *Recorder {
	return &Recorder{
		name:      name,
		responses: make(map[string]Response),
	}
}

// Respond registers the response for every command line starting with prefix.
func (r *Recorder) Respond(prefix string, response Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[prefix] = response
}

func (r *Recorder) Name() string {
	return r.name
}

func (r *Recorder) Execute(ctx context.Context, stdout, stderr io.Writer, command string, args ...string) (int, error) {
	line := strings.Join(append([]string{command}, args...), " ")

	r.mu.Lock()
	r.commands = append(r.commands, line)
	response, found := r.match(line)
	r.mu.Unlock()

	if !found {
		return 0, nil
	}

	if stdout != nil {
		io.WriteString(stdout, response.Stdout)
	}
	if stderr != nil {
		io.WriteString(stderr, response.Stderr)
	}
	if response.ExitCode != 0 {
		return response.ExitCode, fmt.Errorf("command exited with code %d", response.ExitCode)
	}
	return 0, nil
}

func (r *Recorder) match(line string) (Response, bool) {
	longest := -1
	var response Response
	for prefix, candidate := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > longest {
			longest = len(prefix)
			response = candidate
		}
	}
	return response, longest >= 0
}

// Commands returns every command line executed so far.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
