// Package exec runs parsed command lines as child processes: a single
// command, a command with its standard output redirected to a file, or two
// commands connected by a pipe.
//
// Every spawn takes an explicit set of stream bindings. The interpreter's
// own standard streams are never rebound.
package exec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// Sentinel errors for process orchestration.
var (
	// ErrEmptyCommand is returned when an argument list has no program name.
	ErrEmptyCommand = errors.New("empty command")

	// ErrSpawn is returned when the OS could not create a process. Callers
	// should treat it as fatal to the session.
	ErrSpawn = errors.New("spawn failed")

	// ErrResourceSetup is returned when a pipe or redirect target could not
	// be created. Nothing is left running when it is returned.
	ErrResourceSetup = errors.New("resource setup failed")
)

const (
	// CodeNotFound is the status reported when the program could not be found.
	CodeNotFound = 127

	// CodeNotExecutable is the status reported when the program exists but
	// could not be executed.
	CodeNotExecutable = 126
)

// Streams binds the standard streams of a child process. Nil fields are
// filled from the executor's defaults.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// DefaultStreams returns the interpreter's own standard streams.
func DefaultStreams() Streams {
	return Streams{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// withDefaults fills unset bindings from defaults.
func (s Streams) withDefaults(defaults Streams) Streams {
	if s.Stdin == nil {
		s.Stdin = defaults.Stdin
	}
	if s.Stdout == nil {
		s.Stdout = defaults.Stdout
	}
	if s.Stderr == nil {
		s.Stderr = defaults.Stderr
	}
	return s
}

// Status is the termination status of one child process.
type Status struct {
	// Code is the exit code for a normal exit, or 127/126 when the program
	// could not be started.
	Code int

	// Signaled is true if the child was terminated by Signal.
	Signaled bool
	Signal   syscall.Signal

	// NotFound is true if the program image could not be loaded. The child
	// never ran.
	NotFound bool
}

// Success returns true if the child exited normally with code 0.
func (s Status) Success() bool {
	return !s.Signaled && s.Code == 0
}

func (s Status) String() string {
	if s.Signaled {
		return fmt.Sprintf("signal: %s", s.Signal)
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

func statusFromState(state *os.ProcessState) Status {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Status{Code: -1, Signaled: true, Signal: ws.Signal()}
	}
	return Status{Code: state.ExitCode()}
}

// Redirect is a file that replaces a child's standard output.
type Redirect struct {
	Path   string
	Append bool
}

// RedirectPerm is the mode used when a redirect target is created.
const RedirectPerm os.FileMode = 0644

func (r Redirect) flags() int {
	if r.Append {
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
}

// Open opens the target for writing, creating it if needed.
func (r Redirect) Open() (*os.File, error) {
	return os.OpenFile(r.Path, r.flags(), RedirectPerm)
}

// PipelineStatus holds the statuses of both stages of a pipeline.
type PipelineStatus struct {
	Producer Status
	Consumer Status
}
