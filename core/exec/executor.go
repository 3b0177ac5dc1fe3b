package exec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"syscall"

	"github.com/josephlewis42/myshell/core/slogger"
)

// Executor spawns child processes and waits for them.
type Executor struct {
	streams Streams
}

// New creates an Executor whose children inherit streams unless a call binds
// them differently. Unset fields default to the interpreter's own streams.
func New(streams Streams) *Executor {
	return &Executor{streams: streams.withDefaults(DefaultStreams())}
}

// Streams returns the executor's default bindings.
func (e *Executor) Streams() Streams {
	return e.streams
}

// Execute runs args as one child process and blocks until it terminates.
//
// A program that can't be found or executed is not an error: the returned
// status has NotFound set. Errors wrap ErrEmptyCommand or ErrSpawn.
func (e *Executor) Execute(ctx context.Context, args []string, streams Streams) (Status, error) {
	cmd, status, err := e.start(ctx, args, streams)
	if cmd == nil {
		return status, err
	}
	return e.wait(ctx, cmd)
}

// ExecuteWithRedirect runs args with standard output bound to the redirect
// target. If the target can't be opened nothing is spawned and the error
// wraps ErrResourceSetup.
func (e *Executor) ExecuteWithRedirect(ctx context.Context, args []string, target Redirect, streams Streams) (Status, error) {
	if len(args) == 0 {
		return Status{}, ErrEmptyCommand
	}

	fd, err := target.Open()
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrResourceSetup, err)
	}

	streams.Stdout = fd
	cmd, status, err := e.start(ctx, args, streams)

	// The child holds its own copy of the descriptor.
	fd.Close()

	if cmd == nil {
		return status, err
	}
	return e.wait(ctx, cmd)
}

// ExecutePipeline runs producer and consumer concurrently with the
// producer's standard output connected to the consumer's standard input.
//
// Both stages are started before either is waited on. The parent closes both
// pipe ends as soon as the stages are started, so the consumer sees
// end-of-stream when the producer exits. A stage that was started is always
// reaped, even if the other failed to spawn.
func (e *Executor) ExecutePipeline(ctx context.Context, producer, consumer []string, streams Streams) (PipelineStatus, error) {
	var out PipelineStatus
	if len(producer) == 0 || len(consumer) == 0 {
		return out, ErrEmptyCommand
	}

	r, w, err := os.Pipe()
	if err != nil {
		return out, fmt.Errorf("%w: pipe: %w", ErrResourceSetup, err)
	}

	producerStreams := streams
	producerStreams.Stdout = w
	consumerStreams := streams
	consumerStreams.Stdin = r

	producerCmd, producerStatus, producerErr := e.start(ctx, producer, producerStreams)
	out.Producer = producerStatus

	var consumerCmd *exec.Cmd
	var consumerErr error
	if producerErr == nil {
		consumerCmd, out.Consumer, consumerErr = e.start(ctx, consumer, consumerStreams)
	}

	w.Close()
	r.Close()

	var waitErrs []error
	if producerCmd != nil {
		status, err := e.wait(ctx, producerCmd)
		out.Producer = status
		waitErrs = append(waitErrs, err)
	}
	if consumerCmd != nil {
		status, err := e.wait(ctx, consumerCmd)
		out.Consumer = status
		waitErrs = append(waitErrs, err)
	}

	return out, errors.Join(append([]error{producerErr, consumerErr}, waitErrs...)...)
}

// start spawns args. A nil *exec.Cmd means nothing is running: the returned
// status and error describe why.
func (e *Executor) start(ctx context.Context, args []string, streams Streams) (*exec.Cmd, Status, error) {
	if len(args) == 0 {
		return nil, Status{}, ErrEmptyCommand
	}
	streams = streams.withDefaults(e.streams)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // running user commands is the point
	cmd.Stdin = streams.Stdin
	cmd.Stdout = streams.Stdout
	cmd.Stderr = streams.Stderr

	if err := cmd.Start(); err != nil {
		status, err := classifyStartErr(ctx, err)
		if status.NotFound {
			fmt.Fprintf(streams.Stderr, "myshell: %s: %s\n", args[0], notFoundReason(status))
			slogger.L(ctx).Debug("program not runnable", "program", args[0], "err", err)
		}
		return nil, status, err
	}

	slogger.L(ctx).Debug("spawned", "pid", cmd.Process.Pid, "argv", args)
	return cmd, Status{}, nil
}

// wait reaps cmd. An error is only returned if no termination status could
// be collected or copying a non-file stream failed.
func (e *Executor) wait(ctx context.Context, cmd *exec.Cmd) (Status, error) {
	err := cmd.Wait()
	if cmd.ProcessState == nil {
		return Status{}, fmt.Errorf("wait %s: %w", cmd.Path, err)
	}

	status := statusFromState(cmd.ProcessState)
	slogger.L(ctx).Debug("reaped", "pid", cmd.ProcessState.Pid(), "status", status.String())

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return status, fmt.Errorf("wait %s: %w", cmd.Path, err)
	}
	return status, nil
}

// classifyStartErr separates programs that could not be loaded, which only
// fail the one command, from failures to create a process at all.
func classifyStartErr(ctx context.Context, err error) (Status, error) {
	switch {
	case ctx.Err() != nil:
		return Status{}, ctx.Err()
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return Status{Code: CodeNotFound, NotFound: true}, nil
	case errors.Is(err, exec.ErrDot),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.ENOEXEC),
		errors.Is(err, syscall.EISDIR):
		return Status{Code: CodeNotExecutable, NotFound: true}, nil
	default:
		return Status{}, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
}

func notFoundReason(s Status) string {
	if s.Code == CodeNotExecutable {
		return "permission denied"
	}
	return "command not found"
}
