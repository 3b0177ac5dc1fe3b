package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/myshell/core/config"
	"github.com/josephlewis42/myshell/core/exec"
	"github.com/josephlewis42/myshell/core/logger"
	"github.com/josephlewis42/myshell/core/shell"
	"github.com/josephlewis42/myshell/core/slogger"
	"github.com/mattn/go-isatty"
)

const builtinExit = "exit"

// Options configures a Shell.
type Options struct {
	Config *config.Configuration

	// Standard streams of the interpreter, inherited by children. Nil fields
	// default to the process's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Lines supplies input. If nil, one is chosen for Stdin.
	Lines LineReader

	// Events records what ran. If nil, events are dropped.
	Events *logger.SessionLogger
}

// Shell reads command lines, runs them and reports their exit status.
type Shell struct {
	cfg      *config.Configuration
	executor *exec.Executor
	lines    LineReader
	events   *logger.SessionLogger
	stdout   io.Writer
	stderr   io.Writer

	okColor   *color.Color
	failColor *color.Color

	exitCode int
}

// NewShell creates a shell from opts.
func NewShell(opts Options) (*Shell, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	streams := exec.Streams{Stdin: opts.Stdin, Stdout: opts.Stdout, Stderr: opts.Stderr}
	executor := exec.New(streams)
	streams = executor.Streams()

	lines := opts.Lines
	if lines == nil {
		var err error
		lines, err = NewLineReader(cfg, streams.Stdin, streams.Stdout, streams.Stderr)
		if err != nil {
			return nil, err
		}
	}

	events := opts.Events
	if events == nil {
		events = logger.NewNopLogger().Sessionless()
	}

	s := &Shell{
		cfg:       cfg,
		executor:  executor,
		lines:     lines,
		events:    events,
		stdout:    streams.Stdout,
		stderr:    streams.Stderr,
		okColor:   color.New(color.FgGreen),
		failColor: color.New(color.FgRed, color.Bold),
	}
	s.setColorMode()

	return s, nil
}

func (s *Shell) setColorMode() {
	enabled := false
	switch s.cfg.Color {
	case config.ColorAlways:
		enabled = true
	case config.ColorAuto:
		if fd, ok := s.stdout.(*os.File); ok {
			enabled = isatty.IsTerminal(fd.Fd())
		}
	}

	for _, c := range []*color.Color{s.okColor, s.failColor} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// ExitCode is the code the interpreter should exit with once Run returns.
func (s *Shell) ExitCode() int {
	return s.exitCode
}

// Run reads and runs lines until exit or end of input.
//
// Only a failure to create processes is returned as an error; everything else
// is reported and the loop continues.
func (s *Shell) Run(ctx context.Context) error {
	ctx = slogger.WithSession(ctx, s.events.SessionID())

	for {
		s.lines.SetPrompt(s.cfg.Prompt)
		line, err := s.lines.Readline()

		switch {
		case errors.Is(err, io.EOF):
			s.record(ctx, &logger.SessionEnd{Reason: "eof", ExitCode: s.exitCode})
			return nil

		case errors.Is(err, readline.ErrInterrupt):
			// Interrupt clears line.
			continue

		case err != nil:
			return fmt.Errorf("read line: %w", err)
		}

		quit, err := s.RunLine(ctx, line)
		if err != nil {
			s.record(ctx, &logger.SessionEnd{Reason: err.Error(), ExitCode: 1})
			return err
		}
		if quit {
			s.record(ctx, &logger.SessionEnd{Reason: builtinExit, ExitCode: s.exitCode})
			return nil
		}
	}
}

// RunLine parses and runs a single line. It returns true if the session
// should end.
func (s *Shell) RunLine(ctx context.Context, line string) (quit bool, err error) {
	parsed, err := shell.Parse(line)
	if err != nil {
		s.reportError(ctx, line, err)
		return false, nil
	}

	switch cmd := parsed.(type) {
	case shell.Empty:
		return false, nil

	case shell.Plain:
		if cmd.Args[0] == builtinExit && s.cfg.ExitMode == config.ExitModeBuiltin {
			return s.builtinExit(cmd.Args), nil
		}

		status, err := s.executor.Execute(ctx, cmd.Args, exec.Streams{})
		if err != nil {
			return s.handleErr(ctx, line, err)
		}
		s.reportStatus(status)
		s.record(ctx, &logger.RunCommand{Command: cmd.Args, Status: exitStatus(status)})

		return s.spawnFirstExit(cmd.Args), nil

	case shell.Redirected:
		// The target isn't opened for exit.
		if cmd.Args[0] == builtinExit && s.cfg.ExitMode == config.ExitModeBuiltin {
			return s.builtinExit(cmd.Args), nil
		}

		target := exec.Redirect{Path: cmd.Target, Append: cmd.Append}
		status, err := s.executor.ExecuteWithRedirect(ctx, cmd.Args, target, exec.Streams{})
		if err != nil {
			return s.handleErr(ctx, line, err)
		}
		s.reportStatus(status)
		s.record(ctx, &logger.RunRedirect{
			Command: cmd.Args,
			Target:  cmd.Target,
			Append:  cmd.Append,
			Status:  exitStatus(status),
		})

		return s.spawnFirstExit(cmd.Args), nil

	case shell.Piped:
		status, err := s.executor.ExecutePipeline(ctx, cmd.Producer, cmd.Consumer, exec.Streams{})
		if err != nil {
			return s.handleErr(ctx, line, err)
		}
		s.exitCode = exitCode(status.Consumer)
		slogger.L(ctx).Info("pipeline finished",
			"producer", status.Producer.String(),
			"consumer", status.Consumer.String())
		s.record(ctx, &logger.RunPipeline{
			Producer:       cmd.Producer,
			Consumer:       cmd.Consumer,
			ProducerStatus: exitStatus(status.Producer),
			ConsumerStatus: exitStatus(status.Consumer),
		})
		return false, nil

	default:
		panic(fmt.Sprintf("unhandled line type %T", parsed))
	}
}

// handleErr reports err and decides whether the session can go on. Only
// spawn failures are fatal.
func (s *Shell) handleErr(ctx context.Context, line string, err error) (bool, error) {
	if errors.Is(err, exec.ErrSpawn) {
		fmt.Fprintf(s.stderr, "myshell: %v\n", err)
		slogger.L(ctx).Error("can't create processes, exiting", "err", err)
		s.exitCode = 1
		return true, err
	}

	s.reportError(ctx, line, err)
	return false, nil
}

func (s *Shell) reportError(ctx context.Context, line string, err error) {
	fmt.Fprintf(s.stderr, "myshell: %v\n", err)
	s.record(ctx, &logger.CommandError{Line: line, Error: err.Error()})
}

func (s *Shell) reportStatus(status exec.Status) {
	s.exitCode = exitCode(status)

	c := s.okColor
	if !status.Success() {
		c = s.failColor
	}

	if status.Signaled {
		c.Fprintf(s.stdout, "Command terminated by signal %s\n", status.Signal)
		return
	}
	c.Fprintf(s.stdout, "Command executed with exit status %d\n", status.Code)
}

// builtinExit handles exit [code]; it never spawns anything.
func (s *Shell) builtinExit(args []string) bool {
	switch len(args) {
	case 1:
		s.exitCode = 0
	case 2:
		code, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.stderr, "myshell: exit: %s: numeric argument required\n", args[1])
			s.exitCode = 2
			break
		}
		s.exitCode = code & 0xff
	default:
		fmt.Fprintf(s.stderr, "myshell: exit: too many arguments\n")
		return false
	}
	return true
}

// spawnFirstExit ends the session after a program named exit was attempted,
// matching the legacy ordering.
func (s *Shell) spawnFirstExit(args []string) bool {
	if args[0] != builtinExit || s.cfg.ExitMode != config.ExitModeSpawnFirst {
		return false
	}
	s.exitCode = 0
	return true
}

func (s *Shell) record(ctx context.Context, event logger.LogType) {
	if err := s.events.Record(event); err != nil {
		slogger.L(ctx).Warn("couldn't record event", "err", err)
	}
}

// Close releases the line source.
func (s *Shell) Close() error {
	return s.lines.Close()
}

// exitCode maps status to the code the interpreter reports for it, 128+n
// for signal n.
func exitCode(status exec.Status) int {
	if status.Signaled {
		return 128 + int(status.Signal)
	}
	return status.Code
}

func exitStatus(status exec.Status) logger.ExitStatus {
	out := logger.ExitStatus{Code: status.Code, NotFound: status.NotFound}
	if status.Signaled {
		out.Signal = status.Signal.String()
	}
	return out
}
