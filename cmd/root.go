package cmd

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"strings"

	"github.com/josephlewis42/myshell/core"
	"github.com/josephlewis42/myshell/core/config"
	"github.com/josephlewis42/myshell/core/logger"
	"github.com/josephlewis42/myshell/core/slogger"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string
	verbosity   int
)

// exitError carries the interpreter's exit code out of cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return "exit"
}

func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	return config.LoadOrDefault(cfgPath, log.New(cmd.ErrOrStderr(), "", 0))
}

// openEvents opens the session event log, or a logger that drops events if
// it's disabled.
func openEvents(cfg *config.Configuration) (*logger.SessionLogger, io.Closer, error) {
	if !cfg.EventLog {
		return logger.NewNopLogger().NewSession(), io.NopCloser(nil), nil
	}

	fd, err := cfg.OpenEventLog()
	if err != nil {
		return nil, nil, err
	}
	return logger.NewJsonLinesLogRecorder(fd).NewSession(), fd, nil
}

// newShell builds a shell over the process's own streams.
func newShell(cmd *cobra.Command, cfg *config.Configuration, lines core.LineReader) (*core.Shell, io.Closer, error) {
	events, closer, err := openEvents(cfg)
	if err != nil {
		return nil, nil, err
	}

	s, err := core.NewShell(core.Options{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Lines:  lines,
		Events: events,
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return s, closer, nil
}

// runShell runs a session to completion and converts its exit code.
func runShell(cmd *cobra.Command, cfg *config.Configuration, lines core.LineReader) error {
	s, closer, err := newShell(cmd, cfg, lines)
	if err != nil {
		return err
	}
	defer closer.Close()
	defer s.Close()

	if err := s.Run(cmd.Context()); err != nil {
		return err
	}

	if s.ExitCode() != 0 {
		return &exitError{code: s.ExitCode()}
	}
	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "myshell",
	Short: "A small interactive command interpreter",
	Long: `myshell reads command lines and runs them as child processes.

A line may redirect standard output to a file with > (truncate) or >> (append),
or connect two commands with |. Type exit or send end of input to quit.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		diag := slogger.New(slogger.Config{
			Verbosity: verbosity,
			Output:    cmd.ErrOrStderr(),
		})
		cmd.SetContext(slogger.WithLogger(cmd.Context(), diag))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var lines core.LineReader
		if commandLine != "" {
			lines = core.NewPrompter(io.Discard, strings.NewReader(commandLine))
		}

		return runShell(cmd, cfg, lines)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	err := rootCmd.ExecuteContext(context.Background())

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	cobra.CheckErr(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase diagnostic output (-v info, -vv debug)")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run a single command line and exit")
}
