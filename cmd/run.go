package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/josephlewis42/myshell/core"
	"github.com/spf13/cobra"
)

var runTimeout time.Duration

// runCmd executes a file of command lines.
var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Run each line of FILE as if it were typed at the prompt.",
	Long: `Run each line of FILE through the interpreter without prompting.

Empty lines are skipped and the run stops at an exit line. Commands inherit
the interpreter's standard input, not the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		script, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer script.Close()

		if runTimeout > 0 {
			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()
			cmd.SetContext(ctx)
		}

		return runShell(cmd, cfg, core.NewPrompter(io.Discard, script))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "kill commands still running after this long (e.g. 30s, 5m); 0 waits forever")
}
