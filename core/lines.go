package core

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/myshell/core/config"
	"github.com/mattn/go-isatty"
)

// LineReader supplies input lines to the shell. Readline returns io.EOF when
// the input is exhausted.
type LineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
	Close() error
}

var (
	_ LineReader = (*readline.Instance)(nil)
	_ LineReader = (*prompter)(nil)
)

// NewLineReader picks a line source for stdin: line editing and history for
// terminals, a plain buffered reader for everything else.
func NewLineReader(cfg *config.Configuration, stdin io.Reader, stdout, stderr io.Writer) (LineReader, error) {
	if !isTerminal(stdin) {
		return NewPrompter(stdout, stdin), nil
	}

	rlConfig := &readline.Config{
		Prompt:       cfg.Prompt,
		HistoryFile:  cfg.HistoryPath(),
		HistoryLimit: cfg.HistoryLimit,
		Stdin:        readline.NewCancelableStdin(stdin),
		Stdout:       stdout,
		Stderr:       stderr,
		FuncIsTerminal: func() bool {
			return true
		},
	}

	if err := rlConfig.Init(); err != nil {
		return nil, err
	}

	return readline.NewEx(rlConfig)
}

func isTerminal(r interface{}) bool {
	fd, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(fd.Fd())
}

// prompter reads newline terminated lines, printing a prompt before each.
type prompter struct {
	prompt string
	w      io.Writer
	s      *bufio.Scanner
}

// NewPrompter creates a LineReader that prints prompts to w and reads lines
// from r.
func NewPrompter(w io.Writer, r io.Reader) LineReader {
	s := bufio.NewScanner(r)
	s.Split(bufio.ScanLines)
	return &prompter{w: w, s: s}
}

func (p *prompter) SetPrompt(prompt string) {
	p.prompt = prompt
}

func (p *prompter) Readline() (string, error) {
	fmt.Fprint(p.w, p.prompt)
	if p.s.Scan() {
		return p.s.Text(), nil
	}
	if p.s.Err() != nil {
		return "", p.s.Err()
	}
	return "", io.EOF
}

func (p *prompter) Close() error {
	return nil
}
