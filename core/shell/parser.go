// Package shell classifies an input line into the command shapes the
// interpreter knows how to run: a plain command, a command with its output
// redirected to a file, or two commands joined by a pipe.
//
// Only one operator per line is recognized. A redirect wins over a pipe.
// Tokens are separated by whitespace alone; quotes and backslashes are
// ordinary characters.
package shell

import (
	"errors"
	"strings"
)

const (
	OpTruncate = ">"
	OpAppend   = ">>"
	OpPipe     = "|"
)

// ErrMissingOperand is returned when a pipe has an empty side.
var ErrMissingOperand = errors.New("missing command around '|'")

// Line is the parsed shape of one input line. It is one of Empty, Plain,
// Redirected or Piped.
type Line interface {
	isLine()
}

// Empty is a line with no tokens.
type Empty struct{}

// Plain runs Args as a single command.
type Plain struct {
	Args []string
}

// Redirected runs Args with standard output written to Target.
type Redirected struct {
	Args   []string
	Target string
	Append bool
}

// Piped runs Producer and Consumer connected by a pipe.
type Piped struct {
	Producer []string
	Consumer []string
}

func (Empty) isLine()      {}
func (Plain) isLine()      {}
func (Redirected) isLine() {}
func (Piped) isLine()      {}

// Tokenize splits a line into whitespace separated tokens.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// Parse classifies line.
//
// A redirect operator is only recognized between the first and the last
// token; the last token is always the target and everything before the
// operator is the command. Otherwise the raw line is split at its first '|'.
func Parse(line string) (Line, error) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return Empty{}, nil
	}

	for i := 1; i < len(tokens)-1; i++ {
		if tokens[i] == OpTruncate || tokens[i] == OpAppend {
			return Redirected{
				Args:   tokens[:i],
				Target: tokens[len(tokens)-1],
				Append: tokens[i] == OpAppend,
			}, nil
		}
	}

	if before, after, found := strings.Cut(line, OpPipe); found {
		producer, consumer := Tokenize(before), Tokenize(after)
		if len(producer) == 0 || len(consumer) == 0 {
			return nil, ErrMissingOperand
		}
		return Piped{Producer: producer, Consumer: consumer}, nil
	}

	return Plain{Args: tokens}, nil
}
