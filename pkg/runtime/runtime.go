// Package runtime executes compiled symbol sequences. Runners differ only in
// scheduling: evaluating symbols in their compiled order is always correct,
// and any schedule that respects argument and ordering references is
// equivalent.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/latticeml/lattice/pkg/compiler"
)

// ErrExecution wraps any failure surfaced while running a symbol sequence.
var ErrExecution = errors.New("execution failed")

// Runner evaluates a symbol sequence and returns the outputs of every symbol,
// indexed by position.
type Runner interface {
	Name() string
	Run(ctx context.Context, symbols []compiler.Symbol) ([][]any, error)
}

// Options carries the ambient wiring shared by all runners. Zero value is
// usable: default logger, no metrics, no tracing.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Tracing *Tracing
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// resolve materializes the argument values of the symbol at position from the
// outputs collected so far.
func resolve(symbols []compiler.Symbol, position int, values [][]any) ([]any, error) {
	symbol := symbols[position]
	args := make([]any, len(symbol.Arguments))
	for i, argument := range symbol.Arguments {
		switch argument.Kind {
		case compiler.ArgumentLiteral:
			args[i] = argument.Value
		case compiler.ArgumentReference:
			if argument.Position < 0 || argument.Position >= position {
				return nil, fmt.Errorf("%w: symbol %d references position %d", ErrExecution, position, argument.Position)
			}
			outputs := values[argument.Position]
			if argument.Port < 0 || argument.Port >= len(outputs) {
				return nil, fmt.Errorf("%w: symbol %d references missing port %d of position %d",
					ErrExecution, position, argument.Port, argument.Position)
			}
			args[i] = outputs[argument.Port]
		default:
			return nil, fmt.Errorf("%w: symbol %d has unknown argument kind %d", ErrExecution, position, argument.Kind)
		}
	}
	return args, nil
}
