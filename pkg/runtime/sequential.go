package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/latticeml/lattice/pkg/compiler"
)

// Sequential evaluates symbols one by one in compiled order. It is the
// default runner: no concurrency, fully deterministic, and sufficient for
// most pipelines whose cost is dominated by the actors themselves.
type Sequential struct {
	opts Options
}

// NewSequential returns a sequential runner.
func NewSequential(opts Options) *Sequential {
	return &Sequential{opts: opts}
}

// Name implements Runner.
func (s *Sequential) Name() string { return "sequential" }

// Run implements Runner.
func (s *Sequential) Run(ctx context.Context, symbols []compiler.Symbol) ([][]any, error) {
	logger := s.opts.logger()
	start := time.Now()
	values := make([][]any, len(symbols))
	for position, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			s.record("error", time.Since(start))
			return nil, fmt.Errorf("%w: %w", ErrExecution, err)
		}
		args, err := resolve(symbols, position, values)
		if err != nil {
			s.record("error", time.Since(start))
			return nil, err
		}
		outputs, err := s.invoke(ctx, symbol, position, args)
		if err != nil {
			logger.Error("symbol failed",
				"runner", s.Name(), "position", position,
				"instruction", symbol.Instruction.String(), "error", err)
			s.record("error", time.Since(start))
			return nil, fmt.Errorf("%w: symbol %d (%s): %w", ErrExecution, position, symbol.Instruction, err)
		}
		values[position] = outputs
	}
	logger.Debug("run finished", "runner", s.Name(), "symbols", len(symbols), "duration", time.Since(start))
	s.record("success", time.Since(start))
	return values, nil
}

func (s *Sequential) invoke(ctx context.Context, symbol compiler.Symbol, position int, args []any) ([]any, error) {
	ctx, span := s.opts.Tracing.StartSpan(ctx, "symbol",
		attribute.String("instruction", symbol.Instruction.String()),
		attribute.Int("position", position),
	)
	defer span.End()
	start := time.Now()
	outputs, err := symbol.Instruction.Invoke(ctx, args)
	if s.opts.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.opts.Metrics.RecordSymbol(symbol.Instruction.String(), status, time.Since(start))
	}
	if err != nil {
		s.opts.Tracing.RecordError(ctx, err)
	}
	return outputs, err
}

func (s *Sequential) record(status string, duration time.Duration) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordRun(s.Name(), status, duration)
	}
}
