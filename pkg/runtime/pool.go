package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/latticeml/lattice/pkg/compiler"
)

// Pool evaluates independent symbols concurrently on a fixed worker pool.
// Each symbol carries a pending counter of unresolved producers; a symbol
// whose counter drops to zero is pushed on the ready channel and picked up
// by the next free worker. The first failure cancels the run and the
// remaining symbols drain as skipped.
type Pool struct {
	workers int
	opts    Options
}

// NewPool returns a pooled runner with the given worker count.
func NewPool(workers int, opts Options) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, opts: opts}
}

// Name implements Runner.
func (p *Pool) Name() string { return "pool" }

type poolNode struct {
	pending    atomic.Int32
	dependents []int
}

// Run implements Runner.
func (p *Pool) Run(ctx context.Context, symbols []compiler.Symbol) ([][]any, error) {
	logger := p.opts.logger()
	start := time.Now()

	nodes := make([]*poolNode, len(symbols))
	for position := range symbols {
		nodes[position] = &poolNode{}
	}
	for position, symbol := range symbols {
		producers := make(map[int]bool)
		upstream := make([]int, 0, len(symbol.Arguments)+len(symbol.After))
		for _, argument := range symbol.Arguments {
			if argument.Kind != compiler.ArgumentReference {
				continue
			}
			upstream = append(upstream, argument.Position)
		}
		// Ordering references gate scheduling exactly like data producers.
		upstream = append(upstream, symbol.After...)
		for _, producer := range upstream {
			if producer < 0 || producer >= position {
				p.record("error", time.Since(start))
				return nil, fmt.Errorf("%w: symbol %d references position %d", ErrExecution, position, producer)
			}
			if producers[producer] {
				continue
			}
			producers[producer] = true
			nodes[producer].dependents = append(nodes[producer].dependents, position)
		}
		nodes[position].pending.Store(int32(len(producers)))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Every symbol is enqueued exactly once, so the channel never blocks.
	ready := make(chan int, len(symbols))
	for position := range symbols {
		if nodes[position].pending.Load() == 0 {
			ready <- position
		}
	}

	values := make([][]any, len(symbols))
	var (
		once     sync.Once
		firstErr error
		pendingW sync.WaitGroup
		workersW sync.WaitGroup
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	pendingW.Add(len(symbols))

	for id := 0; id < p.workers; id++ {
		workersW.Add(1)
		go func(id int) {
			defer workersW.Done()
			for position := range ready {
				p.step(ctx, logger, symbols, nodes, values, ready, position, id, fail)
				pendingW.Done()
			}
		}(id)
	}

	pendingW.Wait()
	close(ready)
	workersW.Wait()

	if firstErr != nil {
		p.record("error", time.Since(start))
		return nil, firstErr
	}
	logger.Debug("run finished",
		"runner", p.Name(), "workers", p.workers,
		"symbols", len(symbols), "duration", time.Since(start))
	p.record("success", time.Since(start))
	return values, nil
}

// step executes one ready symbol and unlocks its dependents. Under a
// cancelled context the symbol is skipped but dependents are still unlocked
// so the whole sequence drains.
func (p *Pool) step(ctx context.Context, logger *slog.Logger,
	symbols []compiler.Symbol, nodes []*poolNode, values [][]any,
	ready chan int, position, worker int, fail func(error)) {

	unlock := func() {
		for _, dependent := range nodes[position].dependents {
			if nodes[dependent].pending.Add(-1) == 0 {
				ready <- dependent
			}
		}
	}
	defer unlock()

	if err := ctx.Err(); err != nil {
		fail(fmt.Errorf("%w: %w", ErrExecution, err))
		return
	}
	symbol := symbols[position]
	args, err := resolve(symbols, position, values)
	if err != nil {
		fail(err)
		return
	}
	symbolCtx, span := p.opts.Tracing.StartSpan(ctx, "symbol",
		attribute.String("instruction", symbol.Instruction.String()),
		attribute.Int("position", position),
		attribute.Int("worker", worker),
	)
	defer span.End()
	invoked := time.Now()
	outputs, err := symbol.Instruction.Invoke(symbolCtx, args)
	if p.opts.Metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.opts.Metrics.RecordSymbol(symbol.Instruction.String(), status, time.Since(invoked))
	}
	if err != nil {
		logger.Error("symbol failed",
			"runner", p.Name(), "worker", worker, "position", position,
			"instruction", symbol.Instruction.String(), "error", err)
		p.opts.Tracing.RecordError(symbolCtx, err)
		fail(fmt.Errorf("%w: symbol %d (%s): %w", ErrExecution, position, symbol.Instruction, err))
		return
	}
	values[position] = outputs
}

func (p *Pool) record(status string, duration time.Duration) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.RecordRun(p.Name(), status, duration)
	}
}
