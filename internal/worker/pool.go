// Package worker runs simulations in-process on a bounded pool of engine
// invocations. Callers post a request and wait for a single reply; an empty
// reply is the engine's failure sentinel.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// Engine runs one simulation. input is the JSON-encoded request; the output
// is the JSON result, or empty when the simulation failed.
type Engine interface {
	Run(ctx context.Context, input []byte) ([]byte, error)
}

type job struct {
	ctx   context.Context
	input []byte
	reply chan<- reply
}

type reply struct {
	output []byte
	err    error
}

// Pool is a message-passing simulation worker. It implements
// domain.SimulationBackend; Run must be started for jobs to be served.
type Pool struct {
	engine Engine
	jobs   chan job
	sem    *semaphore.Weighted
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewPool creates a pool running at most concurrency engine invocations at
// once.
func NewPool(engine Engine, concurrency int, logger *slog.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		engine: engine,
		jobs:   make(chan job),
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
	}
}

// Name identifies the backend in logs and metrics.
func (p *Pool) Name() string { return "worker" }

// Submit posts req to the pool and waits for its reply.
func (p *Pool) Submit(ctx context.Context, req domain.SimulationRequest) (json.RawMessage, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("serialize simulation request: %w", err)
	}

	ch := make(chan reply, 1)
	select {
	case p.jobs <- job{ctx: ctx, input: input, reply: ch}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if len(bytes.TrimSpace(r.output)) == 0 {
			return nil, domain.ErrSimulationFailed
		}
		return json.RawMessage(r.output), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run serves jobs until ctx is done, then waits for running jobs to finish.
func (p *Pool) Run(ctx context.Context) error {
	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-p.jobs:
			if err := p.sem.Acquire(ctx, 1); err != nil {
				j.reply <- reply{err: err}
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				defer p.sem.Release(1)
				p.serve(j)
			}()
		}
	}
}

func (p *Pool) serve(j job) {
	if err := j.ctx.Err(); err != nil {
		j.reply <- reply{err: err}
		return
	}
	out, err := p.engine.Run(j.ctx, j.input)
	if err != nil {
		p.logger.Warn("simulation engine failed", "error", err)
	}
	j.reply <- reply{output: out, err: err}
}
