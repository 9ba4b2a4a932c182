package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// engineFunc adapts a function to Engine.
type engineFunc func(ctx context.Context, input []byte) ([]byte, error)

func (f engineFunc) Run(ctx context.Context, input []byte) ([]byte, error) { return f(ctx, input) }

func startPool(t *testing.T, engine Engine, concurrency int) *Pool {
	t.Helper()
	p := NewPool(engine, concurrency, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func TestPool_Submit(t *testing.T) {
	var got []byte
	p := startPool(t, engineFunc(func(_ context.Context, input []byte) ([]byte, error) {
		got = input
		return []byte(`{"electric-boiler":{}}`), nil
	}), 1)

	out, err := p.Submit(context.Background(), domain.SimulationRequest{Postcode: "CV47AL", Occupants: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"electric-boiler":{}}`, string(out))
	assert.Contains(t, string(got), `"postcode":"CV47AL"`)
	assert.Equal(t, "worker", p.Name())
}

func TestPool_FailureSentinel(t *testing.T) {
	p := startPool(t, engineFunc(func(context.Context, []byte) ([]byte, error) {
		return []byte("  \n"), nil
	}), 1)

	_, err := p.Submit(context.Background(), domain.SimulationRequest{})
	require.ErrorIs(t, err, domain.ErrSimulationFailed)
}

func TestPool_EngineError(t *testing.T) {
	boom := errors.New("engine crashed")
	p := startPool(t, engineFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, boom
	}), 1)

	_, err := p.Submit(context.Background(), domain.SimulationRequest{})
	require.ErrorIs(t, err, boom)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	p := startPool(t, engineFunc(func(context.Context, []byte) ([]byte, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return []byte(`{}`), nil
	}), 2)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(context.Background(), domain.SimulationRequest{})
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(2), peak.Load())
}

func TestPool_SubmitCancelledWhileWaiting(t *testing.T) {
	p := NewPool(engineFunc(func(context.Context, []byte) ([]byte, error) {
		return []byte(`{}`), nil
	}), 1, discardLogger())

	// Run is not started, so the job is never picked up.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Submit(ctx, domain.SimulationRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
