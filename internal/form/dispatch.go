package form

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

// DefaultDispatchTimeout bounds a simulation run.
const DefaultDispatchTimeout = 600 * time.Second

// Dispatcher submits simulation requests to a backend with an upper bound on
// how long the caller waits. A reply arriving after the bound is dropped.
type Dispatcher struct {
	backend domain.SimulationBackend
	timeout time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDispatcher wraps backend. A non-positive timeout selects the default.
func NewDispatcher(backend domain.SimulationBackend, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{backend: backend, timeout: timeout, metrics: metrics, logger: logger}
}

// Backend returns the backend's name.
func (d *Dispatcher) Backend() string { return d.backend.Name() }

type reply struct {
	result json.RawMessage
	err    error
}

// Dispatch runs one simulation. Failures are returned as *domain.DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.SimulationRequest) (domain.SimulationOutput, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := domain.Clock()
	start := clock.Now()
	timer := clock.NewTimer(d.timeout)
	defer timer.Stop()

	// Buffered so the backend goroutine never blocks after a timeout.
	done := make(chan reply, 1)
	go func() {
		result, err := d.backend.Submit(ctx, req)
		done <- reply{result: result, err: err}
	}()

	var out domain.SimulationOutput
	var err error
	select {
	case r := <-done:
		out, err = d.complete(r, clock.Since(start))
	case <-timer.Chan():
		err = &domain.DispatchError{Kind: domain.DispatchTimeout, Err: context.DeadlineExceeded}
	case <-ctx.Done():
		err = &domain.DispatchError{Kind: domain.DispatchFailed, Err: ctx.Err()}
	}

	d.record(err, clock.Since(start))
	return out, err
}

func (d *Dispatcher) complete(r reply, runtime time.Duration) (domain.SimulationOutput, error) {
	if r.err != nil {
		return domain.SimulationOutput{}, &domain.DispatchError{Kind: classifyDispatch(r.err), Err: r.err}
	}
	if len(r.result) == 0 || !json.Valid(r.result) {
		return domain.SimulationOutput{}, &domain.DispatchError{Kind: domain.DispatchFailed, Err: domain.ErrSimulationFailed}
	}
	return domain.SimulationOutput{Backend: d.backend.Name(), Result: r.result, Runtime: runtime}, nil
}

func classifyDispatch(err error) domain.DispatchKind {
	var svc *domain.ServiceError
	switch {
	case domain.IsConnectivity(err):
		return domain.DispatchConnectivity
	case errors.As(err, &svc):
		if strings.HasPrefix(svc.Message, domain.BusyMessagePrefix) {
			return domain.DispatchBusy
		}
		return domain.DispatchServiceError
	default:
		return domain.DispatchFailed
	}
}

func (d *Dispatcher) record(err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(domain.DispatchKindOf(err))
		d.logger.Warn("simulation dispatch failed", "backend", d.backend.Name(), "kind", outcome, "error", err)
	} else {
		d.logger.Info("simulation complete", "backend", d.backend.Name(), "runtime", elapsed)
	}
	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(d.backend.Name(), outcome).Inc()
		d.metrics.DispatchDuration.WithLabelValues(d.backend.Name()).Observe(elapsed.Seconds())
	}
}

// DispatchStatus is the lifecycle of a session's latest submission.
type DispatchStatus string

const (
	DispatchIdle      DispatchStatus = "idle"
	DispatchRunning   DispatchStatus = "running"
	DispatchSucceeded DispatchStatus = "succeeded"
	DispatchFailed    DispatchStatus = "failed"
)

// DispatchState is the outcome of a session's latest submission.
type DispatchState struct {
	Status    DispatchStatus           `json:"status"`
	Backend   string                   `json:"backend,omitempty"`
	Kind      domain.DispatchKind      `json:"error_kind,omitempty"`
	Warning   domain.Warning           `json:"warning,omitempty"`
	Error     string                   `json:"error,omitempty"`
	StartedAt time.Time                `json:"started_at,omitzero"`
	Output    *domain.SimulationOutput `json:"output,omitempty"`
}

// Dispatch returns the state of the latest submission.
func (s *Session) Dispatch() DispatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch
}

// beginSubmit checks the gate and marks a new submission as running. Async
// submissions are registered with the session's wait group under the lock so
// Close cannot miss them.
func (s *Session) beginSubmit(async bool) (domain.SimulationRequest, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.SimulationRequest{}, 0, ErrSessionClosed
	}
	if !s.gate.Ready || s.gate.Request == nil {
		return domain.SimulationRequest{}, 0, &domain.DispatchError{Kind: domain.DispatchNotReady}
	}
	if s.deps.Dispatcher == nil {
		return domain.SimulationRequest{}, 0, &domain.DispatchError{Kind: domain.DispatchFailed, Err: errors.New("no simulation backend configured")}
	}
	s.seq[slotDispatch]++
	if async {
		s.wg.Add(1)
	}
	s.touchLocked()
	s.dispatch = DispatchState{
		Status:    DispatchRunning,
		Backend:   s.deps.Dispatcher.Backend(),
		StartedAt: domain.Clock().Now(),
	}
	return *s.gate.Request, s.seq[slotDispatch], nil
}

// finishSubmit records the result unless a newer submission superseded it.
func (s *Session) finishSubmit(seq uint64, out domain.SimulationOutput, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.seq[slotDispatch] != seq {
		s.discardLocked("dispatch")
		return
	}
	st := s.dispatch
	if err != nil {
		st.Status = DispatchFailed
		st.Kind = domain.DispatchKindOf(err)
		st.Error = err.Error()
		if st.Kind == domain.DispatchTimeout {
			st.Warning = domain.WarnTimeout
		}
		st.Output = nil
	} else {
		st.Status = DispatchSucceeded
		st.Output = &out
	}
	s.dispatch = st
}

// Submit dispatches the gate's request and waits for the result.
func (s *Session) Submit(ctx context.Context) (domain.SimulationOutput, error) {
	req, seq, err := s.beginSubmit(false)
	if err != nil {
		return domain.SimulationOutput{}, err
	}
	out, err := s.deps.Dispatcher.Dispatch(ctx, req)
	s.finishSubmit(seq, out, err)
	return out, err
}

// StartSubmit checks the gate and dispatches in the background. The result
// is available from Dispatch once it completes.
func (s *Session) StartSubmit() error {
	req, seq, err := s.beginSubmit(true)
	if err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		out, err := s.deps.Dispatcher.Dispatch(s.ctx, req)
		s.finishSubmit(seq, out, err)
	}()
	return nil
}
