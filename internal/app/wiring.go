// Package app assembles the registry clients, simulation backend and form
// dependencies from configuration. Both the HTTP service and formctl build
// their sessions through it.
package app

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/heatmyhome-form/internal/adapter/epc"
	kafkaadapter "github.com/couchcryptid/heatmyhome-form/internal/adapter/kafka"
	"github.com/couchcryptid/heatmyhome-form/internal/adapter/postcodes"
	"github.com/couchcryptid/heatmyhome-form/internal/adapter/simapi"
	"github.com/couchcryptid/heatmyhome-form/internal/config"
	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
	"github.com/couchcryptid/heatmyhome-form/internal/worker"
)

// Backend is a simulation backend plus its optional background loop and
// teardown. Run and Close are nil when the backend needs neither.
type Backend struct {
	domain.SimulationBackend
	Run   func(ctx context.Context) error
	Close func() error
}

// NewBackend builds the backend selected by SIM_BACKEND.
func NewBackend(cfg *config.Config, logger *slog.Logger) (Backend, error) {
	switch cfg.SimBackend {
	case config.BackendWorker:
		engine, err := worker.NewExecEngine(cfg.SimWorkerCommand)
		if err != nil {
			return Backend{}, err
		}
		pool := worker.NewPool(engine, cfg.SimWorkerConcurrency, logger)
		return Backend{SimulationBackend: pool, Run: pool.Run}, nil
	case config.BackendKafka:
		b := kafkaadapter.NewBackend(cfg, logger)
		return Backend{SimulationBackend: b, Run: b.Run, Close: b.Close}, nil
	default:
		return Backend{SimulationBackend: simapi.NewClient(cfg.SimAPIURL, logger)}, nil
	}
}

// NewDeps wires the registry clients and, when sim is non-nil, a dispatcher.
func NewDeps(cfg *config.Config, sim domain.SimulationBackend, metrics *observability.Metrics, logger *slog.Logger) form.Deps {
	deps := form.Deps{
		Postcodes:    postcodes.NewClient(cfg.PostcodesAPIURL, cfg.LookupTimeout, metrics, logger),
		Directory:    epc.NewClient(cfg.EPCAPIURL, cfg.LookupTimeout, metrics, logger),
		PublicURL:    cfg.PublicURL,
		SimulateURL:  cfg.SimAPIURL,
		Optimisation: cfg.SimOptimisation,
		Metrics:      metrics,
		Logger:       logger,
	}
	if sim != nil {
		deps.Dispatcher = form.NewDispatcher(sim, cfg.SimTimeout, metrics, logger)
	}
	return deps
}
