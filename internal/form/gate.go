package form

import (
	"strconv"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// Gate is the submission gate's current verdict and the artifacts derived
// while it is open.
type Gate struct {
	Ready       bool                      `json:"ready"`
	DeepLink    string                    `json:"deep_link,omitempty"`
	Request     *domain.SimulationRequest `json:"request,omitempty"`
	SimulateURL string                    `json:"simulate_url,omitempty"`
}

// Ready reports whether every required field is valid. Neighbour fields are
// never required.
func Ready(fields [domain.NumFields]FieldState) bool {
	for _, f := range domain.RequiredFields {
		if fields[f].Validity != domain.Valid {
			return false
		}
	}
	return true
}

// Gate returns the gate's current state.
func (s *Session) Gate() Gate {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gate
	if g.Request != nil {
		req := *g.Request
		g.Request = &req
	}
	return g
}

// evaluateGateLocked recomputes readiness after a commit. While ready the
// deep-link and request are re-derived from the snapshot; otherwise both are
// withdrawn.
func (s *Session) evaluateGateLocked() {
	s.settleAddressLocked()

	ready := Ready(s.fields)
	var req domain.SimulationRequest
	if ready {
		var ok bool
		req, ok = s.snapshot.SimulationRequest()
		ready = ok
	}

	prev := s.gate.Ready
	if ready {
		req.EnableOptimisation = s.optimisation
		s.gate = Gate{
			Ready:       true,
			DeepLink:    BuildDeepLink(s.deps.PublicURL, s.snapshot),
			Request:     &req,
			SimulateURL: req.URL(s.deps.SimulateURL),
		}
	} else {
		s.gate = Gate{}
	}

	if ready != prev {
		s.logger.Info("submission gate changed", "ready", ready)
		if s.deps.Metrics != nil {
			s.deps.Metrics.GateTransitions.WithLabelValues(strconv.FormatBool(ready)).Inc()
		}
	}
}

// settleAddressLocked clears the "not listed" warning on the address selector
// once both certificate fields have been supplied some other way.
func (s *Session) settleAddressLocked() {
	sel := &s.res.Address
	if sel.Selected != OptionNotListed || sel.Validity != domain.Invalid {
		return
	}
	for _, f := range certificateFields {
		if s.fields[f].Validity != domain.Valid {
			return
		}
	}
	sel.Validity = domain.Valid
	sel.Warning = domain.WarnNone
}
