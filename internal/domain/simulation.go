package domain

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// SimulationRequest is the full input set sent to a simulation backend.
type SimulationRequest struct {
	Postcode           string  `json:"postcode"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	SpaceHeating       float64 `json:"epc-space-heating"`
	FloorArea          float64 `json:"floor-area"`
	Temperature        float64 `json:"temperature"`
	Occupants          float64 `json:"occupants"`
	TESVolume          float64 `json:"tes-volume"`
	EnableOptimisation bool    `json:"enable-optimisation"`
	HasLocation        bool    `json:"-"`
}

// Query renders the request with the simulate API's parameter names, in the
// order the API documents them.
func (r SimulationRequest) Query() string {
	params := [][2]string{
		{"postcode", r.Postcode},
		{"latitude", FormatNumber(r.Latitude)},
		{"longitude", FormatNumber(r.Longitude)},
		{"space_heating", FormatNumber(r.SpaceHeating)},
		{"floor_area", FormatNumber(r.FloorArea)},
		{"temperature", FormatNumber(r.Temperature)},
		{"occupants", FormatNumber(r.Occupants)},
		{"tes_max", FormatNumber(r.TESVolume)},
	}
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// URL appends the query to the simulate API endpoint.
func (r SimulationRequest) URL(endpoint string) string {
	return endpoint + "?" + r.Query()
}

// SimulationOutput is a completed simulation.
type SimulationOutput struct {
	Backend string          `json:"backend"`
	Result  json.RawMessage `json:"result"`
	Runtime time.Duration   `json:"runtime_ns"`
}

// SimulationBackend runs a simulation. Submit blocks until the backend
// replies or ctx is done. Errors wrap ErrConnectivity, *ServiceError or
// ErrSimulationFailed.
type SimulationBackend interface {
	Name() string
	Submit(ctx context.Context, req SimulationRequest) (json.RawMessage, error)
}
