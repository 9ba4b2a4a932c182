package simapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

const (
	serviceName = "simulate"
	maxBody     = 32 << 20
)

// Client runs simulations on the remote simulate API. It implements
// domain.SimulationBackend.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// NewClient creates a simulate API client. The dispatcher bounds each run, so
// the HTTP client itself has no timeout.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		endpoint:   endpoint,
		logger:     logger,
	}
}

// Name identifies the backend in logs and metrics.
func (c *Client) Name() string { return "server" }

// Submit issues the simulate query and returns the "result" member.
func (c *Client) Submit(ctx context.Context, sim domain.SimulationRequest) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sim.URL(c.endpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.logger.Debug("submitting simulation", "postcode", sim.Postcode)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: simulate request: %w", domain.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read simulate response: %w", domain.ErrConnectivity, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, &domain.ServiceError{Service: serviceName, Status: resp.StatusCode, Message: "invalid JSON response"}
	}

	status := int(gjson.GetBytes(body, "status").Int())
	if status != http.StatusOK {
		if status == 0 {
			status = resp.StatusCode
		}
		return nil, &domain.ServiceError{
			Service: serviceName,
			Status:  status,
			Message: gjson.GetBytes(body, "error").String(),
		}
	}
	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return nil, domain.ErrSimulationFailed
	}
	return json.RawMessage(result.Raw), nil
}
