package postcodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

const serviceName = "postcodes"

// Client implements domain.PostcodeLookup using the postcodes.io API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a postcodes.io client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// LookupPostcode resolves a normalised postcode to its coordinates and country.
func (c *Client) LookupPostcode(ctx context.Context, postcode string) (domain.PostcodeResult, error) {
	start := time.Now()
	res, err := c.lookup(ctx, postcode)
	c.observe(err, time.Since(start))
	return res, err
}

func (c *Client) lookup(ctx context.Context, postcode string) (domain.PostcodeResult, error) {
	u := fmt.Sprintf("%s/postcodes/%s", c.baseURL, url.PathEscape(postcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PostcodeResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PostcodeResult{}, fmt.Errorf("%w: postcode request: %w", domain.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	// postcodes.io describes failures in the body, so decode it whatever the status.
	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if resp.StatusCode != http.StatusOK {
			return domain.PostcodeResult{}, &domain.ServiceError{Service: serviceName, Status: resp.StatusCode}
		}
		return domain.PostcodeResult{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != http.StatusOK || body.Result == nil {
		status := body.Status
		if status == 0 {
			status = resp.StatusCode
		}
		return domain.PostcodeResult{}, &domain.ServiceError{Service: serviceName, Status: status, Message: body.Error}
	}

	r := body.Result
	result := domain.PostcodeResult{Country: r.Country}
	if r.Latitude != nil && r.Longitude != nil {
		result.Latitude = *r.Latitude
		result.Longitude = *r.Longitude
		result.HasCoordinates = true
	}
	return result, nil
}

func (c *Client) observe(err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.LookupRequests.WithLabelValues(serviceName, outcome(err)).Inc()
	c.metrics.LookupDuration.WithLabelValues(serviceName).Observe(elapsed.Seconds())
}

func outcome(err error) string {
	var svc *domain.ServiceError
	switch {
	case err == nil:
		return "success"
	case domain.IsConnectivity(err):
		return "connectivity"
	case errors.As(err, &svc):
		return "service_error"
	default:
		return "error"
	}
}

// postcodes.io API response types.

type response struct {
	Status int     `json:"status"`
	Result *result `json:"result"`
	Error  string  `json:"error"`
}

type result struct {
	Latitude  *float64 `json:"latitude"` // null for some non-geographic postcodes
	Longitude *float64 `json:"longitude"`
	Country   string   `json:"country"`
}
