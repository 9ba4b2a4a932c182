package epc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/observability"
)

const (
	serviceDirectory   = "epc-directory"
	serviceCertificate = "epc-certificate"

	// maxBody bounds a registry response; address lists for a single postcode
	// are a few kilobytes.
	maxBody = 4 << 20
)

// Client implements domain.CertificateDirectory against the certificate
// registry proxy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a certificate registry client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// AddressesByPostcode lists the addresses with a certificate under postcode,
// in registry order.
func (c *Client) AddressesByPostcode(ctx context.Context, postcode string) ([]domain.AddressCertificate, error) {
	start := time.Now()
	entries, err := c.addresses(ctx, postcode)
	c.observe(serviceDirectory, err, time.Since(start))
	return entries, err
}

func (c *Client) addresses(ctx context.Context, postcode string) ([]domain.AddressCertificate, error) {
	result, err := c.get(ctx, serviceDirectory, url.Values{"postcode": {postcode}})
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return nil, &domain.ServiceError{Service: serviceDirectory, Status: http.StatusOK, Message: "result is not a list"}
	}

	var entries []domain.AddressCertificate
	result.ForEach(func(_, pair gjson.Result) bool {
		addr := pair.Get("0").String()
		id := pair.Get("1").String()
		if addr == "" || id == "" {
			c.logger.Debug("skipping malformed directory entry", "postcode", postcode, "entry", pair.Raw)
			return true
		}
		entries = append(entries, domain.AddressCertificate{Address: addr, CertificateID: id})
		return true
	})
	return entries, nil
}

// Certificate fetches the raw estimate text of one certificate.
func (c *Client) Certificate(ctx context.Context, id string) (domain.CertificateText, error) {
	start := time.Now()
	text, err := c.certificate(ctx, id)
	c.observe(serviceCertificate, err, time.Since(start))
	return text, err
}

func (c *Client) certificate(ctx context.Context, id string) (domain.CertificateText, error) {
	result, err := c.get(ctx, serviceCertificate, url.Values{"certificate": {id}})
	if err != nil {
		return domain.CertificateText{}, err
	}
	if !result.IsObject() {
		return domain.CertificateText{}, &domain.ServiceError{Service: serviceCertificate, Status: http.StatusOK, Message: "result is not an object"}
	}
	return domain.CertificateText{
		SpaceHeating: result.Get("space-heating").String(),
		FloorArea:    result.Get("floor-area").String(),
	}, nil
}

// get issues one registry query and returns its "result" member. The proxy
// reports failures as {"status": N, "error": "..."} bodies.
func (c *Client) get(ctx context.Context, service string, params url.Values) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %s request: %w", domain.ErrConnectivity, service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read %s response: %w", domain.ErrConnectivity, service, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &domain.ServiceError{Service: service, Status: resp.StatusCode, Message: "invalid JSON response"}
	}

	status := int(gjson.GetBytes(body, "status").Int())
	if status == 0 {
		status = resp.StatusCode
	}
	result := gjson.GetBytes(body, "result")
	if resp.StatusCode != http.StatusOK || status != http.StatusOK || !result.Exists() {
		return gjson.Result{}, &domain.ServiceError{
			Service: service,
			Status:  status,
			Message: gjson.GetBytes(body, "error").String(),
		}
	}
	return result, nil
}

func (c *Client) observe(service string, err error, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	var svc *domain.ServiceError
	switch {
	case err == nil:
	case domain.IsConnectivity(err):
		outcome = "connectivity"
	case errors.As(err, &svc):
		outcome = "service_error"
	default:
		outcome = "error"
	}
	c.metrics.LookupRequests.WithLabelValues(service, outcome).Inc()
	c.metrics.LookupDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}
