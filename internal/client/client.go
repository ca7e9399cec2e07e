// Package client implements the HTTP client for the SentinelSecure backend
// API. Every operation takes a context, decodes JSON responses into typed
// records, and converts non-2xx responses into structured transport errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelsec/sentinel/internal/config"
	"github.com/sentinelsec/sentinel/internal/errors"
	"github.com/sentinelsec/sentinel/internal/metrics"
)

const defaultUserAgent = "sentinel-cli/1.0"

// Client provides typed access to the backend API.
type Client struct {
	baseURL    string
	listLimit  int
	httpClient *http.Client
	userAgent  string
}

// New creates a backend API client from configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.Backend.Endpoint, "/"),
		listLimit: cfg.Backend.ListLimit,
		httpClient: &http.Client{
			Timeout: cfg.Backend.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
				DisableKeepAlives:  false,
			},
		},
		userAgent: defaultUserAgent,
	}
}

// errorBody is the shape of backend error responses.
type errorBody struct {
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (b errorBody) text() string {
	switch {
	case b.Detail != "":
		return b.Detail
	case b.Error != "":
		return b.Error
	default:
		return b.Message
	}
}

// request performs an HTTP request and decodes the JSON response into out.
// A nil out discards the body. Network failures and non-2xx statuses are
// returned as transport errors carrying the operation name.
func (c *Client) request(ctx context.Context, method, endpoint, operation string, payload, out interface{}) error {
	start := time.Now()
	err := c.do(ctx, method, endpoint, payload, out)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordClientRequest(operation, status, time.Since(start))

	if err != nil {
		if te, ok := err.(*errors.TransportError); ok {
			te.Operation = operation
			return te
		}
		return errors.WrapTransportError("request failed", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var requestBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		requestBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, requestBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.TransportError{
			Code:    errors.CodeBackendUnavailable,
			Message: "backend unreachable",
			Cause:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapTransportError("failed to read response body", "", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var body errorBody
		_ = json.Unmarshal(bodyBytes, &body)
		msg := body.text()
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d error", resp.StatusCode)
		}

		code := errors.CodeTransport
		if resp.StatusCode == http.StatusNotFound {
			code = errors.CodeNotFound
		}
		return (&errors.TransportError{
			Code:    code,
			Message: msg,
		}).WithStatus(resp.StatusCode)
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return errors.WrapTransportError("failed to decode response", "", err)
		}
	}
	return nil
}

// Health performs the backend health check.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.request(ctx, http.MethodGet, "/health", "health", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// DashboardStats fetches aggregated dashboard statistics.
func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.request(ctx, http.MethodGet, "/dashboard/stats", "dashboard_stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListDevices fetches the discovered device list.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	endpoint := fmt.Sprintf("/devices?limit=%d", c.listLimit)
	if err := c.request(ctx, http.MethodGet, endpoint, "list_devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// CreateDevice manually registers a device.
func (c *Client) CreateDevice(ctx context.Context, draft DeviceCreate) (*Device, error) {
	var device Device
	if err := c.request(ctx, http.MethodPost, "/devices", "create_device", draft, &device); err != nil {
		return nil, err
	}
	return &device, nil
}

// ListScans fetches scan history, most recent first.
func (c *Client) ListScans(ctx context.Context, limit int) ([]ScanJob, error) {
	if limit <= 0 {
		limit = c.listLimit
	}
	var scans []ScanJob
	endpoint := fmt.Sprintf("/scans?limit=%d", limit)
	if err := c.request(ctx, http.MethodGet, endpoint, "list_scans", nil, &scans); err != nil {
		return nil, err
	}
	return scans, nil
}

// CreateScan submits a new scan job and returns its handle.
func (c *Client) CreateScan(ctx context.Context, req ScanRequest) (*ScanJob, error) {
	var job ScanJob
	if err := c.request(ctx, http.MethodPost, "/scans", "create_scan", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetScan fetches the current status of one scan job.
func (c *Client) GetScan(ctx context.Context, id string) (*ScanJob, error) {
	var job ScanJob
	endpoint := "/scans/" + id
	if err := c.request(ctx, http.MethodGet, endpoint, "get_scan", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListAlerts fetches threat alerts, most recent first.
func (c *Client) ListAlerts(ctx context.Context, unresolvedOnly bool) ([]Alert, error) {
	var alerts []Alert
	endpoint := fmt.Sprintf("/alerts?limit=%d&unresolved_only=%t", c.listLimit, unresolvedOnly)
	if err := c.request(ctx, http.MethodGet, endpoint, "list_alerts", nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// CreateAlert creates a threat alert.
func (c *Client) CreateAlert(ctx context.Context, draft AlertCreate) (*Alert, error) {
	var alert Alert
	if err := c.request(ctx, http.MethodPost, "/alerts", "create_alert", draft, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ResolveAlert marks an alert resolved and returns the updated record.
func (c *Client) ResolveAlert(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	endpoint := "/alerts/" + id + "/resolve"
	if err := c.request(ctx, http.MethodPatch, endpoint, "resolve_alert", nil, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
