package inspect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultVisionTimeout = 30 * time.Second
	inspectionsPath      = "/v1/inspections"
)

// ClientOption is a functional option for configuring a [Client].
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. Default: 30s; vision inference
// on a full camera frame is slow.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient sets the underlying HTTP client. Primarily used in tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements [Vision] against the HTTP vision backend. Images travel
// base64-encoded inside the JSON request body.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Vision = (*Client)(nil)

// NewClient creates a vision client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		token:      token,
		timeout:    defaultVisionTimeout,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type inspectionRequest struct {
	Image          string `json:"image"` // base64-encoded JPEG
	VoiceText      string `json:"voice_text,omitempty"`
	EquipmentID    string `json:"equipment_id"`
	EquipmentModel string `json:"equipment_model,omitempty"`
}

type visionError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Inspect submits one camera frame for analysis and returns the structured
// findings.
func (c *Client) Inspect(ctx context.Context, req Request) (*Result, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("inspect: empty image")
	}

	body, err := json.Marshal(inspectionRequest{
		Image:          base64.StdEncoding.EncodeToString(req.Image),
		VoiceText:      req.VoiceText,
		EquipmentID:    req.EquipmentID,
		EquipmentModel: req.EquipmentModel,
	})
	if err != nil {
		return nil, fmt.Errorf("inspect: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+inspectionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inspect: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inspect: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ve visionError
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &ve) == nil && ve.Error.Message != "" {
			return nil, fmt.Errorf("inspect: backend returned %s: %s", resp.Status, ve.Error.Message)
		}
		return nil, fmt.Errorf("inspect: backend returned %s", resp.Status)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("inspect: decode response: %w", err)
	}
	return &res, nil
}
