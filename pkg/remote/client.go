package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/internal/telemetry"
	"github.com/gigsync/gigsync/pkg/content"
)

// Header carrying the version marker on content responses and conflict
// bodies.
const versionHeader = "X-Content-Version"

// ClientConfig contains configuration for the HTTP client.
type ClientConfig struct {
	// BaseURL is the service root, e.g. "https://api.gigsync.example".
	BaseURL string

	// Token is an optional bearer token.
	Token string

	// Timeout bounds each request. Defaults to 30s. Callers can tighten
	// it further per call through the context.
	Timeout time.Duration
}

// Client is the HTTP implementation of Service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an HTTP client for the content service.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// conflictBody is the 409 response payload: the server's current state.
type conflictBody struct {
	EntityID      string          `json:"entity_id"`
	ServerVersion string          `json:"server_version"`
	ServerState   json.RawMessage `json:"server_state,omitempty"`
}

// errorBody is the generic error payload.
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) GetContent(ctx context.Context, id content.ID) (*Content, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRemoteGet)
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String(telemetry.AttrContentID, string(id)))

	op := fmt.Sprintf("GET content/%s", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("content/"+string(id)), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if err := c.classify(op, string(id), resp, body); err != nil {
		return nil, err
	}

	return &Content{
		ID:       id,
		MIMEType: resp.Header.Get("Content-Type"),
		Data:     body,
		Version:  resp.Header.Get(versionHeader),
	}, nil
}

func (c *Client) PutContent(ctx context.Context, item *Content) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRemotePut)
	defer span.End()
	telemetry.SetAttributes(ctx, attribute.String(telemetry.AttrContentID, string(item.ID)))

	op := fmt.Sprintf("PUT content/%s", item.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url("content/"+string(item.ID)), bytes.NewReader(item.Data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, item.MIMEType)
	if item.Version != "" {
		req.Header.Set(versionHeader, item.Version)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	return c.classify(op, string(item.ID), resp, body)
}

func (c *Client) DeleteContent(ctx context.Context, id content.ID) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRemoteDelete)
	defer span.End()

	op := fmt.Sprintf("DELETE content/%s", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("content/"+string(id)), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	return c.classify(op, string(id), resp, body)
}

func (c *Client) SyncBatch(ctx context.Context, mutations []Mutation) (*BatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRemoteBatch)
	defer span.End()

	op := "POST sync/content"

	payload, err := json.Marshal(mutations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("sync/content"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if err := c.classify(op, "", resp, body); err != nil {
		return nil, err
	}

	var result BatchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}

	logger.DebugCtx(ctx, "Batch sync completed",
		"sent", len(mutations),
		"succeeded", result.SuccessCount,
		"failed", result.FailureCount)

	return &result, nil
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("health"), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError("GET health", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &NetworkError{Op: "GET health", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + path
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// transportError maps a client-side failure into the taxonomy. Context
// cancellation passes through untouched so callers can tell "caller gave
// up" from "network flaked"; deadline expiry counts as a transient timeout.
func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	timeout := errors.Is(err, context.DeadlineExceeded)
	return &NetworkError{Op: op, Timeout: timeout, Err: err}
}

// classify maps an HTTP response to the error taxonomy. A nil return means
// success.
func (c *Client) classify(op, entityID string, resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode < 400:
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{ID: entityID}

	case resp.StatusCode == http.StatusConflict:
		var cb conflictBody
		if err := json.Unmarshal(body, &cb); err != nil || cb.EntityID == "" {
			cb.EntityID = entityID
		}
		if cb.ServerVersion == "" {
			cb.ServerVersion = resp.Header.Get(versionHeader)
		}
		return &ConflictError{
			EntityID:      cb.EntityID,
			ServerVersion: cb.ServerVersion,
			ServerState:   cb.ServerState,
		}

	case resp.StatusCode >= 500:
		return &NetworkError{Op: op, StatusCode: resp.StatusCode}

	default:
		var eb errorBody
		msg := string(body)
		if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
			msg = eb.Message
		}
		return &ValidationError{StatusCode: resp.StatusCode, Message: msg}
	}
}

var _ Service = (*Client)(nil)
