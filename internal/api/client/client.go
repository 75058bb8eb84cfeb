// Package client implements the JSON REST contract of the remote
// generation service: live turn submission plus the batch synchronization
// endpoint the offline engine drains into.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/storyloom/internal/api/auth"
	"github.com/louisbranch/storyloom/internal/offline"
	"github.com/louisbranch/storyloom/internal/platform/timeouts"
)

// Client calls the remote generation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *auth.TokenSource
	tracer     trace.Tracer
}

// New creates a client for the service at baseURL. tokens may be nil for
// anonymous calls; httpClient defaults to one with the shared request
// timeout.
func New(baseURL string, tokens *auth.TokenSource, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeouts.HTTPRequest}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     tokens,
		tracer:     otel.Tracer("storyloom/api"),
	}, nil
}

type syncRequest struct {
	Actions []offline.Action `json:"actions"`
}

// SyncActions submits one ordered batch of pending actions and returns the
// server's per-item settlement. Any transport error or non-2xx status is
// returned as an error, which the coordinator treats as the whole batch
// having failed.
func (c *Client) SyncActions(ctx context.Context, batch []offline.Action) (offline.SyncResult, error) {
	ctx, span := c.tracer.Start(ctx, "api.sync_actions",
		trace.WithAttributes(attribute.Int("sync.batch_size", len(batch))))
	defer span.End()

	var result offline.SyncResult
	if err := c.postJSON(ctx, "/v1/sync", syncRequest{Actions: batch}, &result); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "sync actions failed")
		return offline.SyncResult{}, fmt.Errorf("sync actions: %w", err)
	}
	return result, nil
}

type turnRequest struct {
	Input json.RawMessage `json:"input"`
}

// SubmitTurn sends player input for live narrative generation and returns
// the updated session snapshot.
func (c *Client) SubmitTurn(ctx context.Context, sessionID string, input json.RawMessage) (json.RawMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ctx, span := c.tracer.Start(ctx, "api.submit_turn")
	defer span.End()

	var snapshot json.RawMessage
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/turns"
	if err := c.postJSON(ctx, path, turnRequest{Input: input}, &snapshot); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "submit turn failed")
		return nil, fmt.Errorf("submit turn: %w", err)
	}
	return snapshot, nil
}

// Game fetches the authoritative session snapshot, used to refresh the
// local cache read-through style.
func (c *Client) Game(ctx context.Context, sessionID string) (json.RawMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	c.authorize(req)

	var snapshot json.RawMessage
	if err := c.do(req, &snapshot); err != nil {
		return nil, fmt.Errorf("get game: %w", err)
	}
	return snapshot, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
