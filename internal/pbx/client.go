// Package pbx is the client adapter for the external PBX HTTP API.
// It translates requests into PBX calls and normalizes responses into
// the domain model. Pure translation: no state, no retries — retry and
// backoff policy stays centralized in the sync engine.
package pbx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callmon-api/internal/domain"
	httpclient "callmon-api/internal/http/client"
)

// Client talks to the PBX query surface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a PBX client. baseURL is the PBX API root
// (e.g. "https://pbx.internal:8443"); apiKey may be empty for
// unauthenticated test instances.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: httpclient.NewUpstreamHTTPClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// callPayload is the PBX wire representation of a call.
type callPayload struct {
	ID              string  `json:"id"`
	Direction       string  `json:"direction"`
	Caller          string  `json:"caller"`
	Recipient       string  `json:"recipient"`
	CallerName      string  `json:"caller_name"`
	RecipientName   string  `json:"recipient_name"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"started_at"`
	DurationSeconds *int64  `json:"duration_seconds"`
	RecordingURL    string  `json:"recording_url"`
}

// extensionPayload is the PBX wire representation of an agent line.
type extensionPayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Status string `json:"status"`
}

// FetchCallHistory returns the most recent calls, most-recent-first,
// bounded by limit.
func (c *Client) FetchCallHistory(ctx context.Context, limit int) ([]domain.Call, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidArgument)
	}

	var payload struct {
		Calls []callPayload `json:"calls"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/calls?limit="+strconv.Itoa(limit), nil, &payload); err != nil {
		return nil, err
	}

	calls := make([]domain.Call, 0, len(payload.Calls))
	for _, p := range payload.Calls {
		call, err := p.toDomain()
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// FetchExtensions returns the current extension snapshot.
func (c *Client) FetchExtensions(ctx context.Context) ([]domain.Extension, error) {
	var payload struct {
		Extensions []extensionPayload `json:"extensions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/extensions", nil, &payload); err != nil {
		return nil, err
	}

	exts := make([]domain.Extension, 0, len(payload.Extensions))
	for _, p := range payload.Extensions {
		ext, err := p.toDomain()
		if err != nil {
			return nil, err
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

// FetchCallDetail returns one call by identifier.
func (c *Client) FetchCallDetail(ctx context.Context, callID string) (domain.Call, error) {
	if callID == "" {
		return domain.Call{}, fmt.Errorf("%w: call id is empty", domain.ErrInvalidArgument)
	}

	var payload callPayload
	if err := c.do(ctx, http.MethodGet, "/api/calls/"+callID, nil, &payload); err != nil {
		return domain.Call{}, err
	}
	return payload.toDomain()
}

// InitiateCall asks the PBX to place a call from an extension to a
// destination number.
func (c *Client) InitiateCall(ctx context.Context, fromExtension, toNumber string) error {
	if fromExtension == "" || toNumber == "" {
		return fmt.Errorf("%w: from and to are required", domain.ErrInvalidArgument)
	}

	body := map[string]string{"from": fromExtension, "to": toNumber}
	return c.do(ctx, http.MethodPost, "/api/calls", body, nil)
}

// do executes one request and maps transport/shape failures onto the
// shared error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode pbx request: %w", err)
		}
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("build pbx request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and refused connections alike: the PBX is unreachable.
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrUpstreamUnavailable, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", domain.ErrUpstreamProtocol, method, path, err)
	}
	return nil
}

func (p callPayload) toDomain() (domain.Call, error) {
	if p.ID == "" {
		return domain.Call{}, fmt.Errorf("%w: call is missing id", domain.ErrUpstreamProtocol)
	}
	if p.Caller == "" || p.Recipient == "" {
		return domain.Call{}, fmt.Errorf("%w: call %s is missing caller or recipient", domain.ErrUpstreamProtocol, p.ID)
	}

	direction, err := parseDirection(p.Direction)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call %s: %w", p.ID, err)
	}

	status, err := parseStatus(p.Status)
	if err != nil {
		return domain.Call{}, fmt.Errorf("call %s: %w", p.ID, err)
	}

	occurredAt, err := time.Parse(time.RFC3339, p.StartedAt)
	if err != nil {
		return domain.Call{}, fmt.Errorf("%w: call %s has invalid started_at %q", domain.ErrUpstreamProtocol, p.ID, p.StartedAt)
	}

	call := domain.Call{
		ID:            p.ID,
		Direction:     direction,
		Caller:        p.Caller,
		Recipient:     p.Recipient,
		CallerName:    p.CallerName,
		RecipientName: p.RecipientName,
		Status:        status,
		OccurredAt:    occurredAt,
		RecordingURL:  p.RecordingURL,
	}

	// Duration is only meaningful once the call has ended.
	if status.Terminal() && p.DurationSeconds != nil {
		d := *p.DurationSeconds
		call.DurationSeconds = &d
	}

	return call, nil
}

func (p extensionPayload) toDomain() (domain.Extension, error) {
	if p.ID == "" || p.Number == "" {
		return domain.Extension{}, fmt.Errorf("%w: extension is missing id or number", domain.ErrUpstreamProtocol)
	}

	return domain.Extension{
		ID:     p.ID,
		Name:   p.Name,
		Number: p.Number,
		Status: parseExtensionStatus(p.Status),
	}, nil
}

func parseDirection(s string) (domain.Direction, error) {
	switch strings.ToLower(s) {
	case "inbound", "in":
		return domain.DirectionInbound, nil
	case "outbound", "out":
		return domain.DirectionOutbound, nil
	default:
		return "", fmt.Errorf("%w: unknown direction %q", domain.ErrUpstreamProtocol, s)
	}
}

// parseStatus folds the PBX's vendor statuses onto the three states
// the engine tracks. Routing/ringing/talking are all "in progress".
func parseStatus(s string) (domain.CallStatus, error) {
	switch strings.ToLower(s) {
	case "active", "ringing", "routing", "talking":
		return domain.CallActive, nil
	case "completed", "answered":
		return domain.CallCompleted, nil
	case "missed", "no_answer", "noanswer", "cancelled":
		return domain.CallMissed, nil
	default:
		return "", fmt.Errorf("%w: unknown call status %q", domain.ErrUpstreamProtocol, s)
	}
}

func parseExtensionStatus(s string) domain.ExtensionStatus {
	switch strings.ToLower(s) {
	case "available", "idle":
		return domain.ExtensionAvailable
	case "busy", "oncall", "dnd":
		return domain.ExtensionBusy
	case "offline", "unregistered":
		return domain.ExtensionOffline
	default:
		// Extension status is advisory; an unknown value must not
		// fail a whole sync cycle.
		return domain.ExtensionOther
	}
}
