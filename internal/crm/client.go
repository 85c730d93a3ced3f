// Package crm is the client for the external customer/ticketing
// service: customer directory lookups by phone number and support
// ticket creation. Like the pbx adapter it performs no retries; ticket
// creation in particular must never be silently duplicated.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callmon-api/internal/domain"
	httpclient "callmon-api/internal/http/client"
	"callmon-api/internal/phone"
)

// Client talks to the CRM/ticketing query surface.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a CRM client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: httpclient.NewUpstreamHTTPClient(timeout),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// customerPayload is the CRM wire representation of a customer.
type customerPayload struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Resolve looks up the customer owning phoneNumber. A non-matching
// lookup is a normal empty result (nil, nil), not an error.
//
// The directory is queried with the canonical trailing digits; the CRM
// returns candidates whose stored numbers contain those digits, and the
// final decision is made here with phone.Match so that "+33611112222"
// and "0611112222" resolve identically regardless of how either side
// formats numbers.
func (c *Client) Resolve(ctx context.Context, phoneNumber string) (*domain.Customer, error) {
	digits := phone.SearchDigits(phoneNumber)
	if digits == "" {
		return nil, nil
	}

	var payload struct {
		Customers []customerPayload `json:"customers"`
	}
	path := "/api/customers?phone=" + url.QueryEscape(digits)
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	for _, p := range payload.Customers {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: customer candidate is missing id", domain.ErrUpstreamProtocol)
		}
		if phone.Match(p.Phone, phoneNumber) {
			return &domain.Customer{
				ID:        p.ID,
				FirstName: p.FirstName,
				LastName:  p.LastName,
				Email:     p.Email,
				Phone:     p.Phone,
			}, nil
		}
	}
	return nil, nil
}

// CreateTicket submits a ticket-creation request and returns the new
// ticket identifier.
func (c *Client) CreateTicket(ctx context.Context, req domain.TicketRequest) (string, error) {
	if req.CustomerID == "" || req.Title == "" {
		return "", fmt.Errorf("%w: customer id and title are required", domain.ErrInvalidArgument)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/tickets", req, &payload); err != nil {
		return "", err
	}
	if payload.ID == "" {
		return "", fmt.Errorf("%w: ticket response is missing id", domain.ErrUpstreamProtocol)
	}
	return payload.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return fmt.Errorf("encode crm request: %w", err)
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
		return fmt.Errorf("build crm request: %w", err)
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
		return fmt.Errorf("%w: %s %s: %v", domain.ErrUpstreamUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
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
