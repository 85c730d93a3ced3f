package client

import (
	"net/http"
	"time"
)

// NewUpstreamHTTPClient creates an http.Client for calls against the
// PBX and CRM collaborators.
//
// Includes:
// - Request ID propagation via RequestIDTransport
// - A hard per-request timeout (a timed-out upstream call is treated
//   as upstream-unavailable by the adapters, never retried here)
// - Connection pooling via DefaultTransport
//
// http.DefaultClient has zero timeouts, which can hang a sync cycle
// indefinitely; this client enforces deterministic behavior.
func NewUpstreamHTTPClient(timeout time.Duration) *http.Client {
	baseTransport := http.DefaultTransport.(*http.Transport).Clone()
	transport := NewRequestIDTransport(baseTransport)

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
