package client

import (
	"net/http"

	"callmon-api/internal/observability/requestid"
)

// RequestIDTransport is an http.RoundTripper that propagates the
// X-Request-Id header from context to outbound HTTP requests, so a
// poll cycle or workflow can be correlated across the PBX and CRM
// collaborators.
type RequestIDTransport struct {
	base http.RoundTripper
}

// NewRequestIDTransport creates a new RequestIDTransport wrapping the
// base transport. If base is nil, defaults to http.DefaultTransport.
func NewRequestIDTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RequestIDTransport{base: base}
}

// RoundTrip implements http.RoundTripper. An X-Request-Id already set
// by the caller takes precedence and is never overwritten.
func (t *RequestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("X-Request-Id") != "" {
		return t.base.RoundTrip(req)
	}

	reqID := requestid.GetRequestID(req.Context())
	if reqID == "" {
		// Not request-scoped (e.g. a background sync cycle started
		// from the ticker); proceed without the header.
		return t.base.RoundTrip(req)
	}

	// Clone before mutating: http.Request.Header is shared.
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("X-Request-Id", reqID)

	return t.base.RoundTrip(clonedReq)
}
