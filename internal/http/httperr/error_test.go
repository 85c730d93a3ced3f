package httperr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"callmon-api/internal/observability/logger"
)

func TestWriteError(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	tests := []struct {
		name           string
		status         int
		code           string
		message        string
		expectedStatus int
		expectedOK     bool
	}{
		{
			name:           "401 Unauthorized",
			status:         http.StatusUnauthorized,
			code:           ErrCodeInvalidToken,
			message:        "invalid token provided",
			expectedStatus: http.StatusUnauthorized,
			expectedOK:     false,
		},
		{
			name:           "404 Not Found",
			status:         http.StatusNotFound,
			code:           ErrCodeNotFound,
			message:        "call not found",
			expectedStatus: http.StatusNotFound,
			expectedOK:     false,
		},
		{
			name:           "400 Bad Request",
			status:         http.StatusBadRequest,
			code:           ErrCodeInvalidParameter,
			message:        "invalid call ID format",
			expectedStatus: http.StatusBadRequest,
			expectedOK:     false,
		},
		{
			name:           "502 Bad Gateway",
			status:         http.StatusBadGateway,
			code:           ErrCodeUpstreamUnavailable,
			message:        "phone system unreachable",
			expectedStatus: http.StatusBadGateway,
			expectedOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, ctx, tt.status, tt.code, tt.message)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}

			var response ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}

			if response.OK != tt.expectedOK {
				t.Errorf("expected ok=%v, got %v", tt.expectedOK, response.OK)
			}

			if response.Error == nil {
				t.Fatal("expected error detail, got nil")
			}

			if response.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, response.Error.Code)
			}

			if response.Error.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, response.Error.Message)
			}

			contentType := rr.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", contentType)
			}
		})
	}
}

func TestWriteErrorWithFields(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	rr := httptest.NewRecorder()
	fields := map[string]string{
		"title": "must not be empty",
		"note":  "must be at most 4000 characters",
	}

	WriteErrorWithFields(rr, ctx, http.StatusBadRequest, ErrCodeValidationError, "validation failed", fields)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.OK {
		t.Error("expected ok=false")
	}

	if response.Error == nil {
		t.Fatal("expected error detail, got nil")
	}

	if len(response.Error.Fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(response.Error.Fields))
	}

	if response.Error.Fields["title"] != "must not be empty" {
		t.Errorf("unexpected title field value: %s", response.Error.Fields["title"])
	}
}

func TestUnauthorized401(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	rr := httptest.NewRecorder()
	Unauthorized401(rr, ctx, ErrCodeInvalidToken, "token is invalid")

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Error.Code != ErrCodeInvalidToken {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidToken, response.Error.Code)
	}
}

func TestConflict409(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	rr := httptest.NewRecorder()
	Conflict409(rr, ctx, ErrCodeAlreadyLinked, "call already has a ticket")

	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Error.Code != ErrCodeAlreadyLinked {
		t.Errorf("expected code %s, got %s", ErrCodeAlreadyLinked, response.Error.Code)
	}
}

func TestTooManyRequests429(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	rr := httptest.NewRecorder()
	TooManyRequests429(rr, ctx, "rate limit exceeded")

	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rr.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Error.Code != ErrCodeRateLimited {
		t.Errorf("expected code %s, got %s", ErrCodeRateLimited, response.Error.Code)
	}
}

func TestInternalError500(t *testing.T) {
	log, _ := logger.New("test", "info")
	ctx := logger.SetLoggerInContext(context.Background(), log)

	rr := httptest.NewRecorder()
	InternalError500(rr, ctx, "snapshot publication failed")

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rr.Code)
	}

	var response ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Error.Code != ErrCodeInternalError {
		t.Errorf("expected code %s, got %s", ErrCodeInternalError, response.Error.Code)
	}
}
