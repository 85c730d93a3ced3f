package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"callmon-api/internal/domain"
	"callmon-api/internal/http/httperr"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CallHandler struct {
	service *service.CallService
}

func NewCallHandler(service *service.CallService) *CallHandler {
	return &CallHandler{service: service}
}

// GetCalls handles GET /v1/calls
// Serves the latest published snapshot; never blocks on the PBX.
func (h *CallHandler) GetCalls(w http.ResponseWriter, r *http.Request) {
	snap := h.service.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

// RefreshCalls handles POST /v1/calls/refresh
// Schedules an out-of-cycle sync and returns immediately.
func (h *CallHandler) RefreshCalls(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	h.service.RequestRefresh()

	log.Info(ctx, "refresh requested",
		logger.Module("http"),
		logger.Action("refresh_calls"),
	)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok":     true,
		"status": "refresh scheduled",
	})
}

// GetCall handles GET /v1/calls/{callId}
func (h *CallHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	callID := chi.URLParam(r, "callId")

	call, err := h.service.Detail(ctx, callID)
	if err != nil {
		logger.SetRootError(ctx, err)
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, call)
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// handleServiceError maps service errors to HTTP responses
func handleServiceError(w http.ResponseWriter, ctx context.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		log.Warn(ctx, "invalid request", zap.Error(err))
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		log.Debug(ctx, "resource not found", zap.Error(err))
		httperr.NotFound404(w, ctx, "call not found")
	case errors.Is(err, domain.ErrCustomerRequired):
		log.Warn(ctx, "no customer matched", zap.Error(err))
		httperr.UnprocessableEntity422(w, ctx, httperr.ErrCodeCustomerRequired, "no customer matches the call's counterparty")
	case errors.Is(err, domain.ErrAlreadyLinked):
		log.Warn(ctx, "call already linked", zap.Error(err))
		httperr.Conflict409(w, ctx, httperr.ErrCodeAlreadyLinked, "call already has a linked ticket")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		log.Error(ctx, "upstream unavailable", zap.Error(err))
		httperr.BadGateway502(w, ctx, httperr.ErrCodeUpstreamUnavailable, "upstream system unavailable")
	case errors.Is(err, domain.ErrUpstreamProtocol):
		log.Error(ctx, "upstream protocol error", zap.Error(err))
		httperr.BadGateway502(w, ctx, httperr.ErrCodeUpstreamProtocol, "upstream system returned a malformed response")
	default:
		log.Error(ctx, "unhandled internal server error", zap.Error(err), zap.String("error_details", err.Error()))
		httperr.InternalError500(w, ctx, "an internal error occurred")
	}
}
