package handler

import (
	"encoding/json"
	"net/http"

	"callmon-api/internal/domain"
	"callmon-api/internal/http/httperr"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/service"

	"go.uber.org/zap"
)

type DialHandler struct {
	service *service.DialService
}

func NewDialHandler(service *service.DialService) *DialHandler {
	return &DialHandler{service: service}
}

// PlaceCall handles POST /v1/calls/dial
func (h *DialHandler) PlaceCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	var req domain.PlaceCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "invalid JSON body")
		return
	}

	if err := h.service.PlaceCall(ctx, req); err != nil {
		logger.SetRootError(ctx, err)
		handleServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "dial endpoint completed",
		logger.Module("http"),
		logger.Action("place_call"),
		zap.String("from_extension", req.From),
	)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"ok":     true,
		"status": "call initiated",
	})
}
