package handler

import (
	"encoding/json"
	"net/http"

	"callmon-api/internal/domain"
	"callmon-api/internal/http/httperr"
	"callmon-api/internal/observability/logger"
	"callmon-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type TicketHandler struct {
	service *service.TicketService
}

func NewTicketHandler(service *service.TicketService) *TicketHandler {
	return &TicketHandler{service: service}
}

// CreateTicketForCall handles POST /v1/calls/{callId}/ticket
func (h *TicketHandler) CreateTicketForCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	callID := chi.URLParam(r, "callId")

	var req domain.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "invalid JSON body")
		return
	}

	ticketID, err := h.service.CreateTicketForCall(ctx, callID, req)
	if err != nil {
		logger.SetRootError(ctx, err)
		handleServiceError(w, ctx, log, err)
		return
	}

	log.Info(ctx, "ticket endpoint completed",
		logger.Module("http"),
		logger.Action("create_ticket"),
		zap.String("call_id", callID),
		zap.String("ticket_id", ticketID),
	)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":       true,
		"ticketId": ticketID,
	})
}
