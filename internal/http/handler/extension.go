package handler

import (
	"net/http"

	"callmon-api/internal/observability/logger"
	"callmon-api/internal/service"
)

type ExtensionHandler struct {
	service *service.CallService
}

func NewExtensionHandler(service *service.CallService) *ExtensionHandler {
	return &ExtensionHandler{service: service}
}

// ListExtensions handles GET /v1/extensions
// Fetches live from the PBX rather than the snapshot, so the status
// reflects the moment of the request.
func (h *ExtensionHandler) ListExtensions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	extensions, err := h.service.Extensions(ctx)
	if err != nil {
		logger.SetRootError(ctx, err)
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"extensions": extensions,
	})
}
