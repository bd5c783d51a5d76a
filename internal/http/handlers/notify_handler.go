package handlers

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/ingest"
)

const maxPushBody = 64 * 1024

// NotifyHandler receives the vendor platform's push notifications. The
// platform retries anything that is not a 200, so every outcome, including a
// rejected signature, is answered 200 with the code in the body.
type NotifyHandler struct {
	ingest *ingest.Service
	logger *zap.Logger
}

// NewNotifyHandler builds handler.
func NewNotifyHandler(svc *ingest.Service, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{ingest: svc, logger: logger}
}

// ServeHTTP handles POST /api/v1/vendor/notify.
func (h *NotifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPushBody))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]int{"code": int(ingest.CodeBadPayload)})
		return
	}

	code := h.ingest.Handle(r.Context(), raw)
	writeJSON(w, http.StatusOK, map[string]int{"code": int(code)})
}
