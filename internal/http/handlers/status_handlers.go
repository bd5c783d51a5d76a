package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// DeviceLink reports process-local connectivity.
type DeviceLink interface {
	IsConnected(deviceNo string) bool
}

// StatusLookup reads the cluster-visible device status record.
type StatusLookup interface {
	Lookup(ctx context.Context, deviceNo string) (online bool, local bool, err error)
}

// OrderReader fetches orders for the status endpoint.
type OrderReader interface {
	GetByOrderNo(ctx context.Context, orderNo string) (*models.WaterOrder, error)
}

// StatusHandlers serves the read-only status endpoints.
type StatusHandlers struct {
	link   DeviceLink
	status StatusLookup
	orders OrderReader
	logger *zap.Logger
}

// NewStatusHandlers builds handlers.
func NewStatusHandlers(link DeviceLink, status StatusLookup, orders OrderReader, logger *zap.Logger) *StatusHandlers {
	return &StatusHandlers{link: link, status: status, orders: orders, logger: logger}
}

// DeviceStatus handles GET /api/v1/devices/{no}/status. A device counts as
// online if this process holds its socket or the shared record says some
// instance does.
func (h *StatusHandlers) DeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceNo := pathSegment(r.URL.Path, "/api/v1/devices/", "/status")
	if deviceNo == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "device number required")
		return
	}

	online := h.link.IsConnected(deviceNo)
	if !online {
		recorded, _, err := h.status.Lookup(r.Context(), deviceNo)
		if err != nil {
			h.logger.Warn("status record lookup failed",
				zap.String("device_no", deviceNo), zap.Error(err))
		} else {
			online = recorded
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_no": deviceNo,
		"online":    online,
	})
}

// OrderStatus handles GET /api/v1/orders/{no}/status.
func (h *StatusHandlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderNo := pathSegment(r.URL.Path, "/api/v1/orders/", "/status")
	if orderNo == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "order number required")
		return
	}

	order, err := h.orders.GetByOrderNo(r.Context(), orderNo)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"order_no": order.OrderNo,
		"status":   publicStatus(order.Status),
	})
}

func pathSegment(path, prefix, suffix string) string {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	segment := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if strings.Contains(segment, "/") {
		return ""
	}
	return segment
}
