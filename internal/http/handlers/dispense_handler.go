package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/gateway"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/http/middleware"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/qr"
)

// DispenseHandler accepts client dispense requests, either naming the device
// directly or carrying a signed QR payload scanned off the unit.
type DispenseHandler struct {
	gateway *gateway.Service
	qr      *qr.Codec
	logger  *zap.Logger
}

// NewDispenseHandler builds handler.
func NewDispenseHandler(gw *gateway.Service, codec *qr.Codec, logger *zap.Logger) *DispenseHandler {
	return &DispenseHandler{gateway: gw, qr: codec, logger: logger}
}

type dispenseRequest struct {
	DeviceNo   string `json:"device_no"`
	QRPayload  string `json:"qr_payload"`
	WaterType  int    `json:"water_type"`
	VolumeML   int64  `json:"volume_ml"`
	MaxBalance bool   `json:"max_balance"`
	CapAmount  int64  `json:"cap_amount"`
	RFID       string `json:"rfid"`
}

type dispenseResponse struct {
	OrderNo  string `json:"order_no"`
	DeviceNo string `json:"device_no"`
	Amount   int64  `json:"amount"`
	VolumeML int64  `json:"volume_ml"`
	Status   string `json:"status"`
}

// ServeHTTP handles POST /api/v1/dispense.
func (h *DispenseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "account not resolved")
		return
	}

	var req dispenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}

	deviceNo := req.DeviceNo
	if deviceNo == "" && req.QRPayload != "" {
		decoded, err := h.qr.Decode(req.QRPayload, time.Now())
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_QR", "qr payload rejected")
			return
		}
		deviceNo = decoded
	}

	order, err := h.gateway.Dispense(r.Context(), gateway.Request{
		AccountID:  accountID,
		DeviceNo:   deviceNo,
		WaterType:  req.WaterType,
		VolumeML:   req.VolumeML,
		MaxBalance: req.MaxBalance,
		CapAmount:  req.CapAmount,
		RFID:       req.RFID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dispenseResponse{
		OrderNo:  order.OrderNo,
		DeviceNo: order.DeviceNo,
		Amount:   order.Amount,
		VolumeML: order.RequestedML,
		Status:   publicStatus(order.Status),
	})
}

// publicStatus maps the internal lifecycle onto the three states clients see.
func publicStatus(s models.OrderStatus) string {
	switch s {
	case models.OrderCompleted:
		return "completed"
	case models.OrderFailed:
		return "failed"
	default:
		return "dispensing"
	}
}
