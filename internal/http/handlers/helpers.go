package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/gateway"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}

// writeDomainError maps domain sentinels onto structured response codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrValidation):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, models.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE", "balance does not cover the requested dispense")
	case errors.Is(err, models.ErrDeviceOnRemote):
		writeError(w, http.StatusConflict, "DEVICE_ON_REMOTE_TCP", "device is connected to another server instance")
	case errors.Is(err, models.ErrDeviceOffline):
		writeError(w, http.StatusServiceUnavailable, "DEVICE_OFFLINE", "device is not reachable")
	case errors.Is(err, models.ErrTransportFailure):
		writeError(w, http.StatusBadGateway, "TCP_SEND_FAILED", "command could not be delivered; funds were returned")
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "record not found")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
