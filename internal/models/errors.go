package models

import "errors"

// Shared sentinels. The HTTP layer maps these to structured response codes;
// everything else tests them with errors.Is.
var (
	ErrNotFound            = errors.New("record not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadySettled      = errors.New("order already settled")
	ErrDeviceOffline       = errors.New("device offline")
	// ErrDeviceOnRemote is returned when the shared status record reports the
	// device online but its socket is held by a different server instance.
	// Device affinity is process-local; see the dispense gateway.
	ErrDeviceOnRemote   = errors.New("device connected to another instance")
	ErrTransportFailure = errors.New("device command send failed")
)
