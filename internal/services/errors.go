package services

import (
	"errors"
	"fmt"
)

// Sentinel errors let the HTTP layer map failures to responses without
// string matching.
var (
	ErrAuthRequired        = errors.New("authentication required")
	ErrForbidden           = errors.New("forbidden")
	ErrDeviceNotConfigured = errors.New("device not configured")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrAlreadyExited       = errors.New("ticket already exited")
	ErrTicketCancelled     = errors.New("ticket cancelled")
	ErrOffline             = errors.New("device is offline")
	ErrSyncInProgress      = errors.New("sync already in progress")
)

// ValidationError reports the specific field the caller must correct.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
