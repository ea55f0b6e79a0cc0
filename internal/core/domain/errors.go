package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")
	// ErrTransaction marks a multi-statement change that could not be applied
	// as a whole. The store guarantees nothing was committed.
	ErrTransaction = errors.New("transaction failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Validationf builds an ErrValidation-kind error with a formatted reason.
func Validationf(operation, format string, args ...any) error {
	return WrapError(ErrValidation, operation, fmt.Errorf(format, args...))
}

// NotFound builds an ErrNotFound-kind error for an entity id.
func NotFound(entity, id string) error {
	return WrapError(ErrNotFound, "get "+entity, fmt.Errorf("%s id=%s", entity, id))
}

const (
	ConflictMeasurementsExist = "measurements_exist"
	ConflictStaleCalibration  = "stale_calibration"
	ConflictMapNotReady       = "map_not_ready"
	ConflictMapNotCalibrated  = "map_not_calibrated"
	ConflictDuplicateVersion  = "duplicate_version"
	ConflictInvalidTransition = "invalid_transition"
)

// ConflictError reports a state conflict with enough detail for the caller
// to decide whether to retry with force or re-fetch state.
type ConflictError struct {
	Reason               string    `json:"reason"`
	Message              string    `json:"message"`
	ExistingMeasurements int       `json:"existingMeasurements,omitempty"`
	CurrentVersion       int       `json:"currentVersion"`
	Status               MapStatus `json:"status,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.Message == "" {
		return "conflict: " + e.Reason
	}
	return "conflict: " + e.Message
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// AsConflict extracts conflict details from an error chain.
func AsConflict(err error) (*ConflictError, bool) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
