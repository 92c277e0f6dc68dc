package rterrors

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// decision artifact; all wrap ErrMalformedArtifact so callers can treat
	// any of them as fatal-before-side-effects with a single errors.Is check
	ErrMalformedArtifact     = errors.New("malformed decision artifact")
	ErrMissingDecisionColumn = fmt.Errorf("%w: no decision column", ErrMalformedArtifact)
	ErrMissingSerialColumn   = fmt.Errorf("%w: no serialNumber column", ErrMalformedArtifact)
	ErrInvalidDecisionValue  = fmt.Errorf("%w: decision must be one of Keep, Delete or empty", ErrMalformedArtifact)

	// devices
	ErrMissingSerialNumber = errors.New("device has no serial number")
	ErrNotFound            = errors.New("object not found")
	ErrDuplicateRunID      = errors.New("a run with this id was already recorded")

	// run setup
	ErrConfigInvalid         = errors.New("invalid retirement configuration")
	ErrConfirmationDeclined  = errors.New("batch confirmation declined")
	ErrConfirmerNotWired     = errors.New("confirmation required but no confirmer configured")
	ErrEligibilityLookupFail = errors.New("group lookup failed")
)

// ServiceError wraps a failure returned by one of the three external systems
// during a teardown phase. Transient distinguishes connectivity/timeout
// failures from permanent rejections; both are terminal for the phase in the
// current run (re-running the batch is the retry mechanism).
type ServiceError struct {
	System    string
	Op        string
	Transient bool
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.System, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func NewServiceError(system, op string, transient bool, err error) *ServiceError {
	return &ServiceError{System: system, Op: op, Transient: transient, Err: err}
}

func ErrorFromGormError(err error) error {
	switch err {
	case nil:
		return nil
	case gorm.ErrRecordNotFound:
		return ErrNotFound
	case gorm.ErrDuplicatedKey:
		return ErrDuplicateRunID
	default:
		return err
	}
}
