package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError is a client fault: malformed or missing input.
// Field names the offending input when one can be identified.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientRollWeightError reports a fabric roll with less available
// weight than the lot requested.
type InsufficientRollWeightError struct {
	RollNumber string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientRollWeightError) Error() string {
	return fmt.Sprintf("insufficient weight for roll %s: available %s, requested %s",
		e.RollNumber, e.Available.String(), e.Requested.String())
}

// InsufficientRemainderError reports a downstream consumption request that
// exceeds what remains for a (lot, size) pair.
type InsufficientRemainderError struct {
	LotNumber string
	SizeLabel string
	Remaining int
	Requested int
}

func (e *InsufficientRemainderError) Error() string {
	return fmt.Sprintf("insufficient remainder for lot %s size %s: remaining %d, requested %d",
		e.LotNumber, e.SizeLabel, e.Remaining, e.Requested)
}

// LockTimeoutError wraps a row-lock wait that exceeded the session's
// innodb_lock_wait_timeout. Transient; safe for the caller to retry.
type LockTimeoutError struct {
	Resource string
	Err      error
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock wait timeout on %s: %v", e.Resource, e.Err)
}

func (e *LockTimeoutError) Unwrap() error { return e.Err }

// IsLockWaitTimeout reports whether err is MySQL error 1205.
func IsLockWaitTimeout(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "Error 1205") ||
		strings.Contains(err.Error(), "Lock wait timeout exceeded")
}

// IsClientError reports whether err should surface as a 4xx with its own
// message; anything else is logged and rendered generically.
func IsClientError(err error) bool {
	var ve *ValidationError
	var re *InsufficientRollWeightError
	var ce *InsufficientRemainderError
	return errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &ce) ||
		errors.Is(err, ErrorRecordNotFound)
}
