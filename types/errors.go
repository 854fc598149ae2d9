package types

import (
	"errors"
	"fmt"
)

// Error codes
const (
	ErrNotFound                  = "NOT_FOUND"
	ErrInvalidReference          = "INVALID_REFERENCE"
	ErrAmountMismatch            = "AMOUNT_MISMATCH"
	ErrAddressMismatch           = "ADDRESS_MISMATCH"
	ErrInsufficientConfirmations = "INSUFFICIENT_CONFIRMATIONS"
	ErrReplayBlocked             = "REPLAY_BLOCKED"
	ErrUnimplemented             = "UNIMPLEMENTED"
	ErrTransactionFailed         = "TRANSACTION_FAILED"
	ErrIntentClosed              = "INTENT_CLOSED"
	ErrIntentExpired             = "INTENT_EXPIRED"
	ErrGoalReached               = "GOAL_REACHED"
	ErrValidation                = "VALIDATION_ERROR"
	ErrConfig                    = "CONFIG_ERROR"
	ErrNetwork                   = "NETWORK_ERROR"
	ErrDerivation                = "DERIVATION_FAILURE"
)

// ErrorKind groups error codes by how a caller should react to them.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindValidation    ErrorKind = "validation"
	KindRejection     ErrorKind = "rejection"
	KindDerivation    ErrorKind = "derivation"
)

var codeKinds = map[string]ErrorKind{
	ErrNotFound:                  KindRejection,
	ErrInvalidReference:          KindRejection,
	ErrAmountMismatch:            KindRejection,
	ErrAddressMismatch:           KindRejection,
	ErrInsufficientConfirmations: KindRejection,
	ErrReplayBlocked:             KindRejection,
	ErrUnimplemented:             KindRejection,
	ErrTransactionFailed:         KindRejection,
	ErrIntentClosed:              KindValidation,
	ErrIntentExpired:             KindValidation,
	ErrGoalReached:               KindValidation,
	ErrValidation:                KindValidation,
	ErrConfig:                    KindConfiguration,
	ErrNetwork:                   KindConfiguration,
	ErrDerivation:                KindDerivation,
}

// DonateError is the typed error returned by every engine operation.
type DonateError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *DonateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Kind returns the category of the error code.
func (e *DonateError) Kind() ErrorKind {
	return codeKinds[e.Code]
}

// WithData attaches a detail field and returns the same error.
func (e *DonateError) WithData(key string, value any) *DonateError {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// NewError builds a DonateError with a formatted message.
func NewError(code, format string, args ...any) *DonateError {
	return &DonateError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode extracts the code of a wrapped DonateError, or "".
func ErrorCode(err error) string {
	var de *DonateError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err wraps a DonateError with the given code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// IsRejection reports whether err is a verification rejection, which
// leaves intent state untouched.
func IsRejection(err error) bool {
	var de *DonateError
	return errors.As(err, &de) && de.Kind() == KindRejection
}
