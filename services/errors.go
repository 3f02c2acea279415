package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindBusiness   ErrorKind = "business"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInternal   ErrorKind = "internal"
)

// Machine-readable tags carried by business-rule failures.
const (
	ErrTypeInsufficientFunds = "insufficient_funds"
	ErrTypeNoInvestors       = "no_investors"
	ErrTypeLoanOverpayment   = "loan_overpayment"
	ErrTypeNoOutstandingLoan = "no_outstanding_loan"
	ErrTypeInactiveCycle     = "inactive_cycle"
	ErrTypeNotVSLA           = "not_vsla"
	ErrTypeInvalidStatus     = "invalid_status"
)

// LedgerError is returned by every service operation that fails. Message is
// safe to show to the caller; Err keeps the underlying cause for logs.
type LedgerError struct {
	Kind    ErrorKind
	Type    string
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *LedgerError {
	return &LedgerError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func businessError(errType, format string, args ...any) *LedgerError {
	return &LedgerError{Kind: KindBusiness, Type: errType, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) *LedgerError {
	return &LedgerError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func internalError(message string, err error) *LedgerError {
	return &LedgerError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the kind of err, treating anything that is not a
// LedgerError as internal.
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	var dup *DuplicateMeetingError
	if errors.As(err, &dup) {
		return KindConflict
	}
	return KindInternal
}

// DuplicateMeetingError is returned when a meeting with the same local_id
// was already submitted.
type DuplicateMeetingError struct {
	LocalID          string
	MeetingID        uuid.UUID
	MeetingNumber    int
	ProcessingStatus string
}

func (e *DuplicateMeetingError) Error() string {
	return fmt.Sprintf("meeting with local_id %q already exists (id %s)", e.LocalID, e.MeetingID)
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// asLedgerError passes LedgerErrors through and wraps everything else.
func asLedgerError(message string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return le
	}
	return internalError(message, err)
}
