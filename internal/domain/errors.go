package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the machine-readable error classification reported to callers.
type ErrorKind string

const (
	KindAuthFailure            ErrorKind = "authentication_failure"
	KindUnknownSymbol          ErrorKind = "unknown_symbol"
	KindMissingField           ErrorKind = "missing_field"
	KindInvalidStopDistance    ErrorKind = "invalid_stop_distance"
	KindZeroQuantity           ErrorKind = "zero_quantity"
	KindEntryOrderFailure      ErrorKind = "entry_order_failure"
	KindProtectiveOrderFailure ErrorKind = "protective_order_failure"
	KindAccountUnavailable     ErrorKind = "account_data_unavailable"
	KindCatalogUnavailable     ErrorKind = "catalog_unavailable"
)

// ClientFault reports whether the kind is the caller's fault (bad input)
// rather than an upstream/venue problem.
func (k ErrorKind) ClientFault() bool {
	switch k {
	case KindUnknownSymbol, KindMissingField, KindInvalidStopDistance, KindZeroQuantity:
		return true
	}
	return false
}

// Error is a classified error. Use errors.As to recover the kind at the API
// boundary.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err with a classification and message.
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ProtectiveOrderError reports a partial bracket failure: the entry order was
// placed but one of the protective legs was not. It records which legs exist
// and what cleanup was attempted so the caller can reconcile manually if the
// cleanup itself failed.
type ProtectiveOrderError struct {
	EntryOrderID      int64
	TakeProfitOrderID int64 // 0 if never placed
	StopLossOrderID   int64 // 0 if never placed
	FailedLeg         LegRole
	EntryCancelled    bool
	SiblingCancelled  bool
	Err               error
}

func (e *ProtectiveOrderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s leg failed for entry order %d", KindProtectiveOrderFailure, e.FailedLeg, e.EntryOrderID)
	if e.TakeProfitOrderID != 0 {
		fmt.Fprintf(&b, ", take-profit order %d exists", e.TakeProfitOrderID)
	}
	if e.StopLossOrderID != 0 {
		fmt.Fprintf(&b, ", stop-loss order %d exists", e.StopLossOrderID)
	}
	if e.EntryCancelled {
		b.WriteString(", entry cancelled")
	} else {
		b.WriteString(", entry NOT cancelled")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ProtectiveOrderError) Unwrap() error { return e.Err }

// KindOf classifies an arbitrary error for the API boundary. Unclassified
// errors map to the empty kind.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var pe *ProtectiveOrderError
	if errors.As(err, &pe) {
		return KindProtectiveOrderFailure
	}
	return ""
}
