package domain

import (
	"errors"
	"fmt"
)

// RejectionReason names why an order was refused
type RejectionReason string

const (
	ReasonInsufficientCash   RejectionReason = "InsufficientCash"
	ReasonInsufficientShares RejectionReason = "InsufficientShares"
	ReasonExposureExceeded   RejectionReason = "ExposureExceeded"
	ReasonInvalidOrder       RejectionReason = "InvalidOrder"
)

// Sentinel errors. Rejections match their reason via errors.Is.
var (
	ErrInsufficientCash    = errors.New("insufficient cash")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrExposureExceeded    = errors.New("exposure exceeded")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrMissingMarketData   = errors.New("missing market data")
	ErrMarketDataExhausted = errors.New("market data exhausted")
	ErrNotAvailable        = errors.New("not available")
	ErrPortfolioNotFound   = errors.New("portfolio not found")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrPersistence         = errors.New("persistence failure")
)

var reasonErrors = map[RejectionReason]error{
	ReasonInsufficientCash:   ErrInsufficientCash,
	ReasonInsufficientShares: ErrInsufficientShares,
	ReasonExposureExceeded:   ErrExposureExceeded,
	ReasonInvalidOrder:       ErrInvalidOrder,
}

// RejectionError is an order-level violation. It is returned before any
// ledger mutation, so a rejected order never leaves partial state.
type RejectionError struct {
	Reason RejectionReason
	Symbol string
	Side   Side
	Detail string
}

// NewRejection builds a RejectionError with a formatted detail message.
func NewRejection(reason RejectionReason, symbol string, side Side, format string, args ...any) *RejectionError {
	return &RejectionError{
		Reason: reason,
		Symbol: symbol,
		Side:   side,
		Detail: fmt.Sprintf(format, args...),
	}
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s %s rejected (%s): %s", e.Side, e.Symbol, e.Reason, e.Detail)
}

// Is lets errors.Is(err, ErrInsufficientCash) match a rejection.
func (e *RejectionError) Is(target error) bool {
	return reasonErrors[e.Reason] == target
}

// AsRejection extracts the rejection from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// PersistenceError wraps a storage failure that aborted a unit of work.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err, or returns nil when err is nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
