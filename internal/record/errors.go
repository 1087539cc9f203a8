package record

import (
	"errors"
	"fmt"
)

// Error classes. Row-level classes (ErrParse, ErrCurrency, ErrScaleAnomaly)
// are recovered: the row is excluded and counted. ErrCapacity and ErrIO are
// fatal to a run.
var (
	ErrParse        = errors.New("parse error")
	ErrCurrency     = errors.New("currency error")
	ErrScaleAnomaly = errors.New("scale anomaly")
	ErrCapacity     = errors.New("capacity exceeded")
	ErrIO           = errors.New("io error")
)

// Reason is the fine-grained cause of a rejected row. Summaries and metrics
// are keyed by Reason.
type Reason string

const (
	ReasonMalformedRow     Reason = "malformed_row"
	ReasonNameEmpty        Reason = "name_empty"
	ReasonFingerprintEmpty Reason = "fingerprint_empty"
	ReasonPriceMissing     Reason = "price_missing"
	ReasonPriceUnparsable  Reason = "price_unparsable"
	ReasonCurrencyMissing  Reason = "currency_missing"
	ReasonCurrencyUnknown  Reason = "currency_unknown"
	ReasonCurrencyConflict Reason = "currency_conflict"
	ReasonScaleAnomaly     Reason = "scale_anomaly"
	ReasonDuplicateRow     Reason = "duplicate_row"
)

// Reasons lists every Reason in reporting order.
var Reasons = []Reason{
	ReasonMalformedRow,
	ReasonNameEmpty,
	ReasonFingerprintEmpty,
	ReasonPriceMissing,
	ReasonPriceUnparsable,
	ReasonCurrencyMissing,
	ReasonCurrencyUnknown,
	ReasonCurrencyConflict,
	ReasonScaleAnomaly,
	ReasonDuplicateRow,
}

// Class maps a reason onto its error class.
func (r Reason) Class() error {
	switch r {
	case ReasonCurrencyMissing, ReasonCurrencyUnknown, ReasonCurrencyConflict:
		return ErrCurrency
	case ReasonScaleAnomaly:
		return ErrScaleAnomaly
	default:
		return ErrParse
	}
}

// RowError describes why a single row was excluded from aggregation.
type RowError struct {
	Reason Reason
	Line   int64
	Detail string
}

// Reject builds a RowError with a formatted detail message.
func Reject(reason Reason, line int64, format string, args ...any) *RowError {
	return &RowError{Reason: reason, Line: line, Detail: fmt.Sprintf(format, args...)}
}

func (e *RowError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Reason, e.Detail)
}

// Unwrap exposes the error class so callers can use errors.Is(err, ErrParse).
func (e *RowError) Unwrap() error { return e.Reason.Class() }

// CapacityError is returned when the live group table grows past a
// configured bound.
type CapacityError struct {
	Groups int64
	Bytes  int64
	Limit  string // which bound tripped, e.g. "max_groups=1000"
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("group table exceeds %s (groups=%d, est_bytes=%d)", e.Limit, e.Groups, e.Bytes)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// IOError wraps a source or sink failure so it matches both ErrIO and the
// underlying cause.
type IOError struct {
	Op  string
	Err error
}

// WrapIO returns nil for a nil err.
func WrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Err: err}
}

func (e *IOError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *IOError) Unwrap() []error { return []error{ErrIO, e.Err} }
