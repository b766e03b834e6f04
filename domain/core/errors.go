package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrRunNotFound        = fmt.Errorf("%w: run", ErrNotFound)
	ErrPredictionNotFound = fmt.Errorf("%w: prediction", ErrNotFound)
	ErrSnapshotNotFound   = fmt.Errorf("%w: snapshot", ErrNotFound)

	// Structural errors - abort the run
	ErrSchemaMismatch        = errors.New("schema mismatch")
	ErrUnknownResampleMethod = errors.New("unknown resampling method")
	ErrEmptyEnsemble         = errors.New("ensemble has no member scores")

	// Resource errors - recoverable by the caller
	ErrMemoryBudget = errors.New("memory budget exceeded")

	// Per-record errors - rejected, pipeline continues
	ErrInvalidStatistic = errors.New("invalid statistic input")
	ErrBadTimestamp     = errors.New("bad timestamp")
	ErrOutOfOrder       = errors.New("timestamp out of order")

	// Temporal discipline errors
	ErrFutureStatistic = errors.New("statistic from the future")
	ErrLeakage         = errors.New("data leakage detected")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewSchemaMismatchError(detail string) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, detail)
}

func NewColumnMismatchError(column, want, got string) error {
	return fmt.Errorf("%w: column %s expected %s, got %s", ErrSchemaMismatch, column, want, got)
}

func NewMemoryBudgetError(needBytes, budgetBytes int64) error {
	return fmt.Errorf("%w: batch needs %d bytes, budget is %d", ErrMemoryBudget, needBytes, budgetBytes)
}

func NewInvalidStatisticError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidStatistic, field, reason)
}

func NewUnknownResampleMethodError(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownResampleMethod, name)
}

func NewBadTimestampError(raw, reason string) error {
	return fmt.Errorf("%w: %q (%s)", ErrBadTimestamp, raw, reason)
}

func NewOutOfOrderError(key string, have, got string) error {
	return fmt.Errorf("%w: key %s already at %s, got %s", ErrOutOfOrder, key, have, got)
}

func NewFutureStatisticError(watermark, first string) error {
	return fmt.Errorf("%w: snapshot watermark %s >= first event %s", ErrFutureStatistic, watermark, first)
}

func NewLeakageError(statAt, eventAt string) error {
	return fmt.Errorf("%w: statistic as of %s used for event at %s", ErrLeakage, statAt, eventAt)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFatalError reports errors that must abort the run.
func IsFatalError(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) ||
		errors.Is(err, ErrUnknownResampleMethod) ||
		errors.Is(err, ErrEmptyEnsemble) ||
		errors.Is(err, ErrLeakage) ||
		errors.Is(err, ErrFutureStatistic)
}

// IsRecordError reports per-record errors routed to the rejected sink.
func IsRecordError(err error) bool {
	return errors.Is(err, ErrInvalidStatistic) ||
		errors.Is(err, ErrBadTimestamp) ||
		errors.Is(err, ErrOutOfOrder)
}

// IsRecoverableError reports errors the caller handles by backing off,
// typically by shrinking the chunk size.
func IsRecoverableError(err error) bool {
	return errors.Is(err, ErrMemoryBudget)
}
