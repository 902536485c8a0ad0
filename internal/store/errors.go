package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidAmount     = errors.New("payment amount must be greater than zero")
	ErrForbidden         = errors.New("forbidden")
)

// ValidationError names the offending field. It matches ErrInvalidInput.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func Invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// OutOfStockError reports the line that could not be fulfilled. It matches
// ErrInsufficientStock.
type OutOfStockError struct {
	Model     string
	ShopID    int64
	Available int
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("not enough stock for model %s in shop %d. Available: %d, Required: %d", e.Model, e.ShopID, e.Available, e.Requested)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrInsufficientStock
}

// NotFoundf builds an ErrNotFound carrying what was missing.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Conflictf builds an ErrConflict carrying what collided.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
