package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "validation", err: Invalid("items", "at least one item is required"), target: ErrInvalidInput},
		{name: "out of stock", err: &OutOfStockError{Model: "X100", ShopID: 1, Available: 1, Requested: 3}, target: ErrInsufficientStock},
		{name: "wrapped out of stock", err: fmt.Errorf("submit sale: %w", &OutOfStockError{Model: "X100"}), target: ErrInsufficientStock},
		{name: "not found", err: NotFoundf("instalment %d", 7), target: ErrNotFound},
		{name: "conflict", err: Conflictf("stock %s in shop %d", "X100", 1), target: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Fatalf("expected %v to match %v", tt.err, tt.target)
			}
		})
	}
}

func TestOutOfStockMessageReportsQuantities(t *testing.T) {
	err := &OutOfStockError{Model: "X100", ShopID: 2, Available: 1, Requested: 3}
	want := "not enough stock for model X100 in shop 2. Available: 1, Required: 3"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	var oos *OutOfStockError
	if !errors.As(fmt.Errorf("wrap: %w", err), &oos) || oos.Available != 1 {
		t.Fatalf("expected errors.As to recover the out-of-stock details")
	}
}
