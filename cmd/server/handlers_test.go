package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/qara-wq/flashorca-ally-devnet/internal/domain"
	"github.com/qara-wq/flashorca-ally-devnet/internal/storage"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAuthority, http.StatusForbidden},
		{storage.ErrNotFound, http.StatusNotFound},
		{domain.ErrLedgerMissing, http.StatusNotFound},
		{domain.ErrInvalidCustody, http.StatusNotFound},
		{storage.ErrDuplicateKey, http.StatusConflict},
		{domain.ErrInsufficientBalance, http.StatusConflict},
		{domain.ErrAmountTooSmall, http.StatusConflict},
		{domain.ErrPaused, http.StatusServiceUnavailable},
		{domain.ErrDailyCapExceeded, http.StatusTooManyRequests},
		{domain.ErrCooldownActive, http.StatusTooManyRequests},
		{domain.ErrOracleStale, http.StatusUnprocessableEntity},
		{domain.ErrOracleOutOfTolerance, http.StatusUnprocessableEntity},
		{domain.ErrOverflow, http.StatusUnprocessableEntity},
		{domain.ErrDivideByZero, http.StatusUnprocessableEntity},
		{domain.ErrInvariantViolated, http.StatusInternalServerError},
		{domain.ErrZeroAmount, http.StatusBadRequest},
		{errors.New("unknown"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}

	// Wrapped errors keep their mapping.
	wrapped := fmt.Errorf("claim: %w", domain.ErrOverflow)
	if got := statusFor(wrapped); got != http.StatusUnprocessableEntity {
		t.Errorf("statusFor(wrapped overflow) = %d, want %d", got, http.StatusUnprocessableEntity)
	}
}
