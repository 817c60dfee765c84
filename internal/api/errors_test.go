package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stablelink/stable-core/internal/auth"
	"github.com/stablelink/stable-core/internal/device"
	"github.com/stablelink/stable-core/internal/feeding"
	"github.com/stablelink/stable-core/internal/horse"
	"github.com/stablelink/stable-core/internal/stream"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid amount", feeding.ErrInvalidAmount, http.StatusBadRequest, ErrCodeValidation},
		{"no feeder", feeding.ErrNoFeeder, http.StatusBadRequest, ErrCodeValidation},
		{"no camera", stream.ErrNoCamera, http.StatusBadRequest, ErrCodeValidation},
		{"horse not found", horse.ErrHorseNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"device not found", device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"not owner", horse.ErrNotOwner, http.StatusForbidden, ErrCodeForbidden},
		{"device mismatch", feeding.ErrDeviceMismatch, http.StatusForbidden, ErrCodeForbidden},
		{"horse mismatch", feeding.ErrHorseMismatch, http.StatusForbidden, ErrCodeForbidden},
		{"feeding in progress", feeding.ErrAlreadyInProgress, http.StatusConflict, ErrCodeConflict},
		{"stream active", stream.ErrStreamActive, http.StatusConflict, ErrCodeConflict},
		{"no active stream", stream.ErrNoActiveStream, http.StatusConflict, ErrCodeConflict},
		{"expired token", auth.ErrTokenExpired, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"unknown error", errors.New("disk exploded"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classifyError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("classifyError() = (%d, %q), want (%d, %q)",
					status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestClassifyError_Wrapped(t *testing.T) {
	err := fmt.Errorf("starting feeding: %w", fmt.Errorf("%w: status RUNNING", feeding.ErrAlreadyInProgress))
	status, code := classifyError(err)
	if status != http.StatusConflict || code != ErrCodeConflict {
		t.Errorf("classifyError(wrapped) = (%d, %q), want conflict", status, code)
	}
}
