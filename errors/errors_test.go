package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_New_Success(t *testing.T) {
	err := New(ErrCodeNotFound, "not found", http.StatusNotFound)
	if err.Code != ErrCodeNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeNotFound, err.Code)
	}
	if err.Message != "not found" {
		t.Errorf("expected message 'not found', got %q", err.Message)
	}
	if err.Retryable {
		t.Error("NOT_FOUND should not be retryable")
	}
}

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out", http.StatusGatewayTimeout)
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
}

func TestAppError_InvalidFilter(t *testing.T) {
	err := InvalidFilter("(a=b", 4, "missing ')'")
	if err.Code != ErrCodeInvalidFilter {
		t.Errorf("expected INVALID_FILTER, got %s", err.Code)
	}
	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", err.HTTPStatus)
	}
	if err.Details["position"] != 4 {
		t.Errorf("expected position=4, got %v", err.Details["position"])
	}
	if !strings.Contains(err.Error(), "missing ')'") {
		t.Errorf("expected reason in message, got %q", err.Error())
	}
}

func TestAppError_InvalidRegistration(t *testing.T) {
	err := InvalidRegistration("no interface names")
	if err.Code != ErrCodeInvalidRegistration {
		t.Errorf("expected INVALID_REGISTRATION, got %s", err.Code)
	}
	if err.Retryable {
		t.Error("invalid registration should not be retryable")
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("module", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Internal(nil).WithCause(cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestAppError_Is_MatchesCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InvalidRegistration("x"))
	if !stderrors.Is(err, InvalidRegistration("y")) {
		t.Error("expected errors.Is to match by code")
	}
	if stderrors.Is(err, NotFound("module", "")) {
		t.Error("different codes must not match")
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{Code: ErrCodeConflict}
	err.WithDetail("module", "alpha")
	if err.Details["module"] != "alpha" {
		t.Errorf("expected detail to be set, got %v", err.Details)
	}
}

func TestErrorCode_IsRetryableCode_Table(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrCodeTimeout, true},
		{ErrCodeConflict, true},
		{ErrCodeInvalidFilter, false},
		{ErrCodeInvalidRegistration, false},
		{ErrCodeInternal, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := IsRetryableCode(tc.code); got != tc.want {
				t.Errorf("IsRetryableCode(%s) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestAppError_ToResponse_Success(t *testing.T) {
	resp := NotFound("service", "42").ToResponse()
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %s", resp.Error.Code)
	}
	if resp.Error.Details["id"] != "42" {
		t.Errorf("expected id detail, got %v", resp.Error.Details)
	}
}

func TestHasCodeAndStatusOf(t *testing.T) {
	wrapped := fmt.Errorf("ctx: %w", Unauthorized(""))
	if !HasCode(wrapped, ErrCodeUnauthorized) {
		t.Error("expected HasCode to see through wrapping")
	}
	if got := StatusOf(wrapped); got != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", got)
	}
	if got := StatusOf(stderrors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("expected 500 for plain error, got %d", got)
	}
}
