package phoneauth

import (
	"errors"
	"fmt"
	"testing"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{err: nil, code: ""},
		{err: ErrValidation, code: CodeValidation},
		{err: ErrPasswordPolicy, code: CodeValidation},
		{err: ErrRateLimited, code: CodeRateLimited},
		{err: ErrNotFound, code: CodeNotFound},
		{err: ErrExpired, code: CodeExpired},
		{err: ErrAttemptsExhausted, code: CodeAttemptsExhausted},
		{err: ErrCodeMismatch, code: CodeCodeMismatch},
		{err: ErrInvalidCredentials, code: CodeInvalidCredentials},
		{err: ErrAccountLocked, code: CodeAccountLocked},
		{err: ErrAccountDisabled, code: CodeAccountDisabled},
		{err: ErrInvalidToken, code: CodeInvalidToken},
		{err: ErrConflict, code: CodeConflict},
		{err: fmt.Errorf("store: %w", ErrUnavailable), code: CodeUnavailable},
		{err: errors.New("boom"), code: CodeInternal},
	}

	for _, tt := range tests {
		code, msg := DescribeError(tt.err)
		if code != tt.code {
			t.Fatalf("%v: expected code %s, got %s", tt.err, tt.code, code)
		}
		if tt.err != nil && msg == "" {
			t.Fatalf("%v: expected a message", tt.err)
		}
	}
}

func TestDescribeErrorHidesInternals(t *testing.T) {
	_, msg := DescribeError(fmt.Errorf("dial tcp 10.0.0.4:6379: %w", ErrUnavailable))
	if msg != errorMessages[CodeUnavailable] {
		t.Fatalf("internal detail leaked: %q", msg)
	}
}

func TestPolicyErrorReason(t *testing.T) {
	err := &policyError{reason: "The password is too short."}
	if !errors.Is(err, ErrPasswordPolicy) || !errors.Is(err, ErrValidation) {
		t.Fatalf("policy error must match ErrPasswordPolicy and ErrValidation")
	}
	code, msg := DescribeError(err)
	if code != CodeValidation || msg != "The password is too short." {
		t.Fatalf("unexpected description %s %q", code, msg)
	}
}
