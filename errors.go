package phoneauth

import "errors"

var (
	// ErrValidation reports a malformed phone, purpose, code, or request field.
	ErrValidation = errors.New("validation error")
	// ErrPasswordPolicy reports a password rejected by the policy. It wraps
	// ErrValidation so callers may treat both alike.
	ErrPasswordPolicy = errWrap(ErrValidation, "password policy violation")
	// ErrRateLimited reports an active resend cooldown or origin throttle.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound reports a missing active challenge or identity.
	ErrNotFound = errors.New("not found")
	// ErrExpired reports a challenge past its expiry.
	ErrExpired = errors.New("challenge expired")
	// ErrAttemptsExhausted reports a challenge whose attempt cap is reached.
	ErrAttemptsExhausted = errors.New("attempts exhausted")
	// ErrCodeMismatch reports a wrong code; one attempt was consumed.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrInvalidCredentials reports a bad phone/password combination.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked reports an abuse guard lockout.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled reports an inactive identity.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidToken reports a forged, expired, revoked, or mistyped credential.
	ErrInvalidToken = errors.New("invalid token")
	// ErrConflict reports a uniqueness violation such as an email in use.
	ErrConflict = errors.New("conflict")
	// ErrUnavailable reports an infrastructure failure.
	ErrUnavailable = errors.New("service unavailable")
	// ErrEngineNotReady reports an Engine used without its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type wrappedError struct {
	parent error
	msg    string
}

func (e *wrappedError) Error() string { return e.msg }
func (e *wrappedError) Unwrap() error { return e.parent }

func errWrap(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

const (
	CodeValidation         ErrorCode = "VALIDATION_ERROR"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeExpired            ErrorCode = "EXPIRED"
	CodeAttemptsExhausted  ErrorCode = "ATTEMPTS_EXHAUSTED"
	CodeCodeMismatch       ErrorCode = "CODE_MISMATCH"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeAccountDisabled    ErrorCode = "ACCOUNT_DISABLED"
	CodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeUnavailable        ErrorCode = "UNAVAILABLE"
	CodeInternal           ErrorCode = "INTERNAL"
)

var errorMessages = map[ErrorCode]string{
	CodeValidation:         "The request is invalid.",
	CodeRateLimited:        "Too many requests. Please wait before trying again.",
	CodeNotFound:           "No active verification was found.",
	CodeExpired:            "The verification code has expired.",
	CodeAttemptsExhausted:  "Too many incorrect attempts. Request a new code.",
	CodeCodeMismatch:       "The verification code is incorrect.",
	CodeInvalidCredentials: "Invalid phone number or password.",
	CodeAccountLocked:      "Too many failed attempts. Try again later.",
	CodeAccountDisabled:    "This account is disabled.",
	CodeInvalidToken:       "The token is invalid or expired.",
	CodeConflict:           "The value is already in use.",
	CodeUnavailable:        "The service is temporarily unavailable.",
	CodeInternal:           "An internal error occurred.",
}

// ErrorCodeOf maps err to its stable code. Unknown errors map to
// CodeInternal; nil maps to "".
func ErrorCodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return CodeAttemptsExhausted
	case errors.Is(err, ErrCodeMismatch):
		return CodeCodeMismatch
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return CodeAccountDisabled
	case errors.Is(err, ErrInvalidToken):
		return CodeInvalidToken
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// DescribeError returns the stable code and a human-readable message for
// err. Password policy failures keep their specific message; every other
// message is fixed per code so internal details never leak.
func DescribeError(err error) (ErrorCode, string) {
	code := ErrorCodeOf(err)
	if code == "" {
		return "", ""
	}
	if errors.Is(err, ErrPasswordPolicy) {
		var detail *policyError
		if errors.As(err, &detail) {
			return code, detail.reason
		}
		return code, "The password does not meet the requirements."
	}
	return code, errorMessages[code]
}

// policyError carries a user-facing reason for a password rejection.
type policyError struct {
	reason string
}

func (e *policyError) Error() string { return "password policy violation: " + e.reason }
func (e *policyError) Unwrap() error { return ErrPasswordPolicy }
