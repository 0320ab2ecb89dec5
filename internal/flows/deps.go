package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Request RequestChallengeDeps
	Verify  VerifyChallengeDeps
	Login   LoginDeps
	Reset   ResetPasswordDeps
}

// Errors carries host-level sentinel errors returned by flows.
type Errors struct {
	EngineNotReady     error
	Validation         error
	PasswordPolicy     error
	RateLimited        error
	NotFound           error
	Expired            error
	AttemptsExhausted  error
	CodeMismatch       error
	InvalidCredentials error
	AccountLocked      error
	AccountDisabled    error
	Unavailable        error
}

// Events carries audit event names used by flows.
type Events struct {
	ChallengeIssued   string
	ChallengeRejected string
	ChallengeVerified string
	ChallengeFailed   string
	DeliveryDropped   string
	LoginSuccess      string
	LoginFailure      string
	LockoutRejected   string
	RateLimited       string
	PasswordReset     string
}

// Metrics carries metric IDs used by flows.
type Metrics struct {
	ChallengeIssued      int
	ChallengeCooldown    int
	ChallengeThrottled   int
	ChallengeVerified    int
	ChallengeMismatch    int
	ChallengeExhausted   int
	ChallengeExpired     int
	DeliveryQueued       int
	DeliveryDropped      int
	LoginSuccess         int
	LoginFailure         int
	LockoutRejected      int
	PasswordResetSuccess int
}

// Common holds the dependencies every flow shares.
type Common struct {
	Now                  func() time.Time
	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	NormalizePhone       func(string) (string, error)
	ValidPurpose         func(string) bool

	// IsLocked reports the abuse guard decision for phone and origin.
	IsLocked func(ctx context.Context, phone, origin string) (bool, string, error)
	// RecordAttempt appends one attempt; failures are the host's to log.
	RecordAttempt func(ctx context.Context, phone, origin, userAgent string, succeeded bool)

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, identityID, phone, purpose string, err error, metadata func() map[string]string)

	Errors  Errors
	Events  Events
	Metrics Metrics
}

func (c *Common) normalize() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.ClientIPFromContext == nil {
		c.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if c.UserAgentFromContext == nil {
		c.UserAgentFromContext = func(context.Context) string { return "" }
	}
	if c.ValidPurpose == nil {
		c.ValidPurpose = func(string) bool { return true }
	}
	if c.RecordAttempt == nil {
		c.RecordAttempt = func(context.Context, string, string, string, bool) {}
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
}

// gate rejects the call when the abuse guard reports a lockout. A locked
// result is not itself recorded as an attempt.
func (c *Common) gate(ctx context.Context, phone, origin, purpose string) error {
	if c.IsLocked == nil {
		return nil
	}
	locked, reason, err := c.IsLocked(ctx, phone, origin)
	if err != nil {
		c.EmitAudit(ctx, c.Events.LockoutRejected, false, "", phone, purpose, c.Errors.Unavailable, nil)
		return c.Errors.Unavailable
	}
	if !locked {
		return nil
	}
	c.MetricInc(c.Metrics.LockoutRejected)
	c.EmitAudit(ctx, c.Events.LockoutRejected, false, "", phone, purpose, c.Errors.AccountLocked, func() map[string]string {
		return map[string]string{
			"scope": reason,
		}
	})
	return c.Errors.AccountLocked
}

func (c *Common) record(ctx context.Context, phone string, succeeded bool) {
	c.RecordAttempt(ctx, phone, c.ClientIPFromContext(ctx), c.UserAgentFromContext(ctx), succeeded)
}

func (c *Common) ready() bool {
	return c.NormalizePhone != nil
}
