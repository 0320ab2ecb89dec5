package flows

import "context"

// ResetPasswordDeps captures password reset dependencies. Verify must be
// configured for the password reset purpose.
type ResetPasswordDeps struct {
	Verify  VerifyChallengeDeps
	Purpose string

	CheckPassword  func(password, phone string) error
	HashPassword   func(string) (string, error)
	LookupIdentity func(ctx context.Context, phone string) (*LoginIdentity, error)
	UpdatePassword func(ctx context.Context, identityID, encodedHash string) error
	// ClearLockout drops failed attempts for phone after a successful reset.
	ClearLockout func(ctx context.Context, phone string) error
	// Notify sends the security alert; it must not block.
	Notify func(ctx context.Context, phone string)
}

// RunResetPassword checks the new password against policy, consumes the
// reset challenge, and stores the new hash. It returns the identity id.
func RunResetPassword(ctx context.Context, phone, code, newPassword string, deps ResetPasswordDeps) (string, error) {
	c := &deps.Verify.Common
	c.normalize()
	if !c.ready() || deps.HashPassword == nil || deps.LookupIdentity == nil || deps.UpdatePassword == nil {
		return "", c.Errors.EngineNotReady
	}

	normalized, err := c.NormalizePhone(phone)
	if err != nil {
		return "", c.Errors.Validation
	}
	if deps.CheckPassword != nil {
		if err := deps.CheckPassword(newPassword, normalized); err != nil {
			c.EmitAudit(ctx, c.Events.PasswordReset, false, "", normalized, deps.Purpose, err, nil)
			return "", err
		}
	}

	verified, err := RunVerifyChallenge(ctx, normalized, deps.Purpose, code, deps.Verify)
	if err != nil {
		return "", err
	}

	identity, err := deps.LookupIdentity(ctx, verified.Phone)
	if err != nil {
		return "", c.Errors.Unavailable
	}
	if identity == nil {
		c.EmitAudit(ctx, c.Events.PasswordReset, false, "", verified.Phone, deps.Purpose, c.Errors.NotFound, nil)
		return "", c.Errors.NotFound
	}
	if !identity.Active {
		c.EmitAudit(ctx, c.Events.PasswordReset, false, identity.ID, verified.Phone, deps.Purpose, c.Errors.AccountDisabled, nil)
		return "", c.Errors.AccountDisabled
	}

	encoded, err := deps.HashPassword(newPassword)
	if err != nil {
		return "", c.Errors.Unavailable
	}
	if err := deps.UpdatePassword(ctx, identity.ID, encoded); err != nil {
		c.EmitAudit(ctx, c.Events.PasswordReset, false, identity.ID, verified.Phone, deps.Purpose, c.Errors.Unavailable, nil)
		return "", c.Errors.Unavailable
	}

	if deps.ClearLockout != nil {
		_ = deps.ClearLockout(ctx, verified.Phone)
	}
	if deps.Notify != nil {
		deps.Notify(ctx, verified.Phone)
	}

	c.MetricInc(c.Metrics.PasswordResetSuccess)
	c.EmitAudit(ctx, c.Events.PasswordReset, true, identity.ID, verified.Phone, deps.Purpose, nil, nil)
	return identity.ID, nil
}
