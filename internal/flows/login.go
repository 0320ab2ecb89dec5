package flows

import "context"

// LoginIdentity is the flow-local view of a directory identity.
type LoginIdentity struct {
	ID           string
	Phone        string
	PasswordHash string
	Active       bool
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Common

	// LookupIdentity returns (nil, nil) when no identity has the phone.
	LookupIdentity func(ctx context.Context, phone string) (*LoginIdentity, error)
	VerifyPassword func(password, encodedHash string) (bool, error)
	// BurnPassword spends a hash-equivalent amount of work for phones that
	// have no usable credential.
	BurnPassword func(password string)
	// UpgradeHash re-hashes the password after a successful check when
	// the stored hash uses weaker parameters. Optional, best-effort.
	UpgradeHash func(ctx context.Context, identityID, password, encodedHash string)
}

// RunLogin authenticates phone and password. The lockout gate runs before
// any credential is looked at.
func RunLogin(ctx context.Context, phone, password string, deps LoginDeps) (*LoginIdentity, error) {
	deps.Common.normalize()
	if !deps.ready() || deps.LookupIdentity == nil || deps.VerifyPassword == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if deps.BurnPassword == nil {
		deps.BurnPassword = func(string) {}
	}

	normalized, err := deps.NormalizePhone(phone)
	if err != nil || password == "" {
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", normalized, "", deps.Errors.Validation, nil)
		return nil, deps.Errors.Validation
	}
	phone = normalized

	if err := deps.gate(ctx, phone, deps.ClientIPFromContext(ctx), ""); err != nil {
		return nil, err
	}

	fail := func(identityID, reason string) error {
		deps.record(ctx, phone, false)
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identityID, phone, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return deps.Errors.InvalidCredentials
	}

	identity, err := deps.LookupIdentity(ctx, phone)
	if err != nil {
		return nil, deps.Errors.Unavailable
	}
	if identity == nil {
		deps.BurnPassword(password)
		return nil, fail("", "unknown_phone")
	}
	if identity.PasswordHash == "" {
		deps.BurnPassword(password)
		return nil, fail(identity.ID, "no_password")
	}

	ok, err := deps.VerifyPassword(password, identity.PasswordHash)
	if err != nil || !ok {
		return nil, fail(identity.ID, "password_mismatch")
	}
	if !identity.Active {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, identity.ID, phone, "", deps.Errors.AccountDisabled, nil)
		return nil, deps.Errors.AccountDisabled
	}

	if deps.UpgradeHash != nil {
		deps.UpgradeHash(ctx, identity.ID, password, identity.PasswordHash)
	}

	deps.record(ctx, phone, true)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, identity.ID, phone, "", nil, nil)
	return identity, nil
}
