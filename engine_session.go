package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/jwt"
)

// Login authenticates with phone and password and issues credentials.
//
// The abuse guard runs before any credential check: a locked phone or
// origin gets ErrAccountLocked even with the right password. Unknown phones,
// identities without a password, and wrong passwords all yield
// ErrInvalidCredentials and count as failed attempts.
func (e *Engine) Login(ctx context.Context, phone, password string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	found, err := flows.RunLogin(ctx, phone, password, e.flows.Login)
	if err != nil {
		return nil, err
	}

	identity, err := e.directory.Store().GetByID(ctx, found.ID)
	if err != nil {
		return nil, e.mapDirectoryError(err)
	}
	return e.issueFor(ctx, identity)
}

// Logout revokes a refresh token. Revoking an already revoked token
// succeeds. Outstanding access tokens stay valid until they expire.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditEventLogout, false, "", "", "", ErrInvalidToken, nil)
		return ErrInvalidToken
	}

	if err := e.revocations.Revoke(ctx, claims.TokenID(), claims.Subject, e.presentableUntil(claims.Expiry()), e.now()); err != nil {
		e.logger.Error().Err(err).Msg("refresh token revocation failed")
		return ErrUnavailable
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, claims.Subject, "", "", nil, nil)
	return nil
}

// RefreshAccessToken mints a new access token from a valid, unrevoked
// refresh token. With JWT.RotateRefreshTokens the presented refresh token
// is revoked and a new one is returned; concurrent refreshes of the same
// token then have exactly one winner.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	fail := func(reason string, err error) (*AuthResult, error) {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", err, func() map[string]string {
			return map[string]string{
				"reason": reason,
			}
		})
		return nil, err
	}

	claims, err := e.jwtManager.ParseRefresh(refreshToken)
	if err != nil {
		return fail("parse", ErrInvalidToken)
	}

	now := e.now()
	if e.config.JWT.RotateRefreshTokens {
		won, err := e.revocations.Claim(ctx, claims.TokenID(), claims.Subject, e.presentableUntil(claims.Expiry()), now)
		if err != nil {
			return fail("backend", ErrUnavailable)
		}
		if !won {
			return fail("revoked", ErrInvalidToken)
		}
	} else {
		revoked, err := e.revocations.IsRevoked(ctx, claims.TokenID())
		if err != nil {
			return fail("backend", ErrUnavailable)
		}
		if revoked {
			return fail("revoked", ErrInvalidToken)
		}
	}

	identity, err := e.directory.Store().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return fail("unknown_identity", ErrInvalidToken)
		}
		return fail("backend", e.mapDirectoryError(err))
	}
	if !identity.Active {
		return fail("inactive", ErrInvalidToken)
	}

	access, accessClaims, err := e.jwtManager.CreateAccess(identity.ID, identity.Phone)
	if err != nil {
		e.logger.Error().Err(err).Msg("access token signing failed")
		return nil, ErrUnavailable
	}
	result := &AuthResult{
		AccessToken:     access,
		AccessExpiresAt: accessClaims.Expiry(),
		Identity:        redact(identity),
	}

	if e.config.JWT.RotateRefreshTokens {
		refresh, refreshClaims, err := e.jwtManager.CreateRefresh(identity.ID)
		if err != nil {
			e.logger.Error().Err(err).Msg("refresh token signing failed")
			return nil, ErrUnavailable
		}
		result.RefreshToken = refresh
		result.RefreshExpiresAt = refreshClaims.Expiry()
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, identity.ID, identity.Phone, "", nil, nil)
	return result, nil
}

// presentableUntil is the last instant the JWT manager still accepts a token
// expiring at exp. Revocation entries must live at least that long.
func (e *Engine) presentableUntil(exp time.Time) time.Time {
	return exp.Add(e.config.JWT.Leeway)
}

// VerifyAccess checks an access token's signature, type, and expiry and
// returns the identity it was issued to. Access tokens are not checked
// against the revocation list.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricVerifyAccessLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(accessToken)
	if err != nil {
		e.metricInc(MetricVerifyAccessFailure)
		if errors.Is(err, jwt.ErrWrongTokenType) {
			e.logger.Debug().Msg("refresh token presented as access token")
		}
		return nil, ErrInvalidToken
	}

	identity, err := e.directory.Store().GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			e.metricInc(MetricVerifyAccessFailure)
			return nil, ErrInvalidToken
		}
		return nil, e.mapDirectoryError(err)
	}
	if !identity.Active {
		e.metricInc(MetricVerifyAccessFailure)
		return nil, ErrInvalidToken
	}
	return redact(identity), nil
}

// issueFor signs a fresh credential pair for identity and stamps the login.
func (e *Engine) issueFor(ctx context.Context, identity *Identity) (*AuthResult, error) {
	access, accessClaims, err := e.jwtManager.CreateAccess(identity.ID, identity.Phone)
	if err != nil {
		e.logger.Error().Err(err).Msg("access token signing failed")
		return nil, ErrUnavailable
	}
	refresh, refreshClaims, err := e.jwtManager.CreateRefresh(identity.ID)
	if err != nil {
		e.logger.Error().Err(err).Msg("refresh token signing failed")
		return nil, ErrUnavailable
	}

	now := e.now().UTC()
	if err := e.directory.Store().TouchLogin(ctx, identity.ID, now); err != nil {
		e.logger.Warn().Err(err).Str("identity_id", identity.ID).Msg("last login update failed")
	} else {
		identity.LastLoginAt = &now
	}

	return &AuthResult{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.Expiry(),
		RefreshExpiresAt: refreshClaims.Expiry(),
		Identity:         redact(identity),
	}, nil
}
