package phoneauth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/internal/flows"
)

// maxDisplayNameBytes bounds display names stored on identities.
const maxDisplayNameBytes = 128

// pendingRegistration is the payload kept with a registration challenge.
type pendingRegistration struct {
	PasswordHash string `json:"password_hash,omitempty"`
	Name         string `json:"name,omitempty"`
}

// RequestChallenge issues a one-time code for (phone, purpose) and queues
// it for delivery.
//
// It fails with ErrValidation for a malformed phone, unknown purpose, or a
// registration password rejected by policy; ErrAccountLocked when the abuse
// guard has tripped; ErrRateLimited inside the resend cooldown or when the
// caller's origin spent its request budget; ErrNotFound or
// ErrAccountDisabled when a login or password reset targets a phone without
// a usable identity. The receipt is returned once the challenge is stored;
// delivery failures are reported asynchronously.
func (e *Engine) RequestChallenge(ctx context.Context, in RequestChallengeInput) (*ChallengeReceipt, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if len(strings.TrimSpace(in.Name)) > maxDisplayNameBytes {
		return nil, ErrValidation
	}
	issued, err := flows.RunRequestChallenge(ctx, flows.ChallengeRequest{
		Phone:    in.Phone,
		Purpose:  string(in.Purpose),
		Password: in.Password,
		Name:     in.Name,
	}, e.flows.Request)
	if err != nil {
		return nil, err
	}
	return &ChallengeReceipt{
		Phone:       issued.Phone,
		Purpose:     Purpose(issued.Purpose),
		ExpiresAt:   issued.ExpiresAt,
		ResendAfter: issued.ResendAfter,
	}, nil
}

// RequestPasswordReset is RequestChallenge for PurposePasswordReset.
func (e *Engine) RequestPasswordReset(ctx context.Context, phone string) (*ChallengeReceipt, error) {
	return e.RequestChallenge(ctx, RequestChallengeInput{Phone: phone, Purpose: PurposePasswordReset})
}

// VerifyChallenge consumes a registration or login challenge and issues
// credentials. A registration creates the identity on first success; an
// existing identity is returned unchanged. Password reset challenges are
// only consumed by ResetPassword.
func (e *Engine) VerifyChallenge(ctx context.Context, phone string, purpose Purpose, code string) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if purpose == PurposePasswordReset {
		return nil, ErrValidation
	}

	verified, err := flows.RunVerifyChallenge(ctx, phone, string(purpose), code, e.flows.Verify)
	if err != nil {
		return nil, err
	}

	var (
		identity *Identity
		created  bool
	)
	switch purpose {
	case PurposeRegistration:
		var pending pendingRegistration
		if len(verified.Payload) > 0 {
			if err := json.Unmarshal(verified.Payload, &pending); err != nil {
				e.logger.Error().Err(err).Str("challenge_id", verified.ID).Msg("pending registration payload unreadable")
				return nil, ErrUnavailable
			}
		}
		identity, created, err = e.directory.ResolveOrCreate(ctx, verified.Phone, pending.PasswordHash, pending.Name)
		if err != nil {
			return nil, e.mapDirectoryError(err)
		}
		if created {
			e.metricInc(MetricIdentityCreated)
			e.emitAudit(ctx, auditEventIdentityCreated, true, identity.ID, identity.Phone, string(purpose), nil, nil)
			if e.config.Delivery.WelcomeMessage {
				_ = e.enqueue(delivery.WelcomeMessage(identity.Phone, identity.DisplayName, e.config.AppName))
			}
		}
	default:
		identity, err = e.directory.Store().GetByPhone(ctx, verified.Phone)
		if err != nil {
			return nil, e.mapDirectoryError(err)
		}
	}

	if !identity.Active {
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, identity.Phone, string(purpose), ErrAccountDisabled, nil)
		return nil, ErrAccountDisabled
	}

	result, err := e.issueFor(ctx, identity)
	if err != nil {
		return nil, err
	}
	result.Created = created
	return result, nil
}

// ResetPassword consumes a password reset challenge and replaces the
// identity's password. The new password is checked against policy before
// the code is looked at, so a rejected password does not spend an attempt.
func (e *Engine) ResetPassword(ctx context.Context, phone, code, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := flows.RunResetPassword(ctx, phone, code, newPassword, e.flows.Reset)
	return err
}

func (e *Engine) checkChallengePassword(purpose, pw, phone string) error {
	if Purpose(purpose) != PurposeRegistration {
		return nil
	}
	return e.checkPassword(pw, phone)
}

func (e *Engine) checkChallengeIdentity(ctx context.Context, phone, purpose string) error {
	if Purpose(purpose) == PurposeRegistration {
		return nil
	}
	identity, err := e.directory.Store().GetByPhone(ctx, phone)
	if err != nil {
		return e.mapDirectoryError(err)
	}
	if !identity.Active {
		return ErrAccountDisabled
	}
	return nil
}

func (e *Engine) buildPendingPayload(purpose, pw, name string) ([]byte, error) {
	if Purpose(purpose) != PurposeRegistration || (pw == "" && name == "") {
		return nil, nil
	}
	pending := pendingRegistration{Name: name}
	if pw != "" {
		encoded, err := e.hasher.Hash(pw)
		if err != nil {
			return nil, err
		}
		pending.PasswordHash = encoded
	}
	return json.Marshal(pending)
}

func (e *Engine) deliverCode(_ context.Context, phone, purpose, code string, ttl time.Duration) error {
	return e.enqueue(delivery.CodeMessage(phone, purpose, code, ttl))
}

func (e *Engine) notifyPasswordReset(_ context.Context, phone string) {
	if !e.config.Delivery.SecurityAlerts {
		return
	}
	_ = e.enqueue(delivery.SecurityAlertMessage(phone, "your password was reset"))
}

func (e *Engine) mapDirectoryError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, directory.ErrConflict):
		return ErrConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		e.logger.Error().Err(err).Msg("identity directory failure")
		return ErrUnavailable
	}
}

// redact returns a copy of identity without its password hash.
func redact(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}
	out := *identity
	out.PasswordHash = ""
	return &out
}
