package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/internal/stores"
)

// ChallengeRequest is the caller input for issuing a challenge.
type ChallengeRequest struct {
	Phone    string
	Purpose  string
	Password string
	Name     string
}

// IssuedChallenge describes a challenge that is now live.
type IssuedChallenge struct {
	ID          string
	Phone       string
	Purpose     string
	ExpiresAt   time.Time
	ResendAfter time.Time
}

// RequestChallengeDeps captures challenge issuance dependencies.
type RequestChallengeDeps struct {
	Common

	TTL       time.Duration
	Cooldown  time.Duration
	Retention time.Duration

	// CheckPassword validates an optional password supplied with the request.
	CheckPassword func(purpose, password, phone string) error
	// InCooldown reads whether the slot is still cooling down. It runs before
	// any step that spends budget or hashes a password.
	InCooldown func(ctx context.Context, phone, purpose string, now time.Time) (bool, error)
	// CheckThrottle counts the request against the caller's origin.
	CheckThrottle func(ctx context.Context, origin string) error
	IsThrottled   func(error) bool
	// CheckIdentity enforces purpose-specific identity preconditions and
	// returns host errors directly.
	CheckIdentity func(ctx context.Context, phone, purpose string) error
	// BuildPayload returns the opaque data kept with the challenge until it
	// is verified. It may return nil.
	BuildPayload func(purpose, password, name string) ([]byte, error)

	GenerateCode func() (string, error)
	HashCode     func(phone, purpose, code string) [32]byte
	NewID        func() string

	Issue   func(ctx context.Context, record *stores.ChallengeRecord, params stores.IssueParams) error
	Deliver func(ctx context.Context, phone, purpose, code string, ttl time.Duration) error
}

// RunRequestChallenge validates the request, applies the lockout and
// throttle gates, and installs a new challenge. Delivery is queued after the
// challenge is stored; a delivery queue failure does not fail the request.
func RunRequestChallenge(ctx context.Context, in ChallengeRequest, deps RequestChallengeDeps) (*IssuedChallenge, error) {
	deps.Common.normalize()
	if !deps.ready() || deps.Issue == nil || deps.GenerateCode == nil || deps.HashCode == nil || deps.NewID == nil {
		return nil, deps.Errors.EngineNotReady
	}

	phone, err := deps.NormalizePhone(in.Phone)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", "", in.Purpose, deps.Errors.Validation, func() map[string]string {
			return map[string]string{
				"reason": "invalid_phone",
			}
		})
		return nil, deps.Errors.Validation
	}
	if !deps.ValidPurpose(in.Purpose) {
		deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", phone, "", deps.Errors.Validation, func() map[string]string {
			return map[string]string{
				"reason": "invalid_purpose",
			}
		})
		return nil, deps.Errors.Validation
	}
	if in.Password != "" && deps.CheckPassword != nil {
		if err := deps.CheckPassword(in.Purpose, in.Password, phone); err != nil {
			deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", phone, in.Purpose, err, nil)
			return nil, err
		}
	}

	origin := deps.ClientIPFromContext(ctx)
	if err := deps.gate(ctx, phone, origin, in.Purpose); err != nil {
		return nil, err
	}

	if deps.InCooldown != nil {
		cooling, err := deps.InCooldown(ctx, phone, in.Purpose, deps.Now())
		if err != nil {
			deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", phone, in.Purpose, deps.Errors.Unavailable, nil)
			return nil, deps.Errors.Unavailable
		}
		if cooling {
			return nil, deps.rejectCooldown(ctx, phone, in.Purpose)
		}
	}

	if deps.CheckThrottle != nil {
		if err := deps.CheckThrottle(ctx, origin); err != nil {
			if deps.IsThrottled != nil && deps.IsThrottled(err) {
				deps.MetricInc(deps.Metrics.ChallengeThrottled)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", phone, in.Purpose, deps.Errors.RateLimited, func() map[string]string {
					return map[string]string{
						"scope": "origin",
					}
				})
				return nil, deps.Errors.RateLimited
			}
			return nil, deps.Errors.Unavailable
		}
	}

	if deps.CheckIdentity != nil {
		if err := deps.CheckIdentity(ctx, phone, in.Purpose); err != nil {
			deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", phone, in.Purpose, err, nil)
			return nil, err
		}
	}

	var payload []byte
	if deps.BuildPayload != nil {
		payload, err = deps.BuildPayload(in.Purpose, in.Password, in.Name)
		if err != nil {
			return nil, deps.Errors.Unavailable
		}
	}

	code, err := deps.GenerateCode()
	if err != nil {
		return nil, deps.Errors.Unavailable
	}

	now := deps.Now()
	record := &stores.ChallengeRecord{
		ID:        deps.NewID(),
		Phone:     phone,
		Purpose:   in.Purpose,
		CodeHash:  deps.HashCode(phone, in.Purpose, code),
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(deps.TTL).UnixMilli(),
		Payload:   payload,
	}
	err = deps.Issue(ctx, record, stores.IssueParams{
		Now:       now,
		TTL:       deps.TTL,
		Cooldown:  deps.Cooldown,
		Retention: deps.Retention,
	})
	if err != nil {
		if errors.Is(err, stores.ErrChallengeCooldown) {
			return nil, deps.rejectCooldown(ctx, phone, in.Purpose)
		}
		deps.EmitAudit(ctx, deps.Events.ChallengeRejected, false, "", phone, in.Purpose, deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.ChallengeIssued)
	deps.EmitAudit(ctx, deps.Events.ChallengeIssued, true, "", phone, in.Purpose, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": record.ID,
		}
	})

	if deps.Deliver != nil {
		if err := deps.Deliver(ctx, phone, in.Purpose, code, deps.TTL); err != nil {
			deps.MetricInc(deps.Metrics.DeliveryDropped)
			deps.EmitAudit(ctx, deps.Events.DeliveryDropped, false, "", phone, in.Purpose, err, func() map[string]string {
				return map[string]string{
					"challenge_id": record.ID,
				}
			})
		} else {
			deps.MetricInc(deps.Metrics.DeliveryQueued)
		}
	}

	return &IssuedChallenge{
		ID:          record.ID,
		Phone:       phone,
		Purpose:     in.Purpose,
		ExpiresAt:   time.UnixMilli(record.ExpiresAt).UTC(),
		ResendAfter: now.Add(deps.Cooldown).UTC(),
	}, nil
}

func (deps RequestChallengeDeps) rejectCooldown(ctx context.Context, phone, purpose string) error {
	deps.MetricInc(deps.Metrics.ChallengeCooldown)
	deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", phone, purpose, deps.Errors.RateLimited, func() map[string]string {
		return map[string]string{
			"scope": "cooldown",
		}
	})
	return deps.Errors.RateLimited
}

// VerifiedChallenge is a challenge consumed by a successful verification.
type VerifiedChallenge struct {
	ID      string
	Phone   string
	Purpose string
	Payload []byte
}

// VerifyChallengeDeps captures challenge verification dependencies.
type VerifyChallengeDeps struct {
	Common

	MaxAttempts int
	IsValidCode func(string) bool
	HashCode    func(phone, purpose, code string) [32]byte
	Verify      func(ctx context.Context, phone, purpose string, hash [32]byte, now time.Time, maxAttempts int) (*stores.ChallengeRecord, error)
}

// RunVerifyChallenge checks code against the active challenge for
// (phone, purpose). Wrong and exhausted codes are recorded as failed
// attempts; a match is recorded as a success.
func RunVerifyChallenge(ctx context.Context, phone, purpose, code string, deps VerifyChallengeDeps) (*VerifiedChallenge, error) {
	deps.Common.normalize()
	if !deps.ready() || deps.Verify == nil || deps.HashCode == nil {
		return nil, deps.Errors.EngineNotReady
	}

	normalized, err := deps.NormalizePhone(phone)
	if err != nil || !deps.ValidPurpose(purpose) {
		deps.EmitAudit(ctx, deps.Events.ChallengeFailed, false, "", normalized, purpose, deps.Errors.Validation, nil)
		return nil, deps.Errors.Validation
	}
	phone = normalized
	if deps.IsValidCode != nil && !deps.IsValidCode(code) {
		deps.EmitAudit(ctx, deps.Events.ChallengeFailed, false, "", phone, purpose, deps.Errors.Validation, func() map[string]string {
			return map[string]string{
				"reason": "malformed_code",
			}
		})
		return nil, deps.Errors.Validation
	}

	if err := deps.gate(ctx, phone, deps.ClientIPFromContext(ctx), purpose); err != nil {
		return nil, err
	}

	record, err := deps.Verify(ctx, phone, purpose, deps.HashCode(phone, purpose, code), deps.Now(), deps.MaxAttempts)
	if err != nil {
		mapped := deps.Errors.Unavailable
		switch {
		case errors.Is(err, stores.ErrChallengeNotFound):
			mapped = deps.Errors.NotFound
		case errors.Is(err, stores.ErrChallengeExpired):
			deps.MetricInc(deps.Metrics.ChallengeExpired)
			mapped = deps.Errors.Expired
		case errors.Is(err, stores.ErrChallengeAttempts):
			deps.MetricInc(deps.Metrics.ChallengeExhausted)
			deps.record(ctx, phone, false)
			mapped = deps.Errors.AttemptsExhausted
		case errors.Is(err, stores.ErrChallengeMismatch):
			deps.MetricInc(deps.Metrics.ChallengeMismatch)
			deps.record(ctx, phone, false)
			mapped = deps.Errors.CodeMismatch
		}
		deps.EmitAudit(ctx, deps.Events.ChallengeFailed, false, "", phone, purpose, mapped, nil)
		return nil, mapped
	}

	deps.record(ctx, phone, true)
	deps.MetricInc(deps.Metrics.ChallengeVerified)
	deps.EmitAudit(ctx, deps.Events.ChallengeVerified, true, "", phone, purpose, nil, func() map[string]string {
		return map[string]string{
			"challenge_id": record.ID,
		}
	})

	return &VerifiedChallenge{
		ID:      record.ID,
		Phone:   phone,
		Purpose: purpose,
		Payload: record.Payload,
	}, nil
}
