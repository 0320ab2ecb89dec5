package phoneauth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/directory"
	"github.com/MrEthical07/phoneauth/internal"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/limiters"
	"github.com/MrEthical07/phoneauth/internal/stores"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/otp"
	"github.com/MrEthical07/phoneauth/password"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine runs the phone verification and credential lifecycle.
//
// Engine instances are built once by a [Builder] and are safe for concurrent
// use. Close stops the background delivery workers and audit dispatcher.
type Engine struct {
	config      Config
	logger      zerolog.Logger
	now         func() time.Time
	challenges  *stores.ChallengeStore
	revocations *stores.RevocationStore
	guard       *limiters.AbuseGuard
	throttle    *limiters.ChallengeRequestLimiter
	directory   *directory.Directory
	hasher      *password.Argon2
	dummyHash   string
	policy      password.Policy
	jwtManager  *jwt.Manager
	codes       otp.Generator
	codeKey     []byte
	pipeline    *delivery.Pipeline
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	flows       flows.Deps
}

// Close drains queued deliveries until ctx is done, then stops the audit
// dispatcher.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	var err error
	if e.pipeline != nil {
		err = e.pipeline.Close(ctx)
	}
	if e.audit != nil {
		e.audit.Close()
	}
	return err
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// DeliveryPending returns the number of messages waiting for a worker.
func (e *Engine) DeliveryPending() int {
	if e == nil {
		return 0
	}
	return e.pipeline.Pending()
}

// MetricsSnapshot returns a copy of the in-process metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.challenges != nil && e.jwtManager != nil && e.directory != nil
}

func (e *Engine) buildFlows() flows.Deps {
	common := flows.Common{
		Now:                  e.now,
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		NormalizePhone:       internal.NormalizePhone,
		ValidPurpose:         func(p string) bool { return Purpose(p).Valid() },
		IsLocked: func(ctx context.Context, phone, origin string) (bool, string, error) {
			state, err := e.guard.IsLocked(ctx, phone, origin, e.now())
			return state.Locked, state.Reason, err
		},
		RecordAttempt: e.recordAttempt,
		MetricInc:     func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:     e.emitAudit,
		Errors: flows.Errors{
			EngineNotReady:     ErrEngineNotReady,
			Validation:         ErrValidation,
			PasswordPolicy:     ErrPasswordPolicy,
			RateLimited:        ErrRateLimited,
			NotFound:           ErrNotFound,
			Expired:            ErrExpired,
			AttemptsExhausted:  ErrAttemptsExhausted,
			CodeMismatch:       ErrCodeMismatch,
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			AccountDisabled:    ErrAccountDisabled,
			Unavailable:        ErrUnavailable,
		},
		Events: flows.Events{
			ChallengeIssued:   auditEventChallengeIssued,
			ChallengeRejected: auditEventChallengeRejected,
			ChallengeVerified: auditEventChallengeVerified,
			ChallengeFailed:   auditEventChallengeFailed,
			DeliveryDropped:   auditEventDeliveryDropped,
			LoginSuccess:      auditEventLoginSuccess,
			LoginFailure:      auditEventLoginFailure,
			LockoutRejected:   auditEventLockoutRejected,
			RateLimited:       auditEventRateLimited,
			PasswordReset:     auditEventPasswordReset,
		},
		Metrics: flows.Metrics{
			ChallengeIssued:      int(MetricChallengeIssued),
			ChallengeCooldown:    int(MetricChallengeCooldown),
			ChallengeThrottled:   int(MetricChallengeThrottled),
			ChallengeVerified:    int(MetricChallengeVerified),
			ChallengeMismatch:    int(MetricChallengeMismatch),
			ChallengeExhausted:   int(MetricChallengeExhausted),
			ChallengeExpired:     int(MetricChallengeExpired),
			DeliveryQueued:       int(MetricDeliveryQueued),
			DeliveryDropped:      int(MetricDeliveryDropped),
			LoginSuccess:         int(MetricLoginSuccess),
			LoginFailure:         int(MetricLoginFailure),
			LockoutRejected:      int(MetricLockoutRejected),
			PasswordResetSuccess: int(MetricPasswordResetSuccess),
		},
	}

	verify := flows.VerifyChallengeDeps{
		Common:      common,
		MaxAttempts: e.config.OTP.MaxAttempts,
		IsValidCode: func(code string) bool { return otp.IsNumeric(code, e.config.OTP.CodeLength) },
		HashCode:    e.hashCode,
		Verify:      e.challenges.Verify,
	}

	return flows.Deps{
		Request: flows.RequestChallengeDeps{
			Common:        common,
			TTL:           e.config.OTP.TTL,
			Cooldown:      e.config.OTP.Cooldown,
			Retention:     e.config.Retention.ChallengeRetention,
			CheckPassword: e.checkChallengePassword,
			InCooldown: func(ctx context.Context, phone, purpose string, now time.Time) (bool, error) {
				return e.challenges.InCooldown(ctx, phone, purpose, now, e.config.OTP.Cooldown)
			},
			CheckThrottle: e.throttle.Check,
			IsThrottled: func(err error) bool {
				return errors.Is(err, limiters.ErrChallengeRequestRateLimited)
			},
			CheckIdentity: e.checkChallengeIdentity,
			BuildPayload:  e.buildPendingPayload,
			GenerateCode:  e.codes.Generate,
			HashCode:      e.hashCode,
			NewID:         uuid.NewString,
			Issue:         e.challenges.Issue,
			Deliver:       e.deliverCode,
		},
		Verify: verify,
		Login: flows.LoginDeps{
			Common:         common,
			LookupIdentity: e.lookupLoginIdentity,
			VerifyPassword: e.hasher.Verify,
			BurnPassword: func(pw string) {
				_, _ = e.hasher.Verify(pw, e.dummyHash)
			},
			UpgradeHash: e.upgradePasswordHash,
		},
		Reset: flows.ResetPasswordDeps{
			Verify:         verify,
			Purpose:        string(PurposePasswordReset),
			CheckPassword:  e.checkPassword,
			HashPassword:   e.hasher.Hash,
			LookupIdentity: e.lookupLoginIdentity,
			UpdatePassword: func(ctx context.Context, id, encoded string) error {
				return e.directory.Store().UpdatePassword(ctx, id, encoded, e.now().UTC())
			},
			ClearLockout: e.guard.ClearPhone,
			Notify:       e.notifyPasswordReset,
		},
	}
}

func (e *Engine) hashCode(phone, purpose, code string) [32]byte {
	return internal.HashChallengeCode(e.codeKey, phone, purpose, code)
}

func (e *Engine) recordAttempt(ctx context.Context, phone, origin, userAgent string, succeeded bool) {
	err := e.guard.RecordAttempt(ctx, limiters.Attempt{
		Phone:      phone,
		Origin:     origin,
		Succeeded:  succeeded,
		OccurredAt: e.now(),
		UserAgent:  userAgent,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("phone", maskPhone(phone)).Msg("record auth attempt failed")
	}
}

func (e *Engine) lookupLoginIdentity(ctx context.Context, phone string) (*flows.LoginIdentity, error) {
	identity, err := e.directory.Store().GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flows.LoginIdentity{
		ID:           identity.ID,
		Phone:        identity.Phone,
		PasswordHash: identity.PasswordHash,
		Active:       identity.Active,
	}, nil
}

// upgradePasswordHash replaces a hash made with weaker Argon2 parameters.
// Failures are logged; the next login retries.
func (e *Engine) upgradePasswordHash(ctx context.Context, identityID, pw, encoded string) {
	stale, err := e.hasher.NeedsUpgrade(encoded)
	if err != nil || !stale {
		return
	}
	upgraded, err := e.hasher.Hash(pw)
	if err == nil {
		err = e.directory.Store().UpdatePassword(ctx, identityID, upgraded, e.now().UTC())
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("identity_id", identityID).Msg("password hash upgrade failed")
		return
	}
	e.logger.Info().Str("identity_id", identityID).Msg("password hash upgraded")
}

// checkPassword applies the password policy and wraps violations so
// DescribeError can report the reason.
func (e *Engine) checkPassword(pw, phone string) error {
	if err := e.policy.Check(pw, phone); err != nil {
		return &policyError{reason: policyReason(err)}
	}
	return nil
}

func policyReason(err error) string {
	switch {
	case errors.Is(err, password.ErrPolicyTooShort):
		return "The password is too short."
	case errors.Is(err, password.ErrPolicyTooLong):
		return "The password is too long."
	case errors.Is(err, password.ErrPolicyNumericOnly):
		return "The password cannot be entirely numeric."
	case errors.Is(err, password.ErrPolicyCommon):
		return "The password is too common."
	case errors.Is(err, password.ErrPolicyLikePhone):
		return "The password is too similar to the phone number."
	default:
		return "The password does not meet the requirements."
	}
}

func (e *Engine) enqueue(msg delivery.Message) error {
	if err := e.pipeline.Enqueue(msg); err != nil {
		e.logger.Warn().
			Err(err).
			Str("kind", string(msg.Kind)).
			Str("phone", maskPhone(msg.To)).
			Msg("sms not queued")
		return err
	}
	return nil
}

func (e *Engine) onDeliveryResult(res delivery.Result) {
	if res.Err == nil {
		e.metricInc(MetricDeliverySent)
		return
	}
	e.metricInc(MetricDeliveryFailed)
	e.emitAudit(context.Background(), auditEventDeliveryFailed, false, "", res.Message.To, res.Message.Purpose, ErrUnavailable, func() map[string]string {
		return map[string]string{
			"kind":     string(res.Message.Kind),
			"attempts": strconv.Itoa(res.Attempts),
		}
	})
}
