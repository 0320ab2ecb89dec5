package phoneauth

import (
	"io"
	"time"

	"github.com/MrEthical07/phoneauth/directory"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	internalmetrics "github.com/MrEthical07/phoneauth/internal/metrics"
	"github.com/rs/zerolog"
)

// Purpose scopes a challenge and decides what a successful verification
// unlocks.
type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// RequestChallengeInput is the input of Engine.RequestChallenge. Password
// and Name are only used for registration and are kept with the challenge
// (the password as an Argon2id hash) until it is verified.
type RequestChallengeInput struct {
	Phone    string
	Purpose  Purpose
	Password string
	Name     string
}

// ChallengeReceipt confirms that a challenge is live. Delivery of the code
// happens asynchronously.
type ChallengeReceipt struct {
	Phone       string    `json:"phone"`
	Purpose     Purpose   `json:"purpose"`
	ExpiresAt   time.Time `json:"expires_at"`
	ResendAfter time.Time `json:"resend_after"`
}

// AuthResult is returned by every operation that issues credentials.
// RefreshToken is empty on a non-rotating refresh.
type AuthResult struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at,omitempty"`
	Identity         *Identity `json:"identity,omitempty"`
	Created          bool      `json:"created,omitempty"`
}

// Identity is a directory user record.
type Identity = directory.Identity

// ProfileUpdate lists optional profile changes; nil fields are untouched.
type ProfileUpdate = directory.ProfileUpdate

// IdentityStore persists identities.
type IdentityStore = directory.Store

// Stats aggregates activity since a point in time.
type Stats struct {
	Since            time.Time `json:"since"`
	ChallengesIssued int64     `json:"challenges_issued"`
	SuccessfulLogins int64     `json:"successful_logins"`
	FailedLogins     int64     `json:"failed_logins"`
	SuccessRate      float64   `json:"success_rate"`
	NewIdentities    int64     `json:"new_identities"`
}

func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Time("since", s.Since).
		Int64("challenges_issued", s.ChallengesIssued).
		Int64("successful_logins", s.SuccessfulLogins).
		Int64("failed_logins", s.FailedLogins).
		Float64("success_rate", s.SuccessRate).
		Int64("new_identities", s.NewIdentities)
}

// PurgeReport counts records removed by PurgeExpired.
type PurgeReport struct {
	Challenges int   `json:"challenges"`
	Attempts   int64 `json:"attempts"`
}

func (r PurgeReport) MarshalZerologObject(e *zerolog.Event) {
	e.Int("challenges", r.Challenges).Int64("attempts", r.Attempts)
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink is an [AuditSink] that writes events through zerolog.
type LoggerSink = internalaudit.LoggerSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLoggerSink creates a [LoggerSink] writing to logger.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

// MetricID identifies a specific counter or histogram in the in-process
// metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricChallengeIssued      = MetricID(internalmetrics.MetricChallengeIssued)
	MetricChallengeCooldown    = MetricID(internalmetrics.MetricChallengeCooldown)
	MetricChallengeThrottled   = MetricID(internalmetrics.MetricChallengeThrottled)
	MetricChallengeVerified    = MetricID(internalmetrics.MetricChallengeVerified)
	MetricChallengeMismatch    = MetricID(internalmetrics.MetricChallengeMismatch)
	MetricChallengeExhausted   = MetricID(internalmetrics.MetricChallengeExhausted)
	MetricChallengeExpired     = MetricID(internalmetrics.MetricChallengeExpired)
	MetricDeliveryQueued       = MetricID(internalmetrics.MetricDeliveryQueued)
	MetricDeliveryDropped      = MetricID(internalmetrics.MetricDeliveryDropped)
	MetricDeliverySent         = MetricID(internalmetrics.MetricDeliverySent)
	MetricDeliveryFailed       = MetricID(internalmetrics.MetricDeliveryFailed)
	MetricIdentityCreated      = MetricID(internalmetrics.MetricIdentityCreated)
	MetricLoginSuccess         = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure         = MetricID(internalmetrics.MetricLoginFailure)
	MetricLockoutRejected      = MetricID(internalmetrics.MetricLockoutRejected)
	MetricRefreshSuccess       = MetricID(internalmetrics.MetricRefreshSuccess)
	MetricRefreshFailure       = MetricID(internalmetrics.MetricRefreshFailure)
	MetricLogout               = MetricID(internalmetrics.MetricLogout)
	MetricPasswordResetSuccess = MetricID(internalmetrics.MetricPasswordResetSuccess)
	MetricVerifyAccessFailure  = MetricID(internalmetrics.MetricVerifyAccessFailure)
	MetricPurgedChallenges     = MetricID(internalmetrics.MetricPurgedChallenges)
	MetricPurgedAttempts       = MetricID(internalmetrics.MetricPurgedAttempts)
	MetricVerifyAccessLatency  = MetricID(internalmetrics.MetricVerifyAccessLatency)

	metricIDCount = internalmetrics.MetricIDCount
)

// Metrics holds atomic counters and optional latency histograms.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance configured by cfg. When Enabled is
// false, all operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
