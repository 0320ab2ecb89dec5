package phoneauth

import (
	"github.com/MrEthical07/phoneauth/internal/security"
	"github.com/rs/zerolog"
)

// SecurityReport summarizes the engine's protective settings and lists
// weak combinations as warnings.
type SecurityReport = security.Report

// SecurityReport returns the posture report for the effective configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:       c.JWT.SigningMethod,
		AccessTTL:              c.JWT.AccessTTL,
		RefreshTTL:             c.JWT.RefreshTTL,
		RefreshRotationEnabled: c.JWT.RotateRefreshTokens,
		Password: security.PasswordReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		CodeLength:            c.OTP.CodeLength,
		CodeTTL:               c.OTP.TTL,
		MaxCodeAttempts:       c.OTP.MaxAttempts,
		ResendCooldown:        c.OTP.Cooldown,
		LockoutWindow:         c.Lockout.Window,
		LockoutPhoneThreshold: c.Lockout.PhoneThreshold,
		ThrottleEnabled:       c.Throttle.Enabled,
		ThrottleMax:           c.Throttle.MaxChallengeRequestsPerOrigin,
		SecurityAlerts:        c.Delivery.SecurityAlerts,
		AuditEnabled:          c.Audit.Enabled,
	})
}

// LogSecurityReport writes the report at info level and each warning at
// warn level.
func (e *Engine) LogSecurityReport(logger zerolog.Logger) {
	report := e.SecurityReport()
	logger.Info().
		Str("signing", report.SigningAlgorithm).
		Dur("access_ttl", report.AccessTTL).
		Dur("refresh_ttl", report.RefreshTTL).
		Bool("refresh_rotation", report.RefreshRotationEnabled).
		Int("code_length", report.CodeLength).
		Int("max_code_attempts", report.MaxCodeAttempts).
		Bool("lockout", report.LockoutActive).
		Bool("origin_throttle", report.OriginThrottleActive).
		Bool("audit", report.AuditActive).
		Msg("security posture")
	for _, w := range report.Warnings {
		logger.Warn().Str("warning", w).Msg("security posture")
	}
}
