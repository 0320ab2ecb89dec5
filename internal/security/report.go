package security

import "time"

// PasswordReport mirrors the Argon2id cost parameters.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarizes the protective settings of a running engine.
type Report struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	RefreshRotationEnabled bool
	Argon2                 PasswordReport
	CodeLength             int
	CodeTTL                time.Duration
	MaxCodeAttempts        int
	ResendCooldown         time.Duration
	LockoutActive          bool
	OriginThrottleActive   bool
	SecurityAlertsActive   bool
	AuditActive            bool
	Warnings               []string
}

// ReportInput carries the settings BuildReport inspects.
type ReportInput struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	RefreshRotationEnabled bool
	Password               PasswordReport
	CodeLength             int
	CodeTTL                time.Duration
	MaxCodeAttempts        int
	ResendCooldown         time.Duration
	LockoutWindow          time.Duration
	LockoutPhoneThreshold  int
	ThrottleEnabled        bool
	ThrottleMax            int
	SecurityAlerts         bool
	AuditEnabled           bool
}

// BuildReport derives a [Report] and flags weak combinations.
func BuildReport(input ReportInput) Report {
	report := Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		RefreshRotationEnabled: input.RefreshRotationEnabled,
		Argon2:                 input.Password,
		CodeLength:             input.CodeLength,
		CodeTTL:                input.CodeTTL,
		MaxCodeAttempts:        input.MaxCodeAttempts,
		ResendCooldown:         input.ResendCooldown,
		LockoutActive:          input.LockoutWindow > 0 && input.LockoutPhoneThreshold > 0,
		OriginThrottleActive:   input.ThrottleEnabled && input.ThrottleMax > 0,
		SecurityAlertsActive:   input.SecurityAlerts,
		AuditActive:            input.AuditEnabled,
	}

	if input.CodeLength < 6 {
		report.Warnings = append(report.Warnings, "codes shorter than 6 digits")
	}
	if input.MaxCodeAttempts > 5 {
		report.Warnings = append(report.Warnings, "more than 5 attempts per code")
	}
	if input.CodeTTL > 15*time.Minute {
		report.Warnings = append(report.Warnings, "codes live longer than 15 minutes")
	}
	if input.ResendCooldown == 0 {
		report.Warnings = append(report.Warnings, "no resend cooldown")
	}
	if !report.OriginThrottleActive {
		report.Warnings = append(report.Warnings, "origin throttle disabled")
	}
	if input.AccessTTL > time.Hour {
		report.Warnings = append(report.Warnings, "access tokens live longer than 1 hour")
	}
	if input.Password.Memory < 64*1024 {
		report.Warnings = append(report.Warnings, "argon2 memory below 64 MiB")
	}
	return report
}
