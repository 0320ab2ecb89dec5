package phoneauth

import (
	"testing"
	"time"
)

func TestDefaultConfigNeedsKeys(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected default config without keys to be invalid")
	}

	cfg = testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected test config to be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "code length min",
			mutate:    func(c *Config) { c.OTP.CodeLength = 4 },
			wantValid: true,
		},
		{
			name:      "code length too short",
			mutate:    func(c *Config) { c.OTP.CodeLength = 3 },
			wantValid: false,
		},
		{
			name:      "code length too long",
			mutate:    func(c *Config) { c.OTP.CodeLength = 11 },
			wantValid: false,
		},
		{
			name:      "zero ttl",
			mutate:    func(c *Config) { c.OTP.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "zero cooldown allowed",
			mutate:    func(c *Config) { c.OTP.Cooldown = 0 },
			wantValid: true,
		},
		{
			name:      "cooldown longer than ttl",
			mutate:    func(c *Config) { c.OTP.Cooldown = c.OTP.TTL + time.Second },
			wantValid: false,
		},
		{
			name:      "short hash key",
			mutate:    func(c *Config) { c.OTP.HashKey = []byte("short") },
			wantValid: false,
		},
		{
			name:      "hash key",
			mutate:    func(c *Config) { c.OTP.HashKey = []byte("0123456789abcdef") },
			wantValid: true,
		},
		{
			name:      "zero max attempts",
			mutate:    func(c *Config) { c.OTP.MaxAttempts = 0 },
			wantValid: false,
		},
		{
			name: "origin threshold below phone threshold",
			mutate: func(c *Config) {
				c.Lockout.PhoneThreshold = 5
				c.Lockout.OriginThreshold = 4
			},
			wantValid: false,
		},
		{
			name:      "refresh shorter than access",
			mutate:    func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL },
			wantValid: false,
		},
		{
			name:      "hs256 short key",
			mutate:    func(c *Config) { c.JWT.PrivateKey = []byte("short") },
			wantValid: false,
		},
		{
			name:      "unknown signing method",
			mutate:    func(c *Config) { c.JWT.SigningMethod = "rs256" },
			wantValid: false,
		},
		{
			name: "ed25519 without public key",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "ed25519"
				c.JWT.PublicKey = nil
			},
			wantValid: false,
		},
		{
			name:      "argon2 memory too low",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name:      "password max below min",
			mutate:    func(c *Config) { c.Password.MaxBytes = 4 },
			wantValid: false,
		},
		{
			name:      "zero workers",
			mutate:    func(c *Config) { c.Delivery.Workers = 0 },
			wantValid: false,
		},
		{
			name:      "no retries allowed",
			mutate:    func(c *Config) { c.Delivery.MaxRetries = 0 },
			wantValid: true,
		},
		{
			name:      "challenge retention below ttl",
			mutate:    func(c *Config) { c.Retention.ChallengeRetention = time.Minute },
			wantValid: false,
		},
		{
			name:      "attempt retention below lockout window",
			mutate:    func(c *Config) { c.Retention.AttemptRetention = time.Minute },
			wantValid: false,
		},
		{
			name: "throttle disabled ignores limits",
			mutate: func(c *Config) {
				c.Throttle.Enabled = false
				c.Throttle.MaxChallengeRequestsPerOrigin = 0
			},
			wantValid: true,
		},
		{
			name:      "throttle enabled zero limit",
			mutate:    func(c *Config) { c.Throttle.MaxChallengeRequestsPerOrigin = 0 },
			wantValid: false,
		},
		{
			name: "audit enabled zero buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "same redis prefixes",
			mutate: func(c *Config) {
				c.Redis.RevocationPrefix = c.Redis.ChallengePrefix
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestConfigReturnsCopy(t *testing.T) {
	te := newTestEngine(t, nil)
	cfg := te.Config()
	cfg.JWT.PrivateKey[0] = 'X'
	if te.Config().JWT.PrivateKey[0] == 'X' {
		t.Fatalf("Config must return a deep copy of key material")
	}
}

func TestSecurityReportFlagsCheapHashing(t *testing.T) {
	te := newTestEngine(t, nil)
	report := te.SecurityReport()
	if report.SigningAlgorithm != "hs256" || report.CodeLength != 6 {
		t.Fatalf("unexpected report %+v", report)
	}
	found := false
	for _, w := range report.Warnings {
		if w == "argon2 memory below 64 MiB" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected argon2 warning, got %v", report.Warnings)
	}
}
