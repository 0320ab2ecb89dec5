package phoneauth

import (
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/otp"
)

// Config defines every tunable of the Engine. Start from DefaultConfig and
// override what you need; Build calls Validate.
type Config struct {
	AppName   string
	OTP       OTPConfig
	Lockout   LockoutConfig
	JWT       JWTConfig
	Password  PasswordConfig
	Delivery  DeliveryConfig
	Retention RetentionConfig
	Throttle  ThrottleConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Redis     RedisConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls challenge issuance and verification.
type OTPConfig struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
	Cooldown    time.Duration
	// HashKey keys the stored code hashes. When empty a subkey of
	// JWT.PrivateKey is used.
	HashKey []byte
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the abuse guard.
type LockoutConfig struct {
	Window          time.Duration
	PhoneThreshold  int
	OriginThreshold int
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls credential signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// revokes the presented one.
	RotateRefreshTokens bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls Argon2id cost and the acceptance policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxBytes       int
	AllowNumeric   bool
	AllowCommon    bool
	AllowLikePhone bool
}

/*
====================================
DELIVERY CONFIG
====================================
*/

// DeliveryConfig controls the asynchronous SMS pipeline.
type DeliveryConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBase      time.Duration
	SendTimeout    time.Duration
	WelcomeMessage bool
	SecurityAlerts bool
}

/*
====================================
RETENTION CONFIG
====================================
*/

// RetentionConfig controls how long spent state is kept.
type RetentionConfig struct {
	ChallengeRetention time.Duration
	AttemptRetention   time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig limits challenge requests per network origin.
type ThrottleConfig struct {
	Enabled                       bool
	MaxChallengeRequestsPerOrigin int
	Window                        time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// RedisConfig sets key prefixes so several deployments can share a database.
type RedisConfig struct {
	ChallengePrefix  string
	RevocationPrefix string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. Signing keys are left empty.
func DefaultConfig() Config {
	return Config{
		AppName: "phoneauth",
		OTP: OTPConfig{
			CodeLength:  otp.DefaultLength,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
			Cooldown:    60 * time.Second,
		},
		Lockout: LockoutConfig{
			Window:          time.Hour,
			PhoneThreshold:  5,
			OriginThreshold: 10,
		},
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
			MaxBytes:    1024,
		},
		Delivery: DeliveryConfig{
			Workers:        4,
			QueueSize:      1024,
			MaxRetries:     3,
			RetryBase:      60 * time.Second,
			SendTimeout:    15 * time.Second,
			WelcomeMessage: true,
			SecurityAlerts: true,
		},
		Retention: RetentionConfig{
			ChallengeRetention: 24 * time.Hour,
			AttemptRetention:   7 * 24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			Enabled:                       true,
			MaxChallengeRequestsPerOrigin: 20,
			Window:                        time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Redis: RedisConfig{
			ChallengePrefix:  "otp",
			RevocationPrefix: "rvk",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.OTP.HashKey = cloneBytes(cfg.OTP.HashKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.CodeLength < otp.MinLength || c.OTP.CodeLength > otp.MaxLength {
		return errors.New("OTP CodeLength must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.Cooldown < 0 {
		return errors.New("OTP Cooldown must be >= 0")
	}
	if c.OTP.Cooldown > c.OTP.TTL {
		return errors.New("OTP Cooldown must not exceed TTL")
	}
	if len(c.OTP.HashKey) > 0 && len(c.OTP.HashKey) < 16 {
		return errors.New("OTP HashKey must be at least 16 bytes")
	}

	// Lockout
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}
	if c.Lockout.PhoneThreshold <= 0 || c.Lockout.OriginThreshold <= 0 {
		return errors.New("Lockout thresholds must be > 0")
	}
	if c.Lockout.OriginThreshold < c.Lockout.PhoneThreshold {
		return errors.New("Lockout OriginThreshold must be >= PhoneThreshold")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxBytes < c.Password.MinLength {
		return errors.New("Password MaxBytes must be >= MinLength")
	}

	// Delivery
	if c.Delivery.Workers <= 0 || c.Delivery.QueueSize <= 0 {
		return errors.New("Delivery Workers and QueueSize must be > 0")
	}
	if c.Delivery.MaxRetries < 0 {
		return errors.New("Delivery MaxRetries must be >= 0")
	}
	if c.Delivery.RetryBase <= 0 || c.Delivery.SendTimeout <= 0 {
		return errors.New("Delivery RetryBase and SendTimeout must be > 0")
	}

	// Retention
	if c.Retention.ChallengeRetention < c.OTP.TTL {
		return errors.New("Retention ChallengeRetention must be >= OTP TTL")
	}
	if c.Retention.AttemptRetention < c.Lockout.Window {
		return errors.New("Retention AttemptRetention must be >= Lockout Window")
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxChallengeRequestsPerOrigin <= 0 || c.Throttle.Window <= 0 {
			return errors.New("Throttle limits must be > 0 when enabled")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	if c.Redis.ChallengePrefix == "" || c.Redis.RevocationPrefix == "" {
		return errors.New("Redis prefixes must not be empty")
	}
	if c.Redis.ChallengePrefix == c.Redis.RevocationPrefix {
		return errors.New("Redis prefixes must differ")
	}
	return nil
}
