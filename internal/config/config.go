// Package config loads process configuration from the environment and an
// optional .env file using Viper, and translates it into engine, delivery,
// and sweeper settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/delivery"
	"github.com/MrEthical07/phoneauth/sweeper"
	"github.com/spf13/viper"
)

// Config holds process configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// AppEnv is "development" or "production". Production refuses the
	// console SMS provider.
	AppEnv string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogPretty switches to the human-readable console writer.
	LogPretty bool `mapstructure:"LOG_PRETTY"`
	// TrustProxy reads the client address from X-Forwarded-For.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`
	// AppName appears in SMS texts.
	AppName string `mapstructure:"APP_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// DatabaseURL selects the Postgres identity directory when set; the
	// Redis directory is used otherwise.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	OTPLength      int           `mapstructure:"OTP_LENGTH"`
	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPCooldown    time.Duration `mapstructure:"OTP_COOLDOWN"`
	// OTPHashKey keys stored code hashes; empty derives one from the JWT key.
	OTPHashKey string `mapstructure:"OTP_HASH_KEY"`

	LockoutWindow          time.Duration `mapstructure:"LOCKOUT_WINDOW"`
	LockoutPhoneThreshold  int           `mapstructure:"LOCKOUT_PHONE_THRESHOLD"`
	LockoutOriginThreshold int           `mapstructure:"LOCKOUT_ORIGIN_THRESHOLD"`

	// JWTSigningMethod is "ed25519" or "hs256".
	JWTSigningMethod string `mapstructure:"JWT_SIGNING_METHOD"`
	// JWTPrivateKey is a PEM-encoded key, a path to one, or the HS256 secret.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is a PEM-encoded key or a path to one. Unused for hs256.
	JWTPublicKey       string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTAudience        string        `mapstructure:"JWT_AUDIENCE"`
	JWTAccessTTL       time.Duration `mapstructure:"JWT_ACCESS_TTL"`
	JWTRefreshTTL      time.Duration `mapstructure:"JWT_REFRESH_TTL"`
	JWTRotateRefresh   bool          `mapstructure:"JWT_ROTATE_REFRESH"`
	PasswordMinLength  int           `mapstructure:"PASSWORD_MIN_LENGTH"`
	Argon2MemoryKB     uint32        `mapstructure:"ARGON2_MEMORY_KB"`
	Argon2Time         uint32        `mapstructure:"ARGON2_TIME"`
	Argon2Parallelism  uint8         `mapstructure:"ARGON2_PARALLELISM"`
	ChallengeRetention time.Duration `mapstructure:"CHALLENGE_RETENTION"`
	AttemptRetention   time.Duration `mapstructure:"ATTEMPT_RETENTION"`
	ThrottlePerOrigin  int           `mapstructure:"THROTTLE_PER_ORIGIN"`
	ThrottleWindow     time.Duration `mapstructure:"THROTTLE_WINDOW"`
	AuditEnabled       bool          `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled     bool          `mapstructure:"METRICS_ENABLED"`

	// SMSProvider is console, http, or twilio.
	SMSProvider    string        `mapstructure:"SMS_PROVIDER"`
	SMSBaseURL     string        `mapstructure:"SMS_BASE_URL"`
	SMSAPIKey      string        `mapstructure:"SMS_API_KEY"`
	SMSAPISecret   string        `mapstructure:"SMS_API_SECRET"`
	SMSFrom        string        `mapstructure:"SMS_FROM"`
	SMSTimeout     time.Duration `mapstructure:"SMS_TIMEOUT"`
	SMSWorkers     int           `mapstructure:"SMS_WORKERS"`
	SMSQueueSize   int           `mapstructure:"SMS_QUEUE_SIZE"`
	SMSMaxRetries  int           `mapstructure:"SMS_MAX_RETRIES"`
	SMSRetryBase   time.Duration `mapstructure:"SMS_RETRY_BASE"`
	SMSWelcome     bool          `mapstructure:"SMS_WELCOME"`
	SMSSecurityAlt bool          `mapstructure:"SMS_SECURITY_ALERTS"`

	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	StatsHour     uint          `mapstructure:"STATS_HOUR"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path. A missing file is
// ignored.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := phoneauth.DefaultConfig()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("APP_NAME", d.AppName)

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("OTP_LENGTH", d.OTP.CodeLength)
	v.SetDefault("OTP_TTL", d.OTP.TTL)
	v.SetDefault("OTP_MAX_ATTEMPTS", d.OTP.MaxAttempts)
	v.SetDefault("OTP_COOLDOWN", d.OTP.Cooldown)
	v.SetDefault("OTP_HASH_KEY", "")

	v.SetDefault("LOCKOUT_WINDOW", d.Lockout.Window)
	v.SetDefault("LOCKOUT_PHONE_THRESHOLD", d.Lockout.PhoneThreshold)
	v.SetDefault("LOCKOUT_ORIGIN_THRESHOLD", d.Lockout.OriginThreshold)

	v.SetDefault("JWT_SIGNING_METHOD", d.JWT.SigningMethod)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_ACCESS_TTL", d.JWT.AccessTTL)
	v.SetDefault("JWT_REFRESH_TTL", d.JWT.RefreshTTL)
	v.SetDefault("JWT_ROTATE_REFRESH", false)

	v.SetDefault("PASSWORD_MIN_LENGTH", d.Password.MinLength)
	v.SetDefault("ARGON2_MEMORY_KB", d.Password.Memory)
	v.SetDefault("ARGON2_TIME", d.Password.Time)
	v.SetDefault("ARGON2_PARALLELISM", d.Password.Parallelism)

	v.SetDefault("CHALLENGE_RETENTION", d.Retention.ChallengeRetention)
	v.SetDefault("ATTEMPT_RETENTION", d.Retention.AttemptRetention)
	v.SetDefault("THROTTLE_PER_ORIGIN", d.Throttle.MaxChallengeRequestsPerOrigin)
	v.SetDefault("THROTTLE_WINDOW", d.Throttle.Window)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("METRICS_ENABLED", true)

	v.SetDefault("SMS_PROVIDER", "console")
	v.SetDefault("SMS_BASE_URL", "")
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_API_SECRET", "")
	v.SetDefault("SMS_FROM", "")
	v.SetDefault("SMS_TIMEOUT", d.Delivery.SendTimeout)
	v.SetDefault("SMS_WORKERS", d.Delivery.Workers)
	v.SetDefault("SMS_QUEUE_SIZE", d.Delivery.QueueSize)
	v.SetDefault("SMS_MAX_RETRIES", d.Delivery.MaxRetries)
	v.SetDefault("SMS_RETRY_BASE", d.Delivery.RetryBase)
	v.SetDefault("SMS_WELCOME", d.Delivery.WelcomeMessage)
	v.SetDefault("SMS_SECURITY_ALERTS", d.Delivery.SecurityAlerts)

	v.SetDefault("SWEEP_INTERVAL", time.Hour)
	v.SetDefault("STATS_HOUR", 0)
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set")
	}
	kind, err := delivery.ParseProviderKind(c.SMSProvider)
	if err != nil {
		return fmt.Errorf("config: SMS_PROVIDER: %w", err)
	}
	if kind == delivery.ProviderConsole && c.IsProduction() {
		return errors.New("config: SMS_PROVIDER=console must not be used when APP_ENV=production")
	}
	if kind != delivery.ProviderConsole && c.SMSAPIKey == "" {
		return errors.New("config: SMS_API_KEY must be set for " + kind.String())
	}
	if kind == delivery.ProviderTwilio && c.SMSAPISecret == "" {
		return errors.New("config: SMS_API_SECRET must be set for twilio")
	}
	if kind == delivery.ProviderHTTP && c.SMSBaseURL == "" {
		return errors.New("config: SMS_BASE_URL must be set for http")
	}
	if c.StatsHour > 23 {
		return errors.New("config: STATS_HOUR must be between 0 and 23")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Engine translates the settings into a validated [phoneauth.Config].
func (c *Config) Engine() (phoneauth.Config, error) {
	cfg := phoneauth.DefaultConfig()
	cfg.AppName = c.AppName

	cfg.OTP.CodeLength = c.OTPLength
	cfg.OTP.TTL = c.OTPTTL
	cfg.OTP.MaxAttempts = c.OTPMaxAttempts
	cfg.OTP.Cooldown = c.OTPCooldown
	if c.OTPHashKey != "" {
		cfg.OTP.HashKey = []byte(c.OTPHashKey)
	}

	cfg.Lockout.Window = c.LockoutWindow
	cfg.Lockout.PhoneThreshold = c.LockoutPhoneThreshold
	cfg.Lockout.OriginThreshold = c.LockoutOriginThreshold

	cfg.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.JWTAccessTTL
	cfg.JWT.RefreshTTL = c.JWTRefreshTTL
	cfg.JWT.RotateRefreshTokens = c.JWTRotateRefresh

	private, err := readKey(c.JWTPrivateKey)
	if err != nil {
		return phoneauth.Config{}, fmt.Errorf("config: JWT_PRIVATE_KEY: %w", err)
	}
	cfg.JWT.PrivateKey = private
	if cfg.JWT.SigningMethod != "hs256" {
		public, err := readKey(c.JWTPublicKey)
		if err != nil {
			return phoneauth.Config{}, fmt.Errorf("config: JWT_PUBLIC_KEY: %w", err)
		}
		cfg.JWT.PublicKey = public
	}

	cfg.Password.MinLength = c.PasswordMinLength
	cfg.Password.Memory = c.Argon2MemoryKB
	cfg.Password.Time = c.Argon2Time
	cfg.Password.Parallelism = c.Argon2Parallelism

	cfg.Retention.ChallengeRetention = c.ChallengeRetention
	cfg.Retention.AttemptRetention = c.AttemptRetention

	cfg.Throttle.Enabled = c.ThrottlePerOrigin > 0
	cfg.Throttle.MaxChallengeRequestsPerOrigin = c.ThrottlePerOrigin
	cfg.Throttle.Window = c.ThrottleWindow

	cfg.Delivery.Workers = c.SMSWorkers
	cfg.Delivery.QueueSize = c.SMSQueueSize
	cfg.Delivery.MaxRetries = c.SMSMaxRetries
	cfg.Delivery.RetryBase = c.SMSRetryBase
	cfg.Delivery.SendTimeout = c.SMSTimeout
	cfg.Delivery.WelcomeMessage = c.SMSWelcome
	cfg.Delivery.SecurityAlerts = c.SMSSecurityAlt

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return phoneauth.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Provider returns the SMS provider settings.
func (c *Config) Provider() (delivery.ProviderConfig, error) {
	kind, err := delivery.ParseProviderKind(c.SMSProvider)
	if err != nil {
		return delivery.ProviderConfig{}, err
	}
	return delivery.ProviderConfig{
		Kind:      kind,
		BaseURL:   c.SMSBaseURL,
		APIKey:    c.SMSAPIKey,
		APISecret: c.SMSAPISecret,
		From:      c.SMSFrom,
		Timeout:   c.SMSTimeout,
	}, nil
}

// Sweeper returns the retention job settings.
func (c *Config) Sweeper() sweeper.Config {
	cfg := sweeper.DefaultConfig()
	cfg.PurgeInterval = c.SweepInterval
	cfg.StatsHour = c.StatsHour
	return cfg
}

// readKey accepts inline PEM, a path to a file, or a raw secret.
func readKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		return []byte(strings.ReplaceAll(value, `\n`, "\n")), nil
	}
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		return os.ReadFile(value)
	}
	return []byte(value), nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}
