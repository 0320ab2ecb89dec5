package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/delivery"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	os.Clearenv()
	for k, v := range kv {
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("setenv %s: %v", k, err)
		}
	}
	t.Cleanup(os.Clearenv)
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, nil)

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.OTPTTL != 5*time.Minute {
		t.Errorf("OTPTTL = %v", cfg.OTPTTL)
	}
	if cfg.OTPMaxAttempts != 3 {
		t.Errorf("OTPMaxAttempts = %d", cfg.OTPMaxAttempts)
	}
	if cfg.SMSProvider != "console" {
		t.Errorf("SMSProvider = %q", cfg.SMSProvider)
	}
	if cfg.IsProduction() {
		t.Error("default env should not be production")
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, map[string]string{
		"HTTP_ADDR":          ":9000",
		"OTP_TTL":            "2m",
		"OTP_MAX_ATTEMPTS":   "5",
		"JWT_SIGNING_METHOD": "HS256",
		"JWT_PRIVATE_KEY":    testSecret,
		"JWT_ROTATE_REFRESH": "true",
		"ARGON2_MEMORY_KB":   "8192",
		"STATS_HOUR":         "3",
		"OTP_HASH_KEY":       "otp-hash-key-0123456789",
	})

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.OTPTTL != 2*time.Minute || cfg.OTPMaxAttempts != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	eng, err := cfg.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if eng.JWT.SigningMethod != "hs256" {
		t.Errorf("SigningMethod = %q", eng.JWT.SigningMethod)
	}
	if string(eng.JWT.PrivateKey) != testSecret {
		t.Errorf("PrivateKey not passed through")
	}
	if eng.JWT.PublicKey != nil {
		t.Errorf("PublicKey should be empty for hs256")
	}
	if !eng.JWT.RotateRefreshTokens {
		t.Error("RotateRefreshTokens not set")
	}
	if eng.Password.Memory != 8192 {
		t.Errorf("Memory = %d", eng.Password.Memory)
	}
	if string(eng.OTP.HashKey) != "otp-hash-key-0123456789" {
		t.Errorf("HashKey = %q", eng.OTP.HashKey)
	}

	sw := cfg.Sweeper()
	if sw.StatsHour != 3 || sw.PurgeInterval != time.Hour {
		t.Errorf("sweeper config = %+v", sw)
	}
}

func TestLoadEnvFile(t *testing.T) {
	setEnv(t, map[string]string{"OTP_LENGTH": "8"})

	path := filepath.Join(t.TempDir(), "test.env")
	body := "OTP_LENGTH=4\nAPP_NAME=Acme\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AppName != "Acme" {
		t.Errorf("AppName = %q, want value from file", cfg.AppName)
	}
	if cfg.OTPLength != 8 {
		t.Errorf("OTPLength = %d, env should win over file", cfg.OTPLength)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	setEnv(t, nil)

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"SMS_PROVIDER": "pigeon"}},
		{"console in production", map[string]string{"APP_ENV": "production"}},
		{"http without url", map[string]string{"SMS_PROVIDER": "http", "SMS_API_KEY": "k"}},
		{"twilio without secret", map[string]string{"SMS_PROVIDER": "twilio", "SMS_API_KEY": "AC1"}},
		{"gateway without key", map[string]string{"SMS_PROVIDER": "http", "SMS_BASE_URL": "https://sms.test"}},
		{"stats hour", map[string]string{"STATS_HOUR": "24"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			if _, err := LoadFile(""); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEngineRejectsMissingKeys(t *testing.T) {
	setEnv(t, nil)

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if _, err := cfg.Engine(); err == nil {
		t.Fatal("expected error without signing keys")
	}
}

func TestEngineReadsKeyFiles(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "secret")
	if err := os.WriteFile(keyPath, []byte(testSecret), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	setEnv(t, map[string]string{
		"JWT_SIGNING_METHOD": "hs256",
		"JWT_PRIVATE_KEY":    keyPath,
	})

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	eng, err := cfg.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if string(eng.JWT.PrivateKey) != testSecret {
		t.Errorf("PrivateKey = %q, want file contents", eng.JWT.PrivateKey)
	}
}

func TestProvider(t *testing.T) {
	setEnv(t, map[string]string{
		"SMS_PROVIDER":   "twilio",
		"SMS_API_KEY":    "AC123",
		"SMS_API_SECRET": "token",
		"SMS_FROM":       "+15005550006",
		"SMS_TIMEOUT":    "3s",
	})

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	p, err := cfg.Provider()
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.Kind != delivery.ProviderTwilio || p.APIKey != "AC123" || p.APISecret != "token" {
		t.Errorf("provider = %+v", p)
	}
	if p.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", p.Timeout)
	}
}
