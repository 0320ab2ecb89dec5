package password

import (
	"errors"
	"strings"
	"testing"
)

// cheapConfig keeps hashing fast in tests; production defaults are higher.
func cheapConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := newHasher(t, cheapConfig())

	encoded, err := h.Hash("Tr1cky-passphrase")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	for pw, want := range map[string]bool{
		"Tr1cky-passphrase":  true,
		"tr1cky-passphrase":  false,
		"Tr1cky-passphrase ": false,
	} {
		ok, err := h.Verify(pw, encoded)
		if err != nil {
			t.Fatalf("Verify(%q) error: %v", pw, err)
		}
		if ok != want {
			t.Errorf("Verify(%q) = %v, want %v", pw, ok, want)
		}
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	h := newHasher(t, cheapConfig())

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestVerifyMalformedHashes(t *testing.T) {
	h := newHasher(t, cheapConfig())
	valid, err := h.Hash("version-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := map[string]string{
		"not phc":           "not-a-phc-hash",
		"bcrypt":            "$2a$10$abcdefghijklmnopqrstuu",
		"wrong version":     strings.Replace(valid, "$v=19$", "$v=18$", 1),
		"weak memory":       strings.Replace(valid, "m=8192", "m=1024", 1),
		"duplicate param":   strings.Replace(valid, "t=1,p=1", "t=1,t=1", 1),
		"unknown param":     strings.Replace(valid, "p=1", "x=1", 1),
		"bad salt encoding": strings.Replace(valid, "$m=8192,t=1,p=1$", "$m=8192,t=1,p=1$!!!", 1),
		"empty key":         valid[:strings.LastIndex(valid, "$")+1],
	}
	for name, encoded := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("version-test", encoded); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
			if _, err := h.NeedsUpgrade(encoded); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("NeedsUpgrade: expected ErrMalformedHash, got %v", err)
			}
		})
	}
}

func TestNeedsUpgrade(t *testing.T) {
	stored := newHasher(t, cheapConfig())
	encoded, err := stored.Hash("upgrade-me")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   bool
	}{
		{"same parameters", func(*Config) {}, false},
		{"more memory", func(c *Config) { c.Memory = 16 * 1024 }, true},
		{"more passes", func(c *Config) { c.Time = 2 }, true},
		{"more lanes", func(c *Config) { c.Parallelism = 2 }, true},
		{"longer key", func(c *Config) { c.KeyLength = 64 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cheapConfig()
			tt.mutate(&cfg)
			got, err := newHasher(t, cfg).NeedsUpgrade(encoded)
			if err != nil {
				t.Fatalf("NeedsUpgrade error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpgradedHashStillVerifiesWithOldParameters(t *testing.T) {
	old := newHasher(t, cheapConfig())
	encoded, err := old.Hash("carry-over")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cfg := cheapConfig()
	cfg.Time = 2
	current := newHasher(t, cfg)
	ok, err := current.Verify("carry-over", encoded)
	if err != nil || !ok {
		t.Fatalf("hash from old parameters must verify: ok=%v err=%v", ok, err)
	}
}

func TestPasswordByteLimits(t *testing.T) {
	cfg := cheapConfig()
	cfg.MaxPasswordBytes = 64
	h := newHasher(t, cfg)

	if _, err := h.Hash(""); !errors.Is(err, ErrPasswordEmpty) {
		t.Fatalf("empty: expected ErrPasswordEmpty, got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 65)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("65 bytes: expected ErrPasswordTooLong, got %v", err)
	}

	exact := strings.Repeat("b", 64)
	encoded, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("64 bytes should hash: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("c", 65), encoded); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Verify 65 bytes: expected ErrPasswordTooLong, got %v", err)
	}

	// Minimum length is a policy decision, not a hashing one.
	if _, err := h.Hash("short"); err != nil {
		t.Fatalf("hasher should not enforce minimum length: %v", err)
	}
	if err := DefaultPolicy().Check("short", ""); !errors.Is(err, ErrPolicyTooShort) {
		t.Fatalf("expected ErrPolicyTooShort, got %v", err)
	}
}

func TestDefaultMaxPasswordBytesApplied(t *testing.T) {
	h := newHasher(t, cheapConfig())
	if h.MaxPasswordBytes() != DefaultMaxPasswordBytes {
		t.Fatalf("MaxPasswordBytes = %d", h.MaxPasswordBytes())
	}
	if _, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected password > %d bytes to be rejected", DefaultMaxPasswordBytes)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"max bytes":   func(c *Config) { c.MaxPasswordBytes = -1 },
	}
	for name, mutate := range tests {
		cfg := cheapConfig()
		mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Errorf("%s: expected config error", name)
		}
	}
}
