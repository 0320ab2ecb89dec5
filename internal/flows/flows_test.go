package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth/internal/stores"
)

var (
	errValidation  = errors.New("validation")
	errLocked      = errors.New("locked")
	errRateLimited = errors.New("rate limited")
	errMismatch    = errors.New("mismatch")
	errExhausted   = errors.New("exhausted")
	errNotFound    = errors.New("not found")
	errInvalid     = errors.New("invalid credentials")
	errDisabled    = errors.New("disabled")
	errUnavailable = errors.New("unavailable")
)

type attemptLog struct {
	failed, succeeded int
}

func testCommon(locked bool, log *attemptLog) Common {
	return Common{
		Now: func() time.Time { return time.Unix(1_700_000_000, 0) },
		NormalizePhone: func(s string) (string, error) {
			if s == "" || s[0] != '+' {
				return "", errValidation
			}
			return s, nil
		},
		IsLocked: func(context.Context, string, string) (bool, string, error) {
			return locked, "phone", nil
		},
		RecordAttempt: func(_ context.Context, _, _, _ string, ok bool) {
			if ok {
				log.succeeded++
			} else {
				log.failed++
			}
		},
		Errors: Errors{
			EngineNotReady:     errors.New("not ready"),
			Validation:         errValidation,
			RateLimited:        errRateLimited,
			NotFound:           errNotFound,
			AttemptsExhausted:  errExhausted,
			CodeMismatch:       errMismatch,
			InvalidCredentials: errInvalid,
			AccountLocked:      errLocked,
			AccountDisabled:    errDisabled,
			Unavailable:        errUnavailable,
		},
	}
}

func hash(phone, purpose, code string) [32]byte {
	var h [32]byte
	copy(h[:], phone+purpose+code)
	return h
}

func TestVerifyLockedSkipsStore(t *testing.T) {
	log := &attemptLog{}
	called := false
	deps := VerifyChallengeDeps{
		Common:   testCommon(true, log),
		HashCode: hash,
		Verify: func(context.Context, string, string, [32]byte, time.Time, int) (*stores.ChallengeRecord, error) {
			called = true
			return nil, nil
		},
	}
	_, err := RunVerifyChallenge(context.Background(), "+15550001111", "login", "123456", deps)
	if !errors.Is(err, errLocked) {
		t.Fatalf("expected lockout, got %v", err)
	}
	if called || log.failed != 0 {
		t.Fatalf("locked verify touched store=%v or recorded attempts=%d", called, log.failed)
	}
}

func TestVerifyRecordsOnlySecretTestingFailures(t *testing.T) {
	cases := []struct {
		storeErr error
		want     error
		failed   int
	}{
		{stores.ErrChallengeMismatch, errMismatch, 1},
		{stores.ErrChallengeAttempts, errExhausted, 1},
		{stores.ErrChallengeNotFound, errNotFound, 0},
		{errors.New("boom"), errUnavailable, 0},
	}
	for _, tc := range cases {
		log := &attemptLog{}
		deps := VerifyChallengeDeps{
			Common:   testCommon(false, log),
			HashCode: hash,
			Verify: func(context.Context, string, string, [32]byte, time.Time, int) (*stores.ChallengeRecord, error) {
				return nil, tc.storeErr
			},
		}
		_, err := RunVerifyChallenge(context.Background(), "+15550001111", "login", "123456", deps)
		if !errors.Is(err, tc.want) {
			t.Fatalf("store error %v: expected %v, got %v", tc.storeErr, tc.want, err)
		}
		if log.failed != tc.failed {
			t.Fatalf("store error %v: expected %d failed attempts, got %d", tc.storeErr, tc.failed, log.failed)
		}
	}
}

func TestRequestChallengeSurvivesDeliveryFailure(t *testing.T) {
	log := &attemptLog{}
	var stored *stores.ChallengeRecord
	deps := RequestChallengeDeps{
		Common:       testCommon(false, log),
		TTL:          5 * time.Minute,
		Cooldown:     time.Minute,
		GenerateCode: func() (string, error) { return "482913", nil },
		HashCode:     hash,
		NewID:        func() string { return "c1" },
		Issue: func(_ context.Context, r *stores.ChallengeRecord, _ stores.IssueParams) error {
			stored = r
			return nil
		},
		Deliver: func(context.Context, string, string, string, time.Duration) error {
			return errors.New("queue full")
		},
	}
	issued, err := RunRequestChallenge(context.Background(), ChallengeRequest{Phone: "+15550001111", Purpose: "registration"}, deps)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if stored == nil || stored.CodeHash != hash("+15550001111", "registration", "482913") {
		t.Fatalf("challenge not stored with code hash: %+v", stored)
	}
	if !issued.ResendAfter.Equal(time.Unix(1_700_000_060, 0)) {
		t.Fatalf("unexpected resend after: %v", issued.ResendAfter)
	}
}

func TestRequestChallengeMapsCooldown(t *testing.T) {
	deps := RequestChallengeDeps{
		Common:       testCommon(false, &attemptLog{}),
		GenerateCode: func() (string, error) { return "1", nil },
		HashCode:     hash,
		NewID:        func() string { return "c1" },
		Issue: func(context.Context, *stores.ChallengeRecord, stores.IssueParams) error {
			return stores.ErrChallengeCooldown
		},
	}
	_, err := RunRequestChallenge(context.Background(), ChallengeRequest{Phone: "+15550001111", Purpose: "login"}, deps)
	if !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestRequestChallengeCooldownSpendsNothing(t *testing.T) {
	throttled, hashed, issued := 0, 0, 0
	deps := RequestChallengeDeps{
		Common:   testCommon(false, &attemptLog{}),
		Cooldown: time.Minute,
		InCooldown: func(context.Context, string, string, time.Time) (bool, error) {
			return true, nil
		},
		CheckThrottle: func(context.Context, string) error {
			throttled++
			return nil
		},
		BuildPayload: func(string, string, string) ([]byte, error) {
			hashed++
			return []byte("hash"), nil
		},
		GenerateCode: func() (string, error) { return "482913", nil },
		HashCode:     hash,
		NewID:        func() string { return "c1" },
		Issue: func(context.Context, *stores.ChallengeRecord, stores.IssueParams) error {
			issued++
			return nil
		},
	}
	in := ChallengeRequest{Phone: "+15550001111", Purpose: "registration", Password: "secret-pass"}
	if _, err := RunRequestChallenge(context.Background(), in, deps); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if throttled != 0 || hashed != 0 || issued != 0 {
		t.Fatalf("cooldown rejection ran later steps: throttle=%d payload=%d issue=%d", throttled, hashed, issued)
	}

	deps.InCooldown = func(context.Context, string, string, time.Time) (bool, error) {
		return false, errors.New("redis down")
	}
	if _, err := RunRequestChallenge(context.Background(), in, deps); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if throttled != 0 {
		t.Fatalf("throttle counted after failed cooldown read")
	}
}

func TestLoginUnknownPhoneIsInvalidCredentials(t *testing.T) {
	log := &attemptLog{}
	burned := false
	deps := LoginDeps{
		Common:         testCommon(false, log),
		LookupIdentity: func(context.Context, string) (*LoginIdentity, error) { return nil, nil },
		VerifyPassword: func(string, string) (bool, error) { return false, nil },
		BurnPassword:   func(string) { burned = true },
	}
	_, err := RunLogin(context.Background(), "+15550001111", "secret-pass", deps)
	if !errors.Is(err, errInvalid) || log.failed != 1 || !burned {
		t.Fatalf("err=%v failed=%d burned=%v", err, log.failed, burned)
	}
}

func TestLoginDisabledAfterPasswordCheck(t *testing.T) {
	log := &attemptLog{}
	deps := LoginDeps{
		Common: testCommon(false, log),
		LookupIdentity: func(context.Context, string) (*LoginIdentity, error) {
			return &LoginIdentity{ID: "u1", PasswordHash: "h", Active: false}, nil
		},
		VerifyPassword: func(string, string) (bool, error) { return true, nil },
	}
	_, err := RunLogin(context.Background(), "+15550001111", "secret-pass", deps)
	if !errors.Is(err, errDisabled) {
		t.Fatalf("expected disabled, got %v", err)
	}
}

func TestLoginUpgradesHashOnlyOnSuccess(t *testing.T) {
	upgrades := 0
	match := false
	deps := LoginDeps{
		Common: testCommon(false, &attemptLog{}),
		LookupIdentity: func(context.Context, string) (*LoginIdentity, error) {
			return &LoginIdentity{ID: "u1", PasswordHash: "h", Active: true}, nil
		},
		VerifyPassword: func(string, string) (bool, error) { return match, nil },
		UpgradeHash: func(_ context.Context, id, pw, encoded string) {
			if id != "u1" || pw != "secret-pass" || encoded != "h" {
				t.Errorf("unexpected upgrade args %q %q %q", id, pw, encoded)
			}
			upgrades++
		},
	}

	if _, err := RunLogin(context.Background(), "+15550001111", "secret-pass", deps); !errors.Is(err, errInvalid) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	match = true
	if _, err := RunLogin(context.Background(), "+15550001111", "secret-pass", deps); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if upgrades != 1 {
		t.Fatalf("upgrades = %d, want 1", upgrades)
	}
}

func TestResetPasswordPolicyRunsBeforeVerify(t *testing.T) {
	verified := false
	deps := ResetPasswordDeps{
		Purpose: "password_reset",
		Verify: VerifyChallengeDeps{
			Common:   testCommon(false, &attemptLog{}),
			HashCode: hash,
			Verify: func(context.Context, string, string, [32]byte, time.Time, int) (*stores.ChallengeRecord, error) {
				verified = true
				return &stores.ChallengeRecord{}, nil
			},
		},
		CheckPassword:  func(string, string) error { return errValidation },
		HashPassword:   func(s string) (string, error) { return s, nil },
		LookupIdentity: func(context.Context, string) (*LoginIdentity, error) { return nil, nil },
		UpdatePassword: func(context.Context, string, string) error { return nil },
	}
	if _, err := RunResetPassword(context.Background(), "+15550001111", "123456", "short", deps); !errors.Is(err, errValidation) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if verified {
		t.Fatal("challenge consumed despite policy failure")
	}
}
