package password

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrPolicyTooShort    = errors.New("password too short")
	ErrPolicyTooLong     = errors.New("password too long")
	ErrPolicyNumericOnly = errors.New("password entirely numeric")
	ErrPolicyCommon      = errors.New("password too common")
	ErrPolicyLikePhone   = errors.New("password too similar to phone number")
)

// Policy is the acceptance rule set applied before hashing a new password.
type Policy struct {
	MinLength      int
	MaxBytes       int
	AllowNumeric   bool
	AllowCommon    bool
	AllowLikePhone bool
}

// DefaultPolicy returns an 8-character minimum with every content check on.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: 8,
		MaxBytes:  DefaultMaxPasswordBytes,
	}
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"qwerty":      {},
	"qwertyuiop":  {},
	"letmein":     {},
	"welcome":     {},
	"iloveyou":    {},
	"admin123":    {},
	"abc12345":    {},
	"football":    {},
	"baseball":    {},
	"sunshine":    {},
	"princess":    {},
	"trustno1":    {},
	"passw0rd":    {},
	"whatever":    {},
	"superman":    {},
	"starwars":    {},
	"dragon123":   {},
}

// Check returns the first rule password violates. phone, when set, is the
// canonical number of the account the password is for.
func (p Policy) Check(password, phone string) error {
	if utf8.RuneCountInString(password) < p.MinLength {
		return ErrPolicyTooShort
	}
	if p.MaxBytes > 0 && len(password) > p.MaxBytes {
		return ErrPolicyTooLong
	}
	if !p.AllowNumeric && isAllDigits(password) {
		return ErrPolicyNumericOnly
	}
	if !p.AllowCommon {
		if _, ok := commonPasswords[strings.ToLower(password)]; ok {
			return ErrPolicyCommon
		}
	}
	if !p.AllowLikePhone && phone != "" {
		if digits := strings.TrimPrefix(phone, "+"); strings.Contains(password, digits) {
			return ErrPolicyLikePhone
		}
	}
	return nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
