package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"strings"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// ErrInvalidPhone reports a phone number that cannot be canonicalized.
var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone returns the canonical "+<digits>" form of raw. Spaces, dots,
// dashes and parentheses are dropped and a leading "00" is read as "+". The
// country code is mandatory.
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.Grow(len(s))
	b.WriteByte('+')
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}

	out := b.String()
	digits := len(out) - 1
	if digits < minPhoneDigits || digits > maxPhoneDigits || out[1] == '0' {
		return "", ErrInvalidPhone
	}
	return out, nil
}

// MaskPhone keeps the last four digits of phone for logs.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// HashChallengeCode binds a code to its (phone, purpose) slot with
// HMAC-SHA256 under key. Stored hashes are useless without key.
func HashChallengeCode(key []byte, phone, purpose, code string) [32]byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(purpose))
	h.Write([]byte{0})
	h.Write([]byte(phone))
	h.Write([]byte{0})
	h.Write([]byte(code))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveKey returns a 32 byte subkey of secret for label.
func DeriveKey(secret []byte, label string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(label))
	return h.Sum(nil)
}
