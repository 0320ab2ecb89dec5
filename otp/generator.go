package otp

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

const (
	// DefaultLength is the code length used when none is configured.
	DefaultLength = 6
	// MinLength is the shortest code the generator will produce.
	MinLength = 4
	// MaxLength is the longest code the generator will produce.
	MaxLength = 10
)

// ErrInvalidLength is returned when a generator is configured outside
// [MinLength, MaxLength].
var ErrInvalidLength = errors.New("invalid otp length")

// Generator produces one-time codes of a fixed length.
type Generator interface {
	Generate() (string, error)
	Length() int
}

// Random draws each digit independently and uniformly from crypto/rand.
type Random struct {
	length int
	source io.Reader
}

// NewRandom returns a crypto-random generator for codes of the given length.
// A zero length selects DefaultLength.
func NewRandom(length int) (*Random, error) {
	if length == 0 {
		length = DefaultLength
	}
	if length < MinLength || length > MaxLength {
		return nil, ErrInvalidLength
	}
	return &Random{length: length, source: rand.Reader}, nil
}

// Length reports the configured code length.
func (r *Random) Length() int {
	return r.length
}

// Generate returns a fresh code. An error is only possible when the system
// randomness source fails.
func (r *Random) Generate() (string, error) {
	var b strings.Builder
	b.Grow(r.length)

	ten := big.NewInt(10)
	for i := 0; i < r.length; i++ {
		n, err := rand.Int(r.source, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Static always returns the same code.
type Static string

// Generate returns the static code.
func (s Static) Generate() (string, error) {
	return string(s), nil
}

// Length reports the length of the static code.
func (s Static) Length() int {
	return len(s)
}

// IsNumeric reports whether code consists of exactly length ASCII digits.
func IsNumeric(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
