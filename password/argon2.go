package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMaxPasswordBytes bounds hashing cost when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPasswordEmpty is returned when hashing an empty password.
	ErrPasswordEmpty = errors.New("password empty")
	// ErrPasswordTooLong is returned for inputs above MaxPasswordBytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrMalformedHash reports a stored hash that is not a supported
	// Argon2id PHC string. The wrapped message names the bad part.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config defines Argon2id cost parameters. Treat it as immutable once the
// hasher is built.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// Argon2 hashes and verifies passwords stored as PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt b64>$<hash b64>
//
// It is safe for concurrent use.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns an [Argon2] hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{config: cfg}, nil
}

// MaxPasswordBytes returns the longest accepted input.
func (a *Argon2) MaxPasswordBytes() int {
	return a.config.MaxPasswordBytes
}

// Hash returns a PHC-encoded Argon2id hash with a fresh random salt. Length
// rules beyond the byte ceiling belong to [Policy]. Input bytes are used
// as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrPasswordEmpty
	}
	if len(password) > a.config.MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash, comparing in
// constant time. A hash that cannot be decoded yields ErrMalformedHash.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration. Callers re-hash after a
// successful Verify when it returns true.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	return a.config.Memory > h.memory ||
		a.config.Time > h.time ||
		a.config.Parallelism > h.parallelism ||
		a.config.KeyLength != uint32(len(h.key)), nil
}

// phc is a decoded Argon2id PHC string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) derive(password string, keyLength uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLength)
}

func (h phc) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.memory,
		h.time,
		h.parallelism,
		base64.StdEncoding.EncodeToString(h.salt),
		base64.StdEncoding.EncodeToString(h.key),
	)
}

func malformed(part string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, part)
}

func decodePHC(encoded string) (phc, error) {
	// "", algorithm, version, params, salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return phc{}, malformed("layout")
	}
	if parts[1] != algorithmID {
		return phc{}, malformed("algorithm")
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return phc{}, malformed("version")
	}
	if v, err := strconv.Atoi(version); err != nil || v != argon2.Version {
		return phc{}, malformed("version")
	}

	var h phc
	if err := h.decodeParams(parts[3]); err != nil {
		return phc{}, err
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return phc{}, malformed("salt")
	}
	if h.key, err = base64.StdEncoding.DecodeString(parts[5]); err != nil || len(h.key) == 0 {
		return phc{}, malformed("key")
	}
	return h, nil
}

// decodeParams reads "m=..,t=..,p=.." in any order, each exactly once.
func (h *phc) decodeParams(part string) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return malformed("parameters")
	}

	seen := make(map[string]bool, 3)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return malformed("parameters")
		}
		seen[name] = true

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return malformed("memory")
			}
			h.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return malformed("time")
			}
			h.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return malformed("parallelism")
			}
			h.parallelism = uint8(v)
		default:
			return malformed("parameters")
		}
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}
