package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no identity matches.
	ErrNotFound = errors.New("identity not found")
	// ErrConflict is returned when a unique field (phone or email) is taken.
	ErrConflict = errors.New("identity conflict")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("identity store unavailable")
)

// Identity is one account. PasswordHash is empty for identities that only
// authenticate with a fresh code.
type Identity struct {
	ID              string     `json:"id"`
	Phone           string     `json:"phone"`
	DisplayName     string     `json:"display_name,omitempty"`
	Email           string     `json:"email,omitempty"`
	ShippingAddress string     `json:"shipping_address,omitempty"`
	Verified        bool       `json:"verified"`
	Active          bool       `json:"active"`
	PasswordHash    string     `json:"password_hash,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
}

// HasPassword reports whether the identity can log in with a password.
func (i *Identity) HasPassword() bool {
	return i != nil && i.PasswordHash != ""
}

// ProfileUpdate carries optional profile changes. Nil fields are left as is;
// a pointer to "" clears the field.
type ProfileUpdate struct {
	DisplayName     *string
	Email           *string
	ShippingAddress *string
}

// Store persists identities. Implementations must enforce phone uniqueness
// and email uniqueness (case-insensitive, empty emails excluded).
type Store interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByPhone(ctx context.Context, phone string) (*Identity, error)
	Create(ctx context.Context, identity *Identity) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate, at time.Time) (*Identity, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	CountCreatedSince(ctx context.Context, since time.Time) (int64, error)
}

// Directory applies the resolve-or-create contract on top of a [Store].
type Directory struct {
	store Store
	now   func() time.Time
}

// New returns a [Directory]. now defaults to time.Now.
func New(store Store, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{store: store, now: now}
}

// Store returns the underlying store.
func (d *Directory) Store() Store {
	return d.store
}

// ResolveOrCreate returns the identity registered for phone, creating a
// verified, active one when none exists. created reports which happened.
func (d *Directory) ResolveOrCreate(ctx context.Context, phone, passwordHash, displayName string) (*Identity, bool, error) {
	existing, err := d.store.GetByPhone(ctx, phone)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := d.now().UTC()
	identity := &Identity{
		ID:           uuid.NewString(),
		Phone:        phone,
		DisplayName:  strings.TrimSpace(displayName),
		Verified:     true,
		Active:       true,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.store.Create(ctx, identity); err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		// A concurrent create for the same phone won; return that identity.
		existing, getErr := d.store.GetByPhone(ctx, phone)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	return identity, true, nil
}

// NormalizeEmail lower-cases and trims an email for uniqueness checks.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail performs a shape check: one "@", non-empty local part and a
// dotted domain.
func ValidEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return false
	}
	domain := email[at+1:]
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1 && !strings.ContainsAny(email, " \t\r\n")
}
