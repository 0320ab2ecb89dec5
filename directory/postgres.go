package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const identityColumns = `id, phone, display_name, email, shipping_address, verified, active,
	password_hash, created_at, updated_at, last_login_at`

// Querier is the subset of pgxpool.Pool used by [PostgresStore].
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists identities in the identities table.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore wraps a pool (or any [Querier]).
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a pgx pool for dsn and pings it. The caller closes the pool.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

func (s *PostgresStore) GetByPhone(ctx context.Context, phone string) (*Identity, error) {
	row := s.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE phone = $1`, phone)
	return scanIdentity(row)
}

func (s *PostgresStore) Create(ctx context.Context, identity *Identity) error {
	if identity == nil || identity.ID == "" || identity.Phone == "" {
		return errors.New("identity incomplete")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		identity.ID,
		identity.Phone,
		identity.DisplayName,
		nullIfEmpty(identity.Email),
		identity.ShippingAddress,
		identity.Verified,
		identity.Active,
		identity.PasswordHash,
		identity.CreatedAt,
		identity.UpdatedAt,
		identity.LastLoginAt,
	)
	return mapPgError(err)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return s.execOne(ctx, `UPDATE identities SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, at.UTC())
}

func (s *PostgresStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return s.execOne(ctx, `UPDATE identities SET active = $2, updated_at = $3 WHERE id = $1`, id, active, at.UTC())
}

func (s *PostgresStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE identities SET last_login_at = $2 WHERE id = $1`, id, at.UTC())
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, update ProfileUpdate, at time.Time) (*Identity, error) {
	row := s.db.QueryRow(ctx, `UPDATE identities SET
			display_name = COALESCE($2, display_name),
			email = CASE WHEN $3::text IS NULL THEN email WHEN $3::text = '' THEN NULL ELSE $3::text END,
			shipping_address = COALESCE($4, shipping_address),
			updated_at = $5
		WHERE id = $1
		RETURNING `+identityColumns,
		id, update.DisplayName, update.Email, update.ShippingAddress, at.UTC(),
	)
	return scanIdentity(row)
}

func (s *PostgresStore) CountCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM identities WHERE created_at >= $1`, since.UTC()).Scan(&n); err != nil {
		return 0, mapPgError(err)
	}
	return n, nil
}

func (s *PostgresStore) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIdentity(row pgx.Row) (*Identity, error) {
	var (
		identity Identity
		email    *string
	)
	err := row.Scan(
		&identity.ID,
		&identity.Phone,
		&identity.DisplayName,
		&email,
		&identity.ShippingAddress,
		&identity.Verified,
		&identity.Active,
		&identity.PasswordHash,
		&identity.CreatedAt,
		&identity.UpdatedAt,
		&identity.LastLoginAt,
	)
	if err != nil {
		return nil, mapPgError(err)
	}
	if email != nil {
		identity.Email = *email
	}
	return &identity, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
