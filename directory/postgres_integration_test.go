//go:build integration

package directory

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("PHONEAUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PHONEAUTH_TEST_DATABASE_URL not set")
	}
	if err := Migrate(dsn, "up"); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	pool, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(context.Background(), `TRUNCATE identities`); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	return NewPostgresStore(pool)
}

func TestPostgresResolveOrCreate(t *testing.T) {
	store := newTestPostgres(t)
	dir := New(store, nil)
	ctx := context.Background()

	first, created, err := dir.ResolveOrCreate(ctx, "+15550001111", "$argon2id$hash", "Ana")
	if err != nil || !created {
		t.Fatalf("ResolveOrCreate failed: %v created=%v", err, created)
	}
	second, created, err := dir.ResolveOrCreate(ctx, "+15550001111", "", "Other")
	if err != nil || created || second.ID != first.ID || second.DisplayName != "Ana" {
		t.Fatalf("expected existing identity, got %+v created=%v err=%v", second, created, err)
	}
}

func TestPostgresConstraints(t *testing.T) {
	store := newTestPostgres(t)
	ctx := context.Background()
	now := time.Now()

	a := &Identity{ID: uuid.NewString(), Phone: "+15550000001", Active: true, CreatedAt: now, UpdatedAt: now}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	dup := &Identity{ID: uuid.NewString(), Phone: "+15550000001", CreatedAt: now, UpdatedAt: now}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate phone, got %v", err)
	}

	b := &Identity{ID: uuid.NewString(), Phone: "+15550000002", CreatedAt: now, UpdatedAt: now}
	if err := store.Create(ctx, b); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	email := "Ana@Example.com"
	if _, err := store.UpdateProfile(ctx, a.ID, ProfileUpdate{Email: &email}, now); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	lower := "ana@example.com"
	if _, err := store.UpdateProfile(ctx, b.ID, ProfileUpdate{Email: &lower}, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}

	if err := store.UpdatePassword(ctx, uuid.NewString(), "x", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := store.CountCreatedSince(ctx, now.Add(-time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("expected 2 identities, got %d %v", n, err)
	}
}
