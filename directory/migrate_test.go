package directory

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrateRejectsBadInput(t *testing.T) {
	if err := Migrate("", "up"); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if err := Migrate("postgres://localhost/db", "sideways"); err == nil || !strings.Contains(err.Error(), "direction") {
		t.Fatalf("expected direction error, got %v", err)
	}
}

func TestMigrationFSHasPairs(t *testing.T) {
	entries, err := fs.ReadDir(MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected matching up/down migrations, got %d up %d down", ups, downs)
	}
}
