package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/MrEthical07/sessioncap/internal/db"
)

func TestRunRejectsBadInput(t *testing.T) {
	if err := Run("", Up); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if err := Run("postgres://localhost/x", Direction("sideways")); err == nil {
		t.Fatal("expected error for unknown direction")
	}
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %q", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations embedded")
	}
	for base := range ups {
		if !downs[base] {
			t.Fatalf("migration %s has no down file", base)
		}
	}
	for _, want := range []string{"sessions", "users", "posts"} {
		found := false
		for base := range ups {
			if strings.Contains(base, want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("no migration creates %s", want)
		}
	}
}
