package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The migrator runs whatever is in migrations/, so the directory itself is
// part of the contract: every up file needs a down file and none may be
// empty.
func TestMigrationFilesPairUpAndDown(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations directory: %s", name)
		}

		content, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(content)), name)
	}

	for stem := range ups {
		assert.True(t, downs[stem], "missing down migration for %s", stem)
	}
	for stem := range downs {
		assert.True(t, ups[stem], "missing up migration for %s", stem)
	}
}
