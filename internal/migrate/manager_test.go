package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`create table a (id text); insert into a values ('x;y'); `)
	require.Len(t, stmts, 2)
	require.Contains(t, stmts[1], "'x;y'")
}

func TestListSQLSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o600))
	}

	names, err := listSQL(dir, ".up.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestListSQLMissingDir(t *testing.T) {
	names, err := listSQL(filepath.Join(t.TempDir(), "nope"), ".up.sql")
	require.NoError(t, err)
	require.Empty(t, names)
}
