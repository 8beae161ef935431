package db

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationsOrdersAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql":     {Data: []byte("ALTER TABLE x ADD y INT;")},
		"0001_a.SQL":     {Data: []byte("CREATE TABLE x (id INT);\n")},
		"0003_empty.sql": {Data: []byte("  \n")},
		"README.md":      {Data: []byte("docs")},
		"sub/0000.sql":   {Data: []byte("SELECT 1;")},
	}
	got, err := ListMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0001_a.SQL", got[0].Name)
	assert.Equal(t, "CREATE TABLE x (id INT);", got[0].SQL)
	assert.Equal(t, "0002_b.sql", got[1].Name)
}

func TestPending(t *testing.T) {
	all := []Migration{{Name: "1.sql"}, {Name: "2.sql"}, {Name: "3.sql"}}
	got := Pending(all, map[string]bool{"1.sql": true, "3.sql": false})
	assert.Equal(t, []Migration{{Name: "2.sql"}, {Name: "3.sql"}}, got)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := ListMigrations(Migrations())
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_pipeline_runs.sql", got[0].Name)
	assert.Contains(t, got[0].SQL, "CREATE TABLE IF NOT EXISTS pipeline_runs")
}
