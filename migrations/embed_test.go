package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".up.sql"):
			ups[strings.TrimSuffix(f, ".up.sql")] = true
		case strings.HasSuffix(f, ".down.sql"):
			downs[strings.TrimSuffix(f, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", f)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaKeepsMeetingsPerAppointmentNonUnique(t *testing.T) {
	raw, err := fs.ReadFile(FS, "001_create_scheduling_tables.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS meetings")
	assert.Contains(t, schema, "FOREIGN KEY (meeting_id) REFERENCES meetings(id)")
	assert.NotContains(t, strings.ToUpper(schema), "UNIQUE INDEX")
}
