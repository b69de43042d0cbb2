package tags

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagNameQueriesMatchUniqueIndex(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "migrations", "001_init.sql"))
	require.NoError(t, err)
	schema := string(data)

	index := regexp.MustCompile(`(?i)CREATE UNIQUE INDEX IF NOT EXISTS tags_name_lower_uidx ON tags \(lower\(name\)\)`)
	assert.True(t, index.MatchString(schema), "tag names must be unique ignoring case")
	start := strings.Index(schema, "CREATE TABLE IF NOT EXISTS tags (")
	require.GreaterOrEqual(t, start, 0)
	table := schema[start : start+strings.Index(schema[start:], ");")]
	assert.NotContains(t, table, "UNIQUE", "a case-sensitive constraint admits names the lookup cannot tell apart")

	assert.Contains(t, tagByName, "lower(t.name)")
	assert.Contains(t, tagNameConflict, "(lower(name))")
}
