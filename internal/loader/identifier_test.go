package loader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeIdentifierNormalizes(t *testing.T) {
	assert.Equal(t, "nama_10_gdp", SafeIdentifier("nama_10_gdp"))
	assert.Equal(t, "demo_r_d2jan", SafeIdentifier("DEMO_R_d2jan"))
	assert.Equal(t, "a_drop_table_users_b", SafeIdentifier("a;DROP TABLE users;--b"))
	assert.Equal(t, "dataset", SafeIdentifier(""))
	assert.Equal(t, "dataset", SafeIdentifier("___"))
}

func TestSafeIdentifierCapsLength(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := SafeIdentifier(long)
	assert.LessOrEqual(t, len(got), 48)
}

func TestQuoteIdentEscapesEmbeddedQuotes(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"has""quote"`, QuoteIdent(`has"quote`))
}

func TestQualifiedTable(t *testing.T) {
	assert.Equal(t, `"data"."nama_10_gdp"`, QualifiedTable("data", "nama_10_gdp"))
}

func TestStagingTableName(t *testing.T) {
	name := StagingTableName("nama_10_gdp", "run-123")
	assert.True(t, strings.HasPrefix(name, "stg_nama_10_gdp_"))
	assert.True(t, IsStagingTable(name))
	assert.False(t, IsStagingTable("nama_10_gdp"))
}

func TestStagingTableNameCapsLength(t *testing.T) {
	name := StagingTableName(strings.Repeat("x", 60), strings.Repeat("y", 60))
	assert.LessOrEqual(t, len(name), 56)
}

func TestSafeIdentifierNeverBreaksQuoting(t *testing.T) {
	malicious := `a" OR "1"="1`
	safe := SafeIdentifier(malicious)
	assert.NotContains(t, safe, `"`)
	quoted := QuoteIdent(safe)
	assert.True(t, strings.HasPrefix(quoted, `"`))
	assert.True(t, strings.HasSuffix(quoted, `"`))
}
