package loader

import (
	"fmt"
	"regexp"
	"strings"
)

// maxIdentifierLen is conservative enough to fit under every SQL engine's
// own identifier length cap (63 for PostgreSQL) even after a staging
// suffix is appended.
const maxIdentifierLen = 48

var unsafeIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// SafeIdentifier lower-cases a dataset id (which is opaque, externally
// supplied input) and replaces every character outside [a-z0-9_] with an
// underscore, then caps its length. It never returns a string that can
// be used to break out of a quoted identifier.
func SafeIdentifier(raw string) string {
	s := unsafeIdentChars.ReplaceAllString(strings.ToLower(raw), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "dataset"
	}
	if len(s) > maxIdentifierLen {
		s = s[:maxIdentifierLen]
	}
	return s
}

// QuoteIdent double-quotes an ANSI SQL identifier, escaping embedded
// quotes. Callers must never interpolate a raw external string into SQL
// text without passing it through QuoteIdent first.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QualifiedTable returns a schema-qualified, quoted table reference.
func QualifiedTable(schema, table string) string {
	return fmt.Sprintf("%s.%s", QuoteIdent(schema), QuoteIdent(table))
}

// StagingTableName derives a run-scoped staging table name from the
// target table name, so orphaned staging tables from a failed run remain
// identifiable by prefix for a sweep.
func StagingTableName(target string, runSuffix string) string {
	name := fmt.Sprintf("stg_%s_%s", target, SafeIdentifier(runSuffix))
	if len(name) > maxIdentifierLen+8 {
		name = name[:maxIdentifierLen+8]
	}
	return name
}

// IsStagingTable reports whether name matches the staging naming
// convention, for use by a sweep that drops orphaned tables.
func IsStagingTable(name string) bool {
	return strings.HasPrefix(name, "stg_")
}
