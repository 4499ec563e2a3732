package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// columnTypes maps the two scalar kinds the data table needs onto an
// engine's native SQL type names.
type columnTypes struct {
	text  string
	float string
}

var sqliteColumnTypes = columnTypes{text: "TEXT", float: "REAL"}
var postgresColumnTypes = columnTypes{text: "TEXT", float: "DOUBLE PRECISION"}

// dataColumns returns the data table's column names in fixed order: every
// non-time dimension (DSD order), then time_period, obs_value, obs_flags.
func dataColumns(dsd *model.DSD) []string {
	cols := make([]string, 0, len(dsd.Dimensions)+3)
	for _, d := range dsd.Dimensions {
		cols = append(cols, d.ID)
	}
	return append(cols, "time_period", "obs_value", "obs_flags")
}

// dataTableDDL builds the idempotent CREATE TABLE statement for a
// dataset's data (or staging) table. quotedTable must already be a
// quoted (and, for PostgreSQL, schema-qualified) identifier — callers
// pass QuoteIdent(name) or QualifiedTable(schema, name). The primary key
// is every non-time dimension plus time_period, per the schema layout's
// composite key.
func dataTableDDL(quotedTable string, dsd *model.DSD, types columnTypes) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quotedTable)
	b.WriteString(" (\n")

	pk := make([]string, 0, len(dsd.Dimensions)+1)
	for _, d := range dsd.Dimensions {
		b.WriteString("    ")
		b.WriteString(QuoteIdent(d.ID))
		b.WriteString(" ")
		b.WriteString(types.text)
		b.WriteString(" NOT NULL,\n")
		pk = append(pk, QuoteIdent(d.ID))
	}
	pk = append(pk, QuoteIdent("time_period"))

	b.WriteString("    ")
	b.WriteString(QuoteIdent("time_period"))
	b.WriteString(" ")
	b.WriteString(types.text)
	b.WriteString(" NOT NULL,\n")

	b.WriteString("    ")
	b.WriteString(QuoteIdent("obs_value"))
	b.WriteString(" ")
	b.WriteString(types.float)
	b.WriteString(" NULL,\n")

	b.WriteString("    ")
	b.WriteString(QuoteIdent("obs_flags"))
	b.WriteString(" ")
	b.WriteString(types.text)
	b.WriteString(" NULL,\n")

	b.WriteString("    PRIMARY KEY (")
	b.WriteString(strings.Join(pk, ", "))
	b.WriteString(")\n)")

	return b.String()
}

// expectedColumn pairs a data column's name with the SQL type dataTableDDL
// would give it, for comparison against a table's actual introspected
// columns during schema evolution.
type expectedColumn struct {
	name    string
	sqlType string
}

// expectedColumns lists a dataset's data table columns and types in the
// same order dataTableDDL builds them.
func expectedColumns(dsd *model.DSD, types columnTypes) []expectedColumn {
	cols := make([]expectedColumn, 0, len(dsd.Dimensions)+3)
	for _, d := range dsd.Dimensions {
		cols = append(cols, expectedColumn{name: d.ID, sqlType: types.text})
	}
	return append(cols,
		expectedColumn{name: "time_period", sqlType: types.text},
		expectedColumn{name: "obs_value", sqlType: types.float},
		expectedColumn{name: "obs_flags", sqlType: types.text},
	)
}

// execer is satisfied by *sqlx.DB and *sqlx.Tx; evolveTable only needs
// ExecContext, so it stays usable both against a loader's pooled handle and
// inside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// evolveTable diffs a data table's existing columns (as reported by the
// engine's own introspection) against a DSD's expected columns. A
// dimension the DSD adds that the table doesn't have yet is added via
// ALTER TABLE ... ADD COLUMN, nullable, so existing rows read back null in
// it rather than blocking the load (spec's schema-evolution scenario: an
// added dimension never requires a backfill). A column that already
// exists with a different type than the DSD now expects is a conflict the
// pipeline refuses to paper over.
func evolveTable(ctx context.Context, exec execer, quotedTable string, existing map[string]string, expected []expectedColumn) error {
	normalized := make(map[string]string, len(existing))
	for name, sqlType := range existing {
		normalized[strings.ToLower(name)] = sqlType
	}

	for _, col := range expected {
		existingType, ok := normalized[strings.ToLower(col.name)]
		if !ok {
			ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL", quotedTable, QuoteIdent(col.name), col.sqlType)
			if _, err := exec.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("%w: add column %s to %s: %v", model.ErrSchemaEvolutionConflict, col.name, quotedTable, err)
			}
			continue
		}
		if !strings.EqualFold(existingType, col.sqlType) {
			return fmt.Errorf("%w: column %s on %s has type %s, dsd now expects %s",
				model.ErrSchemaEvolutionConflict, col.name, quotedTable, existingType, col.sqlType)
		}
	}
	return nil
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func joinComma(s []string) string {
	return strings.Join(s, ", ")
}

// observationArgs renders one Observation's values in dataColumns order,
// suitable for a parameterized INSERT. Value/Flags nil maps to a SQL NULL
// via the untyped nil driver value.
func observationArgs(dsd *model.DSD, obs model.Observation) []interface{} {
	args := make([]interface{}, 0, len(dsd.Dimensions)+3)
	for _, v := range obs.DimensionValues {
		args = append(args, v)
	}
	args = append(args, obs.TimePeriod)
	if obs.Value != nil {
		args = append(args, *obs.Value)
	} else {
		args = append(args, nil)
	}
	if obs.Flags != nil {
		args = append(args, *obs.Flags)
	} else {
		args = append(args, nil)
	}
	return args
}
