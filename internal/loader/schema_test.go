package loader

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecer records every statement it's asked to run, so evolveTable's
// column-diffing can be tested without a real database connection.
type fakeExecer struct {
	statements []string
}

func (f *fakeExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.statements = append(f.statements, query)
	return nil, nil
}

func testDSD(t *testing.T) *model.DSD {
	t.Helper()
	dims := []model.Dimension{{ID: "geo"}, {ID: "unit"}}
	dsd, err := model.NewDSD("demo", "1.0", dims, nil, "", "time_period", nil)
	require.NoError(t, err)
	return dsd
}

func TestDataColumnsOrder(t *testing.T) {
	dsd := testDSD(t)
	assert.Equal(t, []string{"geo", "unit", "time_period", "obs_value", "obs_flags"}, dataColumns(dsd))
}

func TestDataTableDDLIncludesCompositePrimaryKey(t *testing.T) {
	dsd := testDSD(t)
	ddl := dataTableDDL(QuoteIdent("demo"), dsd, sqliteColumnTypes)

	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "demo"`)
	assert.Contains(t, ddl, `"geo" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"unit" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"time_period" TEXT NOT NULL`)
	assert.Contains(t, ddl, `"obs_value" REAL NULL`)
	assert.Contains(t, ddl, `"obs_flags" TEXT NULL`)
	assert.Contains(t, ddl, `PRIMARY KEY ("geo", "unit", "time_period")`)
}

func TestDataTableDDLUsesFloatTypePerEngine(t *testing.T) {
	dsd := testDSD(t)
	ddl := dataTableDDL(QualifiedTable("data", "demo"), dsd, postgresColumnTypes)
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "data"."demo"`)
	assert.Contains(t, ddl, `"obs_value" DOUBLE PRECISION NULL`)
}

func TestObservationArgsNilValueAndFlags(t *testing.T) {
	dsd := testDSD(t)
	obs := model.Observation{DimensionValues: []string{"DE", "EUR"}, TimePeriod: "2020"}
	args := observationArgs(dsd, obs)
	require.Len(t, args, 5)
	assert.Equal(t, "DE", args[0])
	assert.Equal(t, "EUR", args[1])
	assert.Equal(t, "2020", args[2])
	assert.Nil(t, args[3])
	assert.Nil(t, args[4])
}

func TestObservationArgsWithValueAndFlags(t *testing.T) {
	dsd := testDSD(t)
	v := 10.5
	f := "p"
	obs := model.Observation{DimensionValues: []string{"DE", "EUR"}, TimePeriod: "2020", Value: &v, Flags: &f}
	args := observationArgs(dsd, obs)
	assert.Equal(t, 10.5, args[3])
	assert.Equal(t, "p", args[4])
}

func TestEvolveTableAddsMissingColumn(t *testing.T) {
	dsd := testDSD(t) // dimensions geo, unit
	existing := map[string]string{
		"geo":         "TEXT",
		"time_period": "TEXT",
		"obs_value":   "REAL",
		"obs_flags":   "TEXT",
		// "unit" is absent, as if the DSD just grew this dimension.
	}
	exec := &fakeExecer{}

	err := evolveTable(context.Background(), exec, `"demo"`, existing, expectedColumns(dsd, sqliteColumnTypes))
	require.NoError(t, err)
	require.Len(t, exec.statements, 1)
	assert.Contains(t, exec.statements[0], `ALTER TABLE "demo" ADD COLUMN "unit" TEXT NULL`)
}

func TestEvolveTableIsNoOpWhenColumnsAlreadyMatch(t *testing.T) {
	dsd := testDSD(t)
	existing := map[string]string{
		"geo":         "TEXT",
		"unit":        "TEXT",
		"time_period": "TEXT",
		"obs_value":   "REAL",
		"obs_flags":   "TEXT",
	}
	exec := &fakeExecer{}

	err := evolveTable(context.Background(), exec, `"demo"`, existing, expectedColumns(dsd, sqliteColumnTypes))
	require.NoError(t, err)
	assert.Empty(t, exec.statements)
}

func TestEvolveTableMatchesColumnNamesCaseInsensitively(t *testing.T) {
	dsd := testDSD(t)
	existing := map[string]string{
		"GEO":         "text",
		"UNIT":        "text",
		"TIME_PERIOD": "text",
		"OBS_VALUE":   "double precision",
		"OBS_FLAGS":   "text",
	}
	exec := &fakeExecer{}

	err := evolveTable(context.Background(), exec, `"data"."demo"`, existing, expectedColumns(dsd, postgresColumnTypes))
	require.NoError(t, err)
	assert.Empty(t, exec.statements)
}

func TestEvolveTableRejectsTypeMismatch(t *testing.T) {
	dsd := testDSD(t)
	existing := map[string]string{
		"geo":         "TEXT",
		"unit":        "TEXT",
		"time_period": "TEXT",
		"obs_value":   "TEXT", // was declared TEXT, DSD now expects REAL
		"obs_flags":   "TEXT",
	}
	exec := &fakeExecer{}

	err := evolveTable(context.Background(), exec, `"demo"`, existing, expectedColumns(dsd, sqliteColumnTypes))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSchemaEvolutionConflict))
	assert.Empty(t, exec.statements, "a conflicting column must not also be altered")
}
