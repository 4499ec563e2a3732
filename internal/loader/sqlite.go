package loader

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sqlite3driver "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/jmoiron/sqlx"
)

// sqliteRegisterOnce guards sql.Register, which panics if called twice
// with the same driver name across adapter instances in one process
// (e.g. repeated test setup).
var sqliteRegisterOnce sync.Once

// SQLiteLoader is the secondary, test/dev adapter against the embeddable
// SQL engine the reference codebase uses for its own metadata store. It
// satisfies the same Loader capability set as the canonical PostgreSQL
// adapter, but since SQLite has no COPY-equivalent wire protocol, its
// bulk path batches prepared-statement inserts inside one transaction —
// the explicitly permitted "last resort" for non-COPY engines.
type SQLiteLoader struct {
	db *sqlx.DB
}

// NewSQLiteLoader opens (creating if absent) a SQLite database file at
// dsn and runs the embedded metadata-schema migrations against it.
func NewSQLiteLoader(dsn string) (*SQLiteLoader, error) {
	sqliteRegisterOnce.Do(func() {
		sql.Register("sqlite3_with_hooks", sqlhooks.Wrap(&sqlite3driver.SQLiteDriver{}, &queryTimingHooks{}))
	})

	db, err := sqlx.Open("sqlite3_with_hooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("open sqlite3 %s: %w", dsn, err)
	}
	// SQLite serializes writers regardless; one connection avoids
	// "database is locked" contention under concurrent callers.
	db.SetMaxOpenConns(1)

	if err := bootstrapMetaSchema("sqlite3", db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteLoader{db: db}, nil
}

func (l *SQLiteLoader) CloseConnection() error {
	return l.db.Close()
}

func (l *SQLiteLoader) PrepareSchema(ctx context.Context, dsd *model.DSD, schema string) error {
	table := SafeIdentifier(dsd.DatasetID)
	ddl := dataTableDDL(QuoteIdent(table), dsd, sqliteColumnTypes)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: prepare schema for %s: %v", model.ErrDsdInvalid, dsd.DatasetID, err)
	}

	existing, err := sqliteExistingColumns(ctx, l.db, table)
	if err != nil {
		return fmt.Errorf("%w: introspect schema for %s: %v", model.ErrDsdInvalid, dsd.DatasetID, err)
	}
	return evolveTable(ctx, l.db, QuoteIdent(table), existing, expectedColumns(dsd, sqliteColumnTypes))
}

// sqliteExistingColumns reports a table's current column names and
// declared types via PRAGMA table_info, which SQLite answers even when
// table didn't exist before this request's CREATE TABLE IF NOT EXISTS —
// so the very first PrepareSchema call for a dataset simply sees every
// expected column already present and evolveTable is a no-op.
func sqliteExistingColumns(ctx context.Context, db *sqlx.DB, table string) (map[string]string, error) {
	type pragmaColumn struct {
		Name string `db:"name"`
		Type string `db:"type"`
	}
	var rows []pragmaColumn
	if err := db.SelectContext(ctx, &rows, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table))); err != nil {
		return nil, fmt.Errorf("introspect columns for %s: %w", table, err)
	}
	cols := make(map[string]string, len(rows))
	for _, r := range rows {
		cols[r.Name] = r.Type
	}
	return cols, nil
}

func (l *SQLiteLoader) ManageCodelists(ctx context.Context, codelists model.CodelistSet, schema string) error {
	return upsertCodelistsSQLite(ctx, l.db, codelists)
}

func (l *SQLiteLoader) BulkLoadStaging(ctx context.Context, dsd *model.DSD, schema string, observations <-chan model.Observation, useUnloggedStaging bool) (string, int64, error) {
	target := SafeIdentifier(dsd.DatasetID)
	staging := StagingTableName(target, fmt.Sprintf("%d", time.Now().UnixNano()))

	ddl := dataTableDDL(QuoteIdent(staging), dsd, sqliteColumnTypes)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return "", 0, fmt.Errorf("%w: create staging table: %v", model.ErrBulkLoadFailed, err)
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: begin staging tx: %v", model.ErrBulkLoadFailed, err)
	}
	defer tx.Rollback()

	cols := dataColumns(dsd)
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(staging), quoteColumns(cols), joinComma(placeholders))

	stmt, err := tx.PreparexContext(ctx, insertSQL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: prepare staging insert: %v", model.ErrBulkLoadFailed, err)
	}
	defer stmt.Close()

	var rows int64
	for obs := range observations {
		args := observationArgs(dsd, obs)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return "", 0, fmt.Errorf("%w: insert staging row: %v", model.ErrBulkLoadFailed, err)
		}
		rows++
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("%w: commit staging tx: %v", model.ErrBulkLoadFailed, err)
	}
	log.Debugf("sqlite loader: staged %d rows into %s", rows, staging)
	return staging, rows, nil
}

func (l *SQLiteLoader) FinalizeLoad(ctx context.Context, dsd *model.DSD, schema, stagingTable string, strategy model.LoadStrategy) error {
	target := SafeIdentifier(dsd.DatasetID)

	switch strategy {
	case model.StrategyFull:
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin swap tx: %v", model.ErrFinalizeFailed, err)
		}
		defer tx.Rollback()

		old := StagingTableName(target, "old")
		hadExistingTarget := true
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdent(target), QuoteIdent(old))); err != nil {
			// Target may not exist yet on a dataset's very first load.
			hadExistingTarget = false
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdent(stagingTable), QuoteIdent(target))); err != nil {
			return fmt.Errorf("%w: rename staging to target: %v", model.ErrFinalizeFailed, err)
		}
		if hadExistingTarget {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", QuoteIdent(old))); err != nil {
				return fmt.Errorf("%w: drop old target: %v", model.ErrFinalizeFailed, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit swap: %v", model.ErrFinalizeFailed, err)
		}
		return nil

	case model.StrategyDelta:
		return mergeStagingSQLite(ctx, l.db, dsd, target, stagingTable)

	default:
		return fmt.Errorf("%w: unknown load strategy %q", model.ErrFinalizeFailed, strategy)
	}
}

func (l *SQLiteLoader) GetIngestionState(ctx context.Context, datasetID, schema string) (*model.IngestionHistory, error) {
	return getIngestionStateSQLite(ctx, l.db, datasetID)
}

func (l *SQLiteLoader) SaveIngestionState(ctx context.Context, schema string, record *model.IngestionHistory) error {
	return saveIngestionStateSQLite(ctx, l.db, record)
}

func (l *SQLiteLoader) SweepOrphanedStaging(ctx context.Context, schema string) (int, error) {
	var names []string
	if err := l.db.SelectContext(ctx, &names, `SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'stg\_%' ESCAPE '\'`); err != nil {
		return 0, fmt.Errorf("list staging tables: %w", err)
	}
	dropped := 0
	for _, n := range names {
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", QuoteIdent(n))); err != nil {
			return dropped, fmt.Errorf("drop orphaned staging table %s: %w", n, err)
		}
		dropped++
	}
	return dropped, nil
}
